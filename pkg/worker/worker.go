package worker

import (
	"errors"
	"sync"

	"github.com/starledger/starbot/pkg/logger"
)

var ErrTerminated = errors.New("workers terminated")

type WorkerHandler = func(workerIndex int, job interface{})

// WorkerManager fans jobs out over a fixed pool of goroutines. Jobs are
// published with Enqueue and distributed over the shared channel; the pool
// runs until Exit is called. The job channel is never closed here because
// it may be passed in from outside and shared with other producers.
type WorkerManager struct {
	jobChannel     chan interface{}
	numberOfWorker int
	quit           chan struct{}
	do             WorkerHandler
	waiter         sync.WaitGroup
	exitOnce       sync.Once
}

func NewWorkerManager(bufferSize, numberOfWorkers int, jobChannel chan interface{}) *WorkerManager {
	if jobChannel == nil {
		jobChannel = make(chan interface{}, bufferSize)
	}
	return &WorkerManager{
		jobChannel:     jobChannel,
		numberOfWorker: numberOfWorkers,
		quit:           make(chan struct{}),
	}
}

// GetUnreadCount reports how many jobs are buffered but not yet picked up.
func (w *WorkerManager) GetUnreadCount() int64 {
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) JobEvents() chan interface{} {
	return w.jobChannel
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue publishes a job onto the shared channel. Blocks when the
// buffer is full.
func (w *WorkerManager) Enqueue(val interface{}) {
	w.jobChannel <- val
}

// Start spins up the pool and blocks until Exit is called.
func (w *WorkerManager) Start() error {
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go w.run(i)
	}
	w.waiter.Wait()

	return ErrTerminated
}

func (w *WorkerManager) run(index int) {
	defer w.waiter.Done()
	for {
		select {
		case job := <-w.jobChannel:
			w.do(index, job)
		case <-w.quit:
			return
		}
	}
}

// Exit stops every worker in the pool. Buffered jobs that were not yet
// picked up stay in the channel.
func (w *WorkerManager) Exit() {
	w.exitOnce.Do(func() {
		logger.Info("worker manager shutting down")
		close(w.quit)
	})
}
