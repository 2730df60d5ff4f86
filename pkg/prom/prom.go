package prom

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	xhttp "github.com/starledger/starbot/pkg/http"
	"github.com/starledger/starbot/pkg/logger"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemLedger    = "ledger"
	SystemBroadcast = "broadcast"
)

const (
	MetricLedgerOperations         = "operations_total"
	MetricBroadcastDeliveries      = "deliveries_total"
	MetricBroadcastDeliveryLatency = "delivery_duration_seconds"
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var createMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var counterVecs = make(map[string]*prometheus.CounterVec)
var histograms = make(map[string]prometheus.Histogram)

var defaultLabels prometheus.Labels

func Create(host string, env string, nameSpace string) error {
	defaultLabels = make(prometheus.Labels)
	defaultLabels["env"] = env
	defaultLabels["instance"] = host
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(createCounterVec(SystemLedger, MetricLedgerOperations, []string{"kind", "outcome"}))
	hasError(createCounterVec(SystemBroadcast, MetricBroadcastDeliveries, []string{"outcome"}))
	hasError(createHistogram(SystemBroadcast, MetricBroadcastDeliveryLatency))

	return err
}

// ObserveOperation counts one ledger operation by kind and outcome.
func ObserveOperation(kind string, outcome string) {
	if !MetricSystemEnabled {
		return
	}
	if c, ok := counterVecs[SystemLedger+MetricLedgerOperations]; ok {
		c.WithLabelValues(kind, outcome).Inc()
	}
}

// ObserveBroadcastDelivery records one broadcast delivery attempt.
func ObserveBroadcastDelivery(outcome string, duration time.Duration) {
	if !MetricSystemEnabled {
		return
	}
	if c, ok := counterVecs[SystemBroadcast+MetricBroadcastDeliveries]; ok {
		c.WithLabelValues(outcome).Inc()
	}
	if h, ok := histograms[SystemBroadcast+MetricBroadcastDeliveryLatency]; ok {
		h.Observe(duration.Seconds())
	}
}

func ListenAndServe(port string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	s.GET("/health", func(ctx *xhttp.RequestCtx) {
		ctx.Response.SetBodyString("success")
	})
	logger.Info("[metrics-server] listening...", "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func createCounterVec(subsystem, name string, labels []string) error {
	createMetricLock.Lock()
	defer createMetricLock.Unlock()
	counterVecs[subsystem+name] = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(counterVecs[subsystem+name])
}

func createHistogram(subsystem, name string) error {
	createMetricLock.Lock()
	defer createMetricLock.Unlock()
	histograms[subsystem+name] = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
		Buckets:     prometheus.DefBuckets,
	})
	return prometheus.Register(histograms[subsystem+name])
}
