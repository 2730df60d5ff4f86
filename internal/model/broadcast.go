package model

// BroadcastJob is one queued delivery of an admin broadcast. Total carries the
// run size so the consumer can tell when the run has drained.
type BroadcastJob struct {
	RunID   string `json:"run_id"`
	ChatID  int64  `json:"chat_id"`
	Text    string `json:"text"`
	AdminID int64  `json:"admin_id"`
	Total   int64  `json:"total"`
}

// BroadcastReport summarizes a finished run.
type BroadcastReport struct {
	RunID     string `json:"run_id"`
	Delivered int64  `json:"delivered"`
	Failed    int64  `json:"failed"`
}
