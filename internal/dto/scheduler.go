package dto

import "time"

// JobStatusResponse describes one registered background job.
type JobStatusResponse struct {
	Name      string     `json:"name"`
	Interval  string     `json:"interval"`
	Running   bool       `json:"running"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

// SchedulerStatusResponse summarises the scheduler for the admin surface.
type SchedulerStatusResponse struct {
	Total int                 `json:"total"`
	Jobs  []JobStatusResponse `json:"jobs"`
}

// TriggerJobResponse reports the result of a manual job trigger.
type TriggerJobResponse struct {
	Job       string `json:"job"`
	Triggered bool   `json:"triggered"`
	Message   string `json:"message,omitempty"`
}
