package cron

import (
	"time"

	"github.com/google/uuid"
)

// Schedule describes when a job runs. Exactly one kind is used:
// "cron" (Expr, with seconds field), "every" (EveryMs), or "at" (AtMs,
// one-shot wall-clock time).
type Schedule struct {
	Kind    string `json:"kind"`
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	AtMs    int64  `json:"atMs,omitempty"`
}

// Payload is what the job handler receives. Maintenance jobs carry only
// a Kind; reminders also carry the target chat and message text.
type Payload struct {
	Kind    string `json:"kind"`
	Channel string `json:"channel,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
	Message string `json:"message,omitempty"`
}

type JobState struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

type CronJob struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	DeleteAfterRun bool     `json:"deleteAfterRun,omitempty"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
}

func NewCronJob(name string, schedule Schedule, payload Payload) CronJob {
	return CronJob{
		ID:             uuid.NewString(),
		Name:           name,
		Enabled:        true,
		DeleteAfterRun: schedule.Kind == "at",
		Schedule:       schedule,
		Payload:        payload,
		CreatedAtMs:    time.Now().UnixMilli(),
	}
}
