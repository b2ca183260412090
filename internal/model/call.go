// Package model defines the data structures used throughout the application.
package model

import "time"

// CallKind names which relay served a call.
type CallKind string

const (
	KindRun CallKind = "run"
	KindAsk CallKind = "ask"
)

// CallRecord is one line of the relay's audit log.
//
// It describes THAT a call happened and how it ended, never WHAT was sent:
// code, prompts and replies are not stored.
type CallRecord struct {
	ID         string    `json:"id"`
	Kind       CallKind  `json:"kind"`
	Backend    string    `json:"backend"` // "piston", "docker" or the chat model name
	Outcome    string    `json:"outcome"` // "ok", "invalid", "upstream_error", "timeout", "transport_error"
	DurationMS int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}
