package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ProfileRecord is the persisted per-user profile row. The three list fields
// are stored as JSON arrays; decoding into typed values happens in the
// profile package.
type ProfileRecord struct {
	UserID              string
	Summary             string
	MoodHistoryJSON     string
	RecurringTopicsJSON string
	TechniquesJSON      string
	SessionCount        int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TurnRecord is one completed conversation turn in the journal.
type TurnRecord struct {
	ID          string
	UserID      string
	UserMessage string
	Response    string
	Sensitive   bool
	CreatedAt   time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
