package model

import "time"

// OutcomeKind classifies how a proxied request terminated.
type OutcomeKind string

const (
	OutcomeCompressed OutcomeKind = "compressed"
	OutcomeBypassed   OutcomeKind = "bypassed"
	OutcomeRedirected OutcomeKind = "redirected"
	OutcomeRejected   OutcomeKind = "rejected"
	OutcomeAborted    OutcomeKind = "aborted"
)

// Outcome is one row of the savings ledger.
type Outcome struct {
	ID         string        `json:"id"`
	Host       string        `json:"host"`
	Kind       OutcomeKind   `json:"kind"`
	OriginSize int64         `json:"origin_size"`
	SentSize   int64         `json:"sent_size"`
	BytesSaved int64         `json:"bytes_saved"`
	Duration   time.Duration `json:"-"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Totals aggregates the savings ledger.
type Totals struct {
	Requests      int                 `json:"requests"`
	ByKind        map[OutcomeKind]int `json:"by_kind"`
	OriginalBytes int64               `json:"original_bytes"`
	BytesSaved    int64               `json:"bytes_saved"`
}
