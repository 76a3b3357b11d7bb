package database

import "github.com/leca/bandwidth-proxy/internal/model"

// Database persists the per-request savings ledger.
type Database interface {
	RecordOutcome(o *model.Outcome) error
	ListOutcomes(limit int) ([]*model.Outcome, error)
	Totals() (*model.Totals, error)

	Close() error
}
