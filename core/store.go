package core

import (
	"context"

	"bithopper/model"
)

// StatStore is the durable side of the stat tracker. Rows are keyed by
// (pool, username, password, difficulty) and written by upsert.
type StatStore interface {
	UpsertStat(ctx context.Context, stat *model.Stat) error
	Stats(ctx context.Context) ([]*model.Stat, error)
	Close() error
}
