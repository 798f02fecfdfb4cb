package core

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"bithopper/model"
	"bithopper/util"
)

type counters struct {
	issued   uint64
	accepted uint64
	rejected uint64
}

// DifficultyFunc returns the current live network difficulty of a pool.
type DifficultyFunc func(pool string) (float64, bool)

// StatTracker counts issued, accepted and rejected work per credential and
// network difficulty, and flushes the current difficulty's counters to a
// StatStore.
type StatTracker struct {
	mu   sync.Mutex
	keys map[model.StatKey]*counters

	difficulty DifficultyFunc
	meter      *HashrateMeter
	store      StatStore

	now func() time.Time
}

func NewStatTracker(store StatStore, difficulty DifficultyFunc, meter *HashrateMeter) *StatTracker {
	return &StatTracker{
		keys:       make(map[model.StatKey]*counters),
		difficulty: difficulty,
		meter:      meter,
		store:      store,
		now:        time.Now,
	}
}

func (t *StatTracker) AddIssued(cred model.Credential) {
	t.add(cred, func(c *counters) { c.issued++ })
}

func (t *StatTracker) AddAccepted(cred model.Credential) {
	t.add(cred, func(c *counters) { c.accepted++ })
	if t.meter != nil {
		t.meter.AddShares(1)
	}
}

func (t *StatTracker) AddRejected(cred model.Credential) {
	t.add(cred, func(c *counters) { c.rejected++ })
	if t.meter != nil {
		t.meter.AddShares(1)
	}
}

func (t *StatTracker) add(cred model.Credential, inc func(c *counters)) {
	diff, _ := t.difficulty(cred.Pool)
	key := model.StatKey{Credential: cred, Difficulty: diff}

	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.keys[key]
	if !ok {
		c = &counters{}
		t.keys[key] = c
	}
	inc(c)
}

// Load seeds the counters from the store, so a restart keeps counting the
// current round where it left off.
func (t *StatTracker) Load(ctx context.Context) error {
	stats, err := t.store.Stats(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, stat := range stats {
		key := stat.Key()
		c, ok := t.keys[key]
		if !ok {
			c = &counters{}
			t.keys[key] = c
		}
		c.issued += stat.Issued
		c.accepted += stat.Accepted
		c.rejected += stat.Rejected
	}
	log.Infof("Loaded %d stat rows", len(stats))
	return nil
}

// Flush upserts every key at its pool's current difficulty. Keys from a
// difficulty that has since retargeted are left alone, so the durable row
// of the old round is never overwritten.
func (t *StatTracker) Flush(ctx context.Context) error {
	stamp := t.now()
	var rows []*model.Stat

	t.mu.Lock()
	for key, c := range t.keys {
		diff, ok := t.difficulty(key.Pool)
		if !ok || diff != key.Difficulty {
			continue
		}
		rows = append(rows, &model.Stat{
			Pool:       key.Pool,
			Username:   key.Username,
			Password:   key.Password,
			Difficulty: key.Difficulty,
			Issued:     c.issued,
			Accepted:   c.accepted,
			Rejected:   c.rejected,
			UpdatedAt:  stamp,
		})
	}
	t.mu.Unlock()

	for _, row := range rows {
		if err := t.store.UpsertStat(ctx, row); err != nil {
			return err
		}
	}
	log.Debugf("Flushed %d stat rows", len(rows))
	return nil
}

// Summary returns pool -> "user:pass" -> [issued, accepted, rejected] for the
// current difficulty of each pool.
func (t *StatTracker) Summary() map[string]map[string][3]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := make(map[string]map[string][3]uint64)
	for key, c := range t.keys {
		if diff, ok := t.difficulty(key.Pool); !ok || diff != key.Difficulty {
			continue
		}
		users, ok := summary[key.Pool]
		if !ok {
			users = make(map[string][3]uint64)
			summary[key.Pool] = users
		}
		name := util.ShortCredential(key.Username, key.Password)
		prev := users[name]
		users[name] = [3]uint64{prev[0] + c.issued, prev[1] + c.accepted, prev[2] + c.rejected}
	}
	return summary
}
