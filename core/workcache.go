package core

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"

	"bithopper/model"
)

type workRecord struct {
	origin model.Credential
	added  time.Time
}

// WorkCache maps a work fingerprint (merkle root) to the credential that
// produced the work. Records expire after maxAge and the whole cache is
// capped at a fixed number of entries.
type WorkCache struct {
	items  *lru.Cache
	maxAge time.Duration

	now func() time.Time
}

func NewWorkCache(size int, maxAge time.Duration) (*WorkCache, error) {
	return newWorkCache(size, maxAge, time.Now)
}

func newWorkCache(size int, maxAge time.Duration, now func() time.Time) (*WorkCache, error) {
	items, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &WorkCache{items: items, maxAge: maxAge, now: now}, nil
}

// Add 记录任务来源, 覆盖已有记录
func (c *WorkCache) Add(fingerprint string, origin model.Credential) {
	c.items.Add(fingerprint, workRecord{origin: origin, added: c.now()})
}

// Get returns the origin of fingerprint. A miss is an unknown or stale
// submission, not a failure.
func (c *WorkCache) Get(fingerprint string) (model.Credential, bool) {
	v, ok := c.items.Get(fingerprint)
	if !ok {
		log.Debugf("Work %s not found in cache", fingerprint)
		return model.Credential{}, false
	}
	return v.(workRecord).origin, true
}

// DropAll forgets every fingerprint, used when the network block changes.
func (c *WorkCache) DropAll() {
	c.items.Purge()
}

// Prune removes records older than maxAge and returns how many went.
func (c *WorkCache) Prune() int {
	cutoff := c.now().Add(-c.maxAge)
	removed := 0
	for _, key := range c.items.Keys() {
		v, ok := c.items.Peek(key)
		if !ok {
			continue
		}
		if v.(workRecord).added.Before(cutoff) {
			c.items.Remove(key)
			removed++
		}
	}
	return removed
}

func (c *WorkCache) Len() int {
	return c.items.Len()
}
