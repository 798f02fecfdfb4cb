package core

import (
	"fmt"
	"sort"
	"sync"

	"bithopper/config"
	"bithopper/model"
)

// CredentialStore answers which accounts exist on a pool and how the
// administrator weighted the pool.
type CredentialStore interface {
	CredentialsFor(pool string) []model.Credential
	Priority(pool string) int
	Percentage(pool string) int
	PoolsWithPercentage() []PoolPercentage
}

type PoolPercentage struct {
	Pool       string `json:"pool"`
	Percentage int    `json:"percentage"`
}

// Credentials is a CredentialStore held in memory, seeded from the config.
type Credentials struct {
	mu         sync.RWMutex
	creds      map[string][]model.Credential
	priority   map[string]int
	percentage map[string]int
}

func NewCredentials(pools []config.Pool) *Credentials {
	c := &Credentials{
		creds:      make(map[string][]model.Credential, len(pools)),
		priority:   make(map[string]int, len(pools)),
		percentage: make(map[string]int, len(pools)),
	}
	for _, p := range pools {
		seen := make(map[model.Credential]struct{}, len(p.Credentials))
		for _, cc := range p.Credentials {
			cred := model.Credential{Pool: p.Name, Username: cc.Username, Password: cc.Password}
			if _, dup := seen[cred]; dup {
				continue
			}
			seen[cred] = struct{}{}
			c.creds[p.Name] = append(c.creds[p.Name], cred)
		}
		c.priority[p.Name] = p.Priority
		c.percentage[p.Name] = p.Percentage
	}
	return c
}

func (c *Credentials) CredentialsFor(pool string) []model.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Credential(nil), c.creds[pool]...)
}

func (c *Credentials) Priority(pool string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.priority[pool]
}

func (c *Credentials) Percentage(pool string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.percentage[pool]
}

// PoolsWithPercentage returns the pools with a nonzero allocation, by name.
func (c *Credentials) PoolsWithPercentage() []PoolPercentage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []PoolPercentage
	for pool, pct := range c.percentage {
		if pct > 0 {
			out = append(out, PoolPercentage{Pool: pool, Percentage: pct})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pool < out[j].Pool })
	return out
}

func (c *Credentials) SetPriority(pool string, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priority[pool] = priority
}

func (c *Credentials) SetPercentage(pool string, percentage int) error {
	if percentage < 0 || percentage > 100 {
		return fmt.Errorf("percentage %d out of range", percentage)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.percentage[pool] = percentage
	return nil
}
