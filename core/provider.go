package core

import (
	"fmt"
	"sync"

	"bithopper/config"
	"bithopper/model"
)

// PoolProvider publishes pool metadata and network difficulty. It is
// refreshed independently of the engine.
type PoolProvider interface {
	ListPools() []*model.Pool
	GetPool(name string) (*model.Pool, bool)
	NetworkDifficulty(coin string) (float64, bool)
}

// Registry is a PoolProvider seeded from the config and updated through the
// admin API.
type Registry struct {
	mu    sync.RWMutex
	order []string
	pools map[string]*model.Pool
	coins map[string]float64
}

func NewRegistry(pools []config.Pool, coins []config.Coin) *Registry {
	r := &Registry{
		pools: make(map[string]*model.Pool, len(pools)),
		coins: make(map[string]float64, len(coins)),
	}
	for _, coin := range coins {
		r.coins[coin.Id] = coin.Difficulty
	}
	for _, p := range pools {
		r.order = append(r.order, p.Name)
		r.pools[p.Name] = &model.Pool{
			Name:          p.Name,
			Url:           p.Url,
			Scheme:        p.Scheme,
			Shares:        p.Shares,
			Coin:          p.Coin,
			ScoreConstant: p.ScoreConstant,
			RateGHS:       p.RateGHS,
		}
	}
	return r
}

// ListPools returns copies in configuration order.
func (r *Registry) ListPools() []*model.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pools := make([]*model.Pool, 0, len(r.order))
	for _, name := range r.order {
		p := *r.pools[name]
		pools = append(pools, &p)
	}
	return pools
}

func (r *Registry) GetPool(name string) (*model.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[name]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

func (r *Registry) NetworkDifficulty(coin string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	diff, ok := r.coins[coin]
	return diff, ok
}

// SetShares 更新矿池本轮份额数
func (r *Registry) SetShares(name string, shares uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[name]
	if !ok {
		return fmt.Errorf("unknown pool %q", name)
	}
	p.Shares = shares
	return nil
}

// SetDifficulty 更新网络难度
func (r *Registry) SetDifficulty(coin string, diff float64) error {
	if diff <= 0 {
		return fmt.Errorf("invalid difficulty %v", diff)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.coins[coin] = diff
	return nil
}
