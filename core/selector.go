package core

import (
	"math"
	"math/rand"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"bithopper/model"
)

const (
	propCutoffRatio      = 0.435
	defaultScoreConstant = 300.0
	defaultRateGHS       = 1.0
)

// DifficultyCutoff is the round share count past which mining on a hoppable
// pool stops paying better than a secure one.
func DifficultyCutoff(pool *model.Pool, diff float64) float64 {
	switch pool.Scheme {
	case model.SchemeProp:
		return diff * propCutoffRatio
	case model.SchemeScore:
		c := defaultScoreConstant
		if pool.ScoreConstant != nil {
			c = *pool.ScoreConstant
		}
		ghs := defaultRateGHS
		if pool.RateGHS != nil && *pool.RateGHS > 0 {
			ghs = *pool.RateGHS
		}
		return diff * (0.0164293 + 1.14254/(1.8747*(diff/(c*ghs))+math.E))
	}
	return 0
}

// Selector is the pool selection pipeline. Rebuild filters and ranks the
// pools into a candidate set published by one pointer swap; Select reads it.
type Selector struct {
	provider PoolProvider
	creds    CredentialStore
	lagged   *LagSet

	candidates atomic.Pointer[[]string]
	cursor     uint64

	rnd func(n int) int
}

func NewSelector(provider PoolProvider, creds CredentialStore, lagged *LagSet) *Selector {
	s := &Selector{
		provider: provider,
		creds:    creds,
		lagged:   lagged,
		rnd:      rand.Intn,
	}
	s.candidates.Store(&[]string{})
	return s
}

// Rebuild runs one pass of the filter chain. On ErrNoCandidates the live
// candidate set is left untouched.
func (s *Selector) Rebuild() ([]string, error) {
	pools := s.filterCredentials(s.provider.ListPools())
	pools = s.filterSchemes(pools)
	pools = s.filterPriority(pools)
	pools = s.filterBest(pools)
	if len(pools) == 0 {
		return nil, ErrNoCandidates
	}

	names := make([]string, 0, len(pools))
	for _, pool := range pools {
		names = append(names, pool.Name)
	}
	s.candidates.Store(&names)
	return names, nil
}

// Candidates returns the live candidate set. Callers must not modify it.
func (s *Selector) Candidates() []string {
	return *s.candidates.Load()
}

// Select picks the pool for the next request: a configured percentage
// override first, then round robin over the candidate set.
func (s *Selector) Select() (string, error) {
	if name, ok := s.selectPercentage(); ok {
		return name, nil
	}

	candidates := s.Candidates()
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	n := atomic.AddUint64(&s.cursor, 1) - 1
	return candidates[n%uint64(len(candidates))], nil
}

// selectPercentage 每个百分点约 1% 的概率
func (s *Selector) selectPercentage() (string, bool) {
	var weighted []string
	for _, pp := range s.creds.PoolsWithPercentage() {
		if pp.Percentage <= 0 || len(s.UsableCredentials(pp.Pool)) == 0 {
			continue
		}
		for i := 0; i < pp.Percentage; i++ {
			weighted = append(weighted, pp.Pool)
		}
	}
	if len(weighted) == 0 || s.rnd(100) >= len(weighted) {
		return "", false
	}
	return weighted[s.rnd(len(weighted))], true
}

// UsableCredentials returns the pool's credentials that are not lagged.
func (s *Selector) UsableCredentials(pool string) []model.Credential {
	var usable []model.Credential
	for _, cred := range s.creds.CredentialsFor(pool) {
		if !s.lagged.Contains(cred) {
			usable = append(usable, cred)
		}
	}
	return usable
}

func (s *Selector) filterCredentials(pools []*model.Pool) []*model.Pool {
	var kept []*model.Pool
	for _, pool := range pools {
		if len(s.UsableCredentials(pool.Name)) > 0 {
			kept = append(kept, pool)
		}
	}
	return kept
}

func (s *Selector) filterSchemes(pools []*model.Pool) []*model.Pool {
	var kept []*model.Pool
	for _, pool := range pools {
		switch {
		case pool.IsSecure():
			kept = append(kept, pool)
		case pool.IsHoppable():
			diff, ok := s.provider.NetworkDifficulty(pool.Coin)
			if !ok {
				log.Debugf("No network difficulty for %s, skipping %s", pool.Coin, pool.Name)
				continue
			}
			if float64(pool.Shares) < DifficultyCutoff(pool, diff) {
				kept = append(kept, pool)
			}
		default:
			log.Debugf("Pool %s has unknown scheme %q", pool.Name, pool.Scheme)
		}
	}
	return kept
}

func (s *Selector) filterPriority(pools []*model.Pool) []*model.Pool {
	if len(pools) == 0 {
		return pools
	}
	top := s.creds.Priority(pools[0].Name)
	for _, pool := range pools[1:] {
		if p := s.creds.Priority(pool.Name); p > top {
			top = p
		}
	}

	var kept []*model.Pool
	for _, pool := range pools {
		if s.creds.Priority(pool.Name) == top {
			kept = append(kept, pool)
		}
	}
	return kept
}

func (s *Selector) filterBest(pools []*model.Pool) []*model.Pool {
	var (
		best   []*model.Pool
		lowest = math.Inf(1)
		secure []*model.Pool
	)
	for _, pool := range pools {
		if !pool.IsHoppable() {
			secure = append(secure, pool)
			continue
		}
		diff, _ := s.provider.NetworkDifficulty(pool.Coin)
		ratio := float64(pool.Shares) / DifficultyCutoff(pool, diff)
		switch {
		case ratio < lowest:
			lowest = ratio
			best = []*model.Pool{pool}
		case ratio == lowest:
			best = append(best, pool)
		}
	}
	if len(best) > 0 {
		return best
	}
	return secure
}
