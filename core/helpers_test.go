package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"bithopper/config"
	"bithopper/model"
)

// workData builds 128 bytes of getwork data whose previous-block hash is
// prev repeated and whose merkle section is merkle repeated.
func workData(prev, merkle string) string {
	return "00000001" + strings.Repeat(prev, 64) + strings.Repeat(merkle, 64) + strings.Repeat("0", 120)
}

type fakeUpstream struct {
	mu sync.Mutex

	// data per pool name; a missing pool fails
	work    map[string]string
	fail    map[string]bool
	badUser map[string]bool
	accept  bool
	gets    map[string]int
	submits []string
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		work:    make(map[string]string),
		fail:    make(map[string]bool),
		badUser: make(map[string]bool),
		gets:    make(map[string]int),
		accept:  true,
	}
}

func (f *fakeUpstream) setWork(pool, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.work[pool] = data
}

func (f *fakeUpstream) setFail(pool string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[pool] = fail
}

func (f *fakeUpstream) getCount(pool string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[pool]
}

func (f *fakeUpstream) GetWork(_ context.Context, pool *model.Pool, cred model.Credential) (*model.Work, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gets[pool.Name]++
	data, ok := f.work[pool.Name]
	if !ok || f.fail[pool.Name] || f.badUser[cred.Username] {
		return nil, &UpstreamError{Credential: cred, Err: errors.New("connection refused")}
	}
	return &model.Work{Data: data, Target: "ffff"}, nil
}

func (f *fakeUpstream) SubmitWork(_ context.Context, pool *model.Pool, cred model.Credential, data string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail[pool.Name] {
		return false, &UpstreamError{Credential: cred, Err: errors.New("connection refused")}
	}
	f.submits = append(f.submits, pool.Name)
	return f.accept, nil
}

type memStore struct {
	mu      sync.Mutex
	rows    map[model.StatKey]model.Stat
	upserts int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[model.StatKey]model.Stat)}
}

func (m *memStore) UpsertStat(_ context.Context, stat *model.Stat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[stat.Key()] = *stat
	m.upserts++
	return nil
}

func (m *memStore) Stats(_ context.Context) ([]*model.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats []*model.Stat
	for _, row := range m.rows {
		row := row
		stats = append(stats, &row)
	}
	return stats, nil
}

func (m *memStore) Close() error {
	return nil
}

func (m *memStore) row(key model.StatKey) (model.Stat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	return row, ok
}

func floatPtr(v float64) *float64 {
	return &v
}

func testPool(name, scheme string, shares uint64, users ...string) config.Pool {
	p := config.Pool{
		Name:   name,
		Url:    "http://" + name + ".example",
		Scheme: scheme,
		Coin:   "btc",
		Shares: shares,
	}
	for _, user := range users {
		p.Credentials = append(p.Credentials, config.Credential{Username: user, Password: "x"})
	}
	return p
}

func testCoins(diff float64) []config.Coin {
	return []config.Coin{{Id: "btc", Difficulty: diff}}
}

type testEngine struct {
	*Engine
	registry    *Registry
	credentials *Credentials
	upstream    *fakeUpstream
	store       *memStore
}

func newTestEngine(t *testing.T, pools []config.Pool, coins []config.Coin) *testEngine {
	t.Helper()

	registry := NewRegistry(pools, coins)
	credentials := NewCredentials(pools)
	upstream := newFakeUpstream()
	store := newMemStore()

	cfg := config.Default().Engine
	e, err := NewEngine(&cfg, registry, credentials, upstream, store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.selector.rnd = func(int) int { return 0 }
	t.Cleanup(e.Close)

	return &testEngine{
		Engine:      e,
		registry:    registry,
		credentials: credentials,
		upstream:    upstream,
		store:       store,
	}
}
