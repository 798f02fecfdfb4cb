package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"bithopper/config"
	"bithopper/model"
	"bithopper/util"
)

const (
	// blockHistory 每个币种保留的最近区块数, 用于识别迟到的旧任务
	blockHistory = 8

	closeFlushTimeout = 10 * time.Second
)

// Engine owns every piece of mutable routing state: candidate set, lag set,
// work cache, counters and the long-poll generation.
type Engine struct {
	provider PoolProvider
	upstream Upstream

	selector *Selector
	lagged   *LagSet
	monitor  *LagMonitor
	cache    *WorkCache
	stats    *StatTracker
	meter    *HashrateMeter
	longpoll *Broadcaster

	rebuildInterval  time.Duration
	lagInterval      time.Duration
	pruneInterval    time.Duration
	flushInterval    time.Duration
	hashrateInterval time.Duration

	blockMu sync.Mutex
	blocks  map[string][]string

	started time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewEngine
func NewEngine(cfg *config.Engine, provider PoolProvider, creds CredentialStore, upstream Upstream, store StatStore) (*Engine, error) {
	cache, err := NewWorkCache(cfg.WorkCacheSize, util.MustParseDuration(cfg.WorkMaxAge))
	if err != nil {
		return nil, fmt.Errorf("work cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		provider: provider,
		upstream: upstream,

		lagged:   NewLagSet(),
		cache:    cache,
		meter:    NewHashrateMeter(),
		longpoll: NewBroadcaster(),

		rebuildInterval:  util.MustParseDuration(cfg.RebuildInterval),
		lagInterval:      util.MustParseDuration(cfg.LagInterval),
		pruneInterval:    util.MustParseDuration(cfg.PruneInterval),
		flushInterval:    util.MustParseDuration(cfg.FlushInterval),
		hashrateInterval: util.MustParseDuration(cfg.HashrateInterval),

		blocks: make(map[string][]string),

		ctx:    ctx,
		cancel: cancel,
		quit:   make(chan struct{}),
	}
	e.selector = NewSelector(provider, creds, e.lagged)
	e.monitor = NewLagMonitor(e.lagged, e.probe, cfg.LagProbeWorkers)
	e.stats = NewStatTracker(store, e.poolDifficulty, e.meter)
	return e, nil
}

// Start loads persisted counters, publishes a first candidate set and
// starts the background loops.
func (e *Engine) Start() {
	e.started = time.Now()

	if err := e.stats.Load(e.ctx); err != nil {
		log.Errorf("Unable to load stats: %v", err)
	}
	e.runOnce("rebuild", e.rebuild)

	e.every("rebuild", e.rebuildInterval, e.rebuild)
	e.every("lag", e.lagInterval, func(ctx context.Context) error {
		e.monitor.Check(ctx)
		return nil
	})
	e.every("prune", e.pruneInterval, func(ctx context.Context) error {
		if n := e.cache.Prune(); n > 0 {
			log.Debugf("Pruned %d work records", n)
		}
		return nil
	})
	e.every("flush", e.flushInterval, e.stats.Flush)
	e.every("hashrate", e.hashrateInterval, func(ctx context.Context) error {
		log.Debugf("Hashrate %.2f MH/s", e.meter.Tick())
		return nil
	})
}

// Close stops the loops and flushes the counters one last time.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.quit)
		e.cancel()

		// 等待后台任务退出
		e.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
		defer cancel()
		if err := e.stats.Flush(ctx); err != nil {
			log.Errorf("Final stats flush failed: %v", err)
		}
	})
}

func (e *Engine) rebuild(ctx context.Context) error {
	candidates, err := e.selector.Rebuild()
	if err != nil {
		return err
	}
	log.Debugf("Candidate pools: %v", candidates)
	return nil
}

// Rebuild runs one selection pass now, e.g. after an admin update.
func (e *Engine) Rebuild() error {
	return e.rebuild(e.ctx)
}

// GetWork routes one getwork request. A credential whose pool fails is
// lagged and the next selection is tried, at most once per credential.
func (e *Engine) GetWork(ctx context.Context) (*model.Work, error) {
	attempts := e.attempts()
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name, err := e.selector.Select()
		if err != nil {
			log.Warnf("Unable to select pool: %v", err)
			break
		}
		pool, ok := e.provider.GetPool(name)
		if !ok {
			continue
		}
		usable := e.selector.UsableCredentials(name)
		if len(usable) == 0 {
			continue
		}
		cred := usable[e.selector.rnd(len(usable))]

		work, err := e.upstream.GetWork(ctx, pool, cred)
		if err == nil {
			err = e.issue(work, cred)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var uerr *UpstreamError
			if !errors.As(err, &uerr) {
				uerr = &UpstreamError{Credential: cred, Err: err}
			}
			e.markLagged(uerr)
			continue
		}

		log.WithFields(log.Fields{
			"pool": cred.Pool,
			"user": cred.Username,
			"diff": util.Target2diff(work.Target),
		}).Debug("Issued work")
		return work, nil
	}
	return nil, ErrNoWork
}

func (e *Engine) attempts() int {
	n := 0
	for _, pool := range e.provider.ListPools() {
		n += len(e.selector.creds.CredentialsFor(pool.Name))
	}
	return n
}

// issue records where work came from and reacts to a new network block.
func (e *Engine) issue(work *model.Work, cred model.Credential) error {
	fingerprint, err := util.ExtractMerkleRoot(work.Data)
	if err != nil {
		return err
	}
	prefix, err := util.ExtractBlockPrefix(work.Data)
	if err != nil {
		return err
	}

	var coin string
	var seen blockSeen
	pool, ok := e.provider.GetPool(cred.Pool)

	// 清空缓存与登记新任务必须在同一临界区, 否则并发请求的新区块任务会被清掉
	e.blockMu.Lock()
	if ok {
		coin = pool.Coin
		seen = e.observeBlockLocked(coin, prefix)
	}
	e.cache.Add(fingerprint, cred)
	e.blockMu.Unlock()

	switch seen {
	case blockFirst:
		log.Infof("Current %s block %s", coin, prefix)
	case blockNew:
		log.Infof("New %s block %s", coin, prefix)
		e.longpoll.Trigger(prefix)
	}
	e.stats.AddIssued(cred)
	return nil
}

type blockSeen int

const (
	blockKnown blockSeen = iota
	blockFirst
	blockNew
)

// observeBlockLocked records prefix in the coin's history and drops the
// work cache when the coin moves to a block not seen before. Late work
// carrying a recent previous block is ignored. blockMu must be held.
func (e *Engine) observeBlockLocked(coin, prefix string) blockSeen {
	history := e.blocks[coin]
	for _, seen := range history {
		if seen == prefix {
			return blockKnown
		}
	}
	first := len(history) == 0
	history = append([]string{prefix}, history...)
	if len(history) > blockHistory {
		history = history[:blockHistory]
	}
	e.blocks[coin] = history

	if first {
		return blockFirst
	}
	e.cache.DropAll()
	return blockNew
}

// Submit forwards solved work to the pool that issued it.
func (e *Engine) Submit(ctx context.Context, data string) (bool, error) {
	fingerprint, err := util.ExtractMerkleRoot(data)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnknownWork, err)
	}
	cred, ok := e.cache.Get(fingerprint)
	if !ok {
		log.Infof("Rejecting submission of unknown work %s", fingerprint)
		return false, ErrUnknownWork
	}
	pool, ok := e.provider.GetPool(cred.Pool)
	if !ok {
		return false, ErrUnknownWork
	}

	accepted, err := e.upstream.SubmitWork(ctx, pool, cred, data)
	if err != nil {
		e.stats.AddRejected(cred)
		var uerr *UpstreamError
		if ctx.Err() == nil && errors.As(err, &uerr) {
			e.markLagged(uerr)
		}
		return false, err
	}

	fields := log.Fields{"pool": cred.Pool, "user": cred.Username}
	if accepted {
		e.stats.AddAccepted(cred)
		log.WithFields(fields).Info("Share accepted")
	} else {
		e.stats.AddRejected(cred)
		log.WithFields(fields).Info("Share rejected")
	}
	return accepted, nil
}

// WaitLongPoll blocks until the next new block or until ctx ends.
func (e *Engine) WaitLongPoll(ctx context.Context) (string, error) {
	return e.longpoll.Wait(ctx)
}

func (e *Engine) markLagged(err *UpstreamError) {
	if e.lagged.Add(err.Credential) {
		log.WithFields(log.Fields{
			"pool": err.Credential.Pool,
			"user": err.Credential.Username,
		}).Warnf("Pool marked as lagged: %v", err.Err)

		// 立即重建, 避免后续请求继续选中该矿池
		if rerr := e.rebuild(e.ctx); rerr != nil && !errors.Is(rerr, ErrNoCandidates) {
			log.Errorf("Rebuild after lag failed: %v", rerr)
		}
	}
}

func (e *Engine) probe(ctx context.Context, cred model.Credential) error {
	pool, ok := e.provider.GetPool(cred.Pool)
	if !ok {
		return fmt.Errorf("unknown pool %q", cred.Pool)
	}
	_, err := e.upstream.GetWork(ctx, pool, cred)
	return err
}

func (e *Engine) poolDifficulty(name string) (float64, bool) {
	pool, ok := e.provider.GetPool(name)
	if !ok {
		return 0, false
	}
	return e.provider.NetworkDifficulty(pool.Coin)
}

// Status is a point-in-time view of the engine for the admin API.
type Status struct {
	Candidates []string                        `json:"candidates"`
	Lagged     []model.Credential              `json:"lagged"`
	Hashrate   float64                         `json:"hashrate"`
	CachedWork int                             `json:"cachedWork"`
	Summary    map[string]map[string][3]uint64 `json:"summary"`
	Started    time.Time                       `json:"started"`
}

func (e *Engine) Status() Status {
	return Status{
		Candidates: e.selector.Candidates(),
		Lagged:     e.lagged.Entries(),
		Hashrate:   e.meter.Rate(),
		CachedWork: e.cache.Len(),
		Summary:    e.stats.Summary(),
		Started:    e.started,
	}
}
