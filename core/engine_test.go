package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"bithopper/config"
	"bithopper/model"
)

func TestEngineGetWorkAndSubmit(t *testing.T) {
	e := newTestEngine(t, []config.Pool{testPool("A", model.SchemePplns, 0, "a")}, testCoins(500))
	e.upstream.setWork("A", workData("1", "a"))
	if err := e.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	ctx := context.Background()
	work, err := e.GetWork(ctx)
	if err != nil {
		t.Fatalf("GetWork: %v", err)
	}
	if e.cache.Len() != 1 {
		t.Fatalf("cached work = %d, want 1", e.cache.Len())
	}
	origin, ok := e.cache.Get(strings.Repeat("a", 64))
	if !ok || origin.Pool != "A" || origin.Username != "a" {
		t.Fatalf("origin = %+v, %v", origin, ok)
	}

	accepted, err := e.Submit(ctx, work.Data)
	if err != nil || !accepted {
		t.Fatalf("Submit = %v, %v; want accepted", accepted, err)
	}
	if got := e.Status().Summary["A"]["a:x"]; got != [3]uint64{1, 1, 0} {
		t.Fatalf("summary = %v, want [1 1 0]", got)
	}
}

func TestEngineSubmitUnknownWork(t *testing.T) {
	e := newTestEngine(t, []config.Pool{testPool("A", model.SchemePplns, 0, "a")}, testCoins(500))

	ctx := context.Background()
	if _, err := e.Submit(ctx, workData("1", "b")); !errors.Is(err, ErrUnknownWork) {
		t.Fatalf("Submit err = %v, want ErrUnknownWork", err)
	}
	if _, err := e.Submit(ctx, "abcd"); !errors.Is(err, ErrUnknownWork) {
		t.Fatalf("Submit err = %v, want ErrUnknownWork", err)
	}
	if len(e.upstream.submits) != 0 {
		t.Fatal("unknown work reached the upstream")
	}
}

func TestEngineSubmitRejected(t *testing.T) {
	e := newTestEngine(t, []config.Pool{testPool("A", model.SchemePplns, 0, "a")}, testCoins(500))
	e.upstream.setWork("A", workData("1", "a"))
	e.upstream.accept = false
	if err := e.Rebuild(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	work, err := e.GetWork(ctx)
	if err != nil {
		t.Fatal(err)
	}
	accepted, err := e.Submit(ctx, work.Data)
	if err != nil || accepted {
		t.Fatalf("Submit = %v, %v; want rejected", accepted, err)
	}
	if got := e.Status().Summary["A"]["a:x"]; got != [3]uint64{1, 0, 1} {
		t.Fatalf("summary = %v, want [1 0 1]", got)
	}
}

func TestEngineSubmitUpstreamFailure(t *testing.T) {
	e := newTestEngine(t, []config.Pool{testPool("A", model.SchemePplns, 0, "a")}, testCoins(500))
	e.upstream.setWork("A", workData("1", "a"))
	if err := e.Rebuild(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	work, err := e.GetWork(ctx)
	if err != nil {
		t.Fatal(err)
	}
	e.upstream.setFail("A", true)

	var uerr *UpstreamError
	if _, err := e.Submit(ctx, work.Data); !errors.As(err, &uerr) {
		t.Fatalf("Submit err = %v, want UpstreamError", err)
	}
	if !e.lagged.Contains(model.Credential{Pool: "A", Username: "a", Password: "x"}) {
		t.Fatal("failing credential not lagged")
	}
	if got := e.Status().Summary["A"]["a:x"]; got != [3]uint64{1, 0, 1} {
		t.Fatalf("summary = %v, want [1 0 1]", got)
	}
}

func TestEngineFallsBackOnUpstreamError(t *testing.T) {
	a := testPool("A", model.SchemePplns, 0, "a")
	a.Priority = 1
	b := testPool("B", model.SchemePplns, 0, "b")
	e := newTestEngine(t, []config.Pool{a, b}, testCoins(500))
	e.upstream.setWork("B", workData("1", "b"))
	if err := e.Rebuild(); err != nil {
		t.Fatal(err)
	}
	if got := e.Status().Candidates; !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("candidates = %v, want [A]", got)
	}

	if _, err := e.GetWork(context.Background()); err != nil {
		t.Fatalf("GetWork: %v", err)
	}
	if origin, ok := e.cache.Get(strings.Repeat("b", 64)); !ok || origin.Pool != "B" {
		t.Fatalf("work came from %+v, want B", origin)
	}
	credA := model.Credential{Pool: "A", Username: "a", Password: "x"}
	if !e.lagged.Contains(credA) {
		t.Fatal("A not lagged")
	}
	if got := e.Status().Candidates; !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("candidates = %v, want [B]", got)
	}

	// A 恢复后重新成为候选
	e.upstream.setWork("A", workData("1", "a"))
	if n := e.monitor.Check(context.Background()); n != 1 {
		t.Fatalf("recovered %d, want 1", n)
	}
	if err := e.Rebuild(); err != nil {
		t.Fatal(err)
	}
	if got := e.Status().Candidates; !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("candidates = %v, want [A]", got)
	}
}

func TestEngineTriesNextCredential(t *testing.T) {
	e := newTestEngine(t, []config.Pool{testPool("A", model.SchemePplns, 0, "a1", "a2")}, testCoins(500))
	e.upstream.setWork("A", workData("1", "a"))
	e.upstream.badUser["a1"] = true
	if err := e.Rebuild(); err != nil {
		t.Fatal(err)
	}

	if _, err := e.GetWork(context.Background()); err != nil {
		t.Fatalf("GetWork: %v", err)
	}
	origin, _ := e.cache.Get(strings.Repeat("a", 64))
	if origin.Username != "a2" {
		t.Fatalf("work issued for %q, want a2", origin.Username)
	}
	if !e.lagged.Contains(model.Credential{Pool: "A", Username: "a1", Password: "x"}) {
		t.Fatal("a1 not lagged")
	}
}

func TestEngineNoWork(t *testing.T) {
	e := newTestEngine(t, []config.Pool{testPool("A", model.SchemePplns, 0, "a")}, testCoins(500))
	if err := e.Rebuild(); err != nil {
		t.Fatal(err)
	}

	if _, err := e.GetWork(context.Background()); !errors.Is(err, ErrNoWork) {
		t.Fatalf("GetWork err = %v, want ErrNoWork", err)
	}
	// 全部滞后时保留上一次的候选集
	if got := e.Status().Candidates; !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("candidates = %v, want [A]", got)
	}
}

func TestEngineGetWorkCancelled(t *testing.T) {
	e := newTestEngine(t, []config.Pool{testPool("A", model.SchemePplns, 0, "a")}, testCoins(500))
	e.upstream.setWork("A", workData("1", "a"))
	if err := e.Rebuild(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.GetWork(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("GetWork err = %v, want context.Canceled", err)
	}
	if e.lagged.Len() != 0 {
		t.Fatal("cancelled request lagged a pool")
	}
}

func TestEngineNewBlock(t *testing.T) {
	e := newTestEngine(t, []config.Pool{testPool("A", model.SchemePplns, 0, "a")}, testCoins(500))
	e.upstream.setWork("A", workData("1", "a"))
	if err := e.Rebuild(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	first, err := e.GetWork(ctx)
	if err != nil {
		t.Fatal(err)
	}

	woken := make(chan string, 1)
	go func() {
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		payload, _ := e.WaitLongPoll(wctx)
		woken <- payload
	}()
	time.Sleep(50 * time.Millisecond)

	e.upstream.setWork("A", workData("2", "b"))
	if _, err := e.GetWork(ctx); err != nil {
		t.Fatal(err)
	}
	if payload := <-woken; payload != strings.Repeat("2", 64) {
		t.Fatalf("long-poll payload = %q", payload)
	}
	if e.cache.Len() != 1 {
		t.Fatalf("cached work = %d, want 1", e.cache.Len())
	}
	if _, err := e.Submit(ctx, first.Data); !errors.Is(err, ErrUnknownWork) {
		t.Fatalf("stale submit err = %v, want ErrUnknownWork", err)
	}

	// 迟到的旧区块任务不触发新区块
	e.upstream.setWork("A", workData("1", "c"))
	if _, err := e.GetWork(ctx); err != nil {
		t.Fatal(err)
	}
	if e.cache.Len() != 2 {
		t.Fatalf("cached work = %d, want 2", e.cache.Len())
	}
	wctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := e.WaitLongPoll(wctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitLongPoll err = %v, want deadline exceeded", err)
	}
}

func TestEngineStartLoadsAndCloseFlushes(t *testing.T) {
	e := newTestEngine(t, []config.Pool{testPool("A", model.SchemePplns, 0, "a")}, testCoins(500))
	cred := model.Credential{Pool: "A", Username: "a", Password: "x"}
	key := model.StatKey{Credential: cred, Difficulty: 500}
	_ = e.store.UpsertStat(context.Background(), &model.Stat{
		Pool: "A", Username: "a", Password: "x", Difficulty: 500, Issued: 4,
	})
	e.upstream.setWork("A", workData("1", "a"))

	e.Start()
	if got := e.Status().Candidates; !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("candidates after Start = %v", got)
	}
	if _, err := e.GetWork(context.Background()); err != nil {
		t.Fatal(err)
	}
	e.Close()

	row, ok := e.store.row(key)
	if !ok || row.Issued != 5 {
		t.Fatalf("row after Close = %+v, %v; want issued 5", row, ok)
	}
}

func TestEngineConcurrentRequests(t *testing.T) {
	pools := []config.Pool{
		testPool("A", model.SchemePplns, 0, "a1", "a2"),
		testPool("B", model.SchemePplns, 0, "b"),
	}
	e := newTestEngine(t, pools, testCoins(500))
	e.upstream.setWork("A", workData("1", "a"))
	e.upstream.setWork("B", workData("1", "b"))
	if err := e.Rebuild(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				work, err := e.GetWork(context.Background())
				if err != nil {
					t.Errorf("GetWork: %v", err)
					return
				}
				if _, err := e.Submit(context.Background(), work.Data); err != nil {
					t.Errorf("Submit: %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			_ = e.Rebuild()
			_ = e.Status()
		}
	}()
	wg.Wait()

	var issued, accepted uint64
	for _, users := range e.Status().Summary {
		for _, c := range users {
			issued += c[0]
			accepted += c[1]
		}
	}
	if issued != 160 || accepted != 160 {
		t.Fatalf("issued %d accepted %d, want 160 each", issued, accepted)
	}
	if e.upstream.getCount("A") == 0 || e.upstream.getCount("B") == 0 {
		t.Fatal("round robin did not reach both pools")
	}
}

// slowInfoHook stalls every info entry, like a logger writing to a slow disk.
type slowInfoHook struct{}

func (slowInfoHook) Levels() []log.Level { return []log.Level{log.InfoLevel} }

func (slowInfoHook) Fire(*log.Entry) error {
	time.Sleep(2 * time.Millisecond)
	return nil
}

func TestEngineConcurrentIssueOnNewBlock(t *testing.T) {
	hooks := log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	t.Cleanup(func() { log.StandardLogger().ReplaceHooks(hooks) })
	log.AddHook(slowInfoHook{})

	e := newTestEngine(t, []config.Pool{testPool("A", model.SchemePplns, 0, "a")}, testCoins(500))
	cred := model.Credential{Pool: "A", Username: "a", Password: "x"}

	headerWith := func(prev, merkle string) *model.Work {
		return &model.Work{Data: "00000001" + prev + merkle + strings.Repeat("0", 120), Target: "ffff"}
	}

	for trial := 0; trial < 20; trial++ {
		oldBlock := fmt.Sprintf("%064x", 2*trial+1)
		newBlock := fmt.Sprintf("%064x", 2*trial+2)
		if err := e.issue(headerWith(oldBlock, fmt.Sprintf("%064x", 0xa)), cred); err != nil {
			t.Fatal(err)
		}

		merkles := []string{fmt.Sprintf("%060x%04d", trial, 1), fmt.Sprintf("%060x%04d", trial, 2)}
		var wg sync.WaitGroup
		for i, merkle := range merkles {
			wg.Add(1)
			go func(delay time.Duration, merkle string) {
				defer wg.Done()
				time.Sleep(delay)
				if err := e.issue(headerWith(newBlock, merkle), cred); err != nil {
					t.Error(err)
				}
			}(time.Duration(i)*500*time.Microsecond, merkle)
		}
		wg.Wait()

		for _, merkle := range merkles {
			if _, ok := e.cache.Get(merkle); !ok {
				t.Fatalf("trial %d: new-block work %s missing from cache", trial, merkle)
			}
		}
	}
}
