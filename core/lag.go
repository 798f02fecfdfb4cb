package core

import (
	"context"

	mapset "github.com/deckarep/golang-set"
	"github.com/remeh/sizedwaitgroup"
	log "github.com/sirupsen/logrus"

	"bithopper/model"
)

// LagSet holds the credentials currently believed unresponsive.
type LagSet struct {
	set mapset.Set
}

func NewLagSet() *LagSet {
	return &LagSet{set: mapset.NewSet()}
}

func (l *LagSet) Add(cred model.Credential) bool {
	return l.set.Add(cred)
}

func (l *LagSet) Remove(cred model.Credential) {
	l.set.Remove(cred)
}

func (l *LagSet) Contains(cred model.Credential) bool {
	return l.set.Contains(cred)
}

func (l *LagSet) Len() int {
	return l.set.Cardinality()
}

// Entries returns a snapshot of the lagged credentials.
func (l *LagSet) Entries() []model.Credential {
	items := l.set.ToSlice()
	entries := make([]model.Credential, 0, len(items))
	for _, item := range items {
		entries = append(entries, item.(model.Credential))
	}
	return entries
}

// Prober makes one real request to a pool with cred.
type Prober func(ctx context.Context, cred model.Credential) error

// LagMonitor retries lagged credentials and clears the ones that answer.
type LagMonitor struct {
	lagged  *LagSet
	probe   Prober
	workers int
}

func NewLagMonitor(lagged *LagSet, probe Prober, workers int) *LagMonitor {
	if workers <= 0 {
		workers = 1
	}
	return &LagMonitor{lagged: lagged, probe: probe, workers: workers}
}

// Check probes every lagged credential concurrently and returns how many
// recovered. Each probe is bounded by ctx.
func (m *LagMonitor) Check(ctx context.Context) int {
	entries := m.lagged.Entries()
	if len(entries) == 0 {
		return 0
	}

	recovered := make(chan model.Credential, len(entries))
	swg := sizedwaitgroup.New(m.workers)
	for _, cred := range entries {
		swg.Add()
		go func(cred model.Credential) {
			defer swg.Done()

			if err := m.probe(ctx, cred); err != nil {
				log.WithFields(log.Fields{
					"pool": cred.Pool,
					"user": cred.Username,
				}).Debugf("Lagged pool still unresponsive: %v", err)
				return
			}
			m.lagged.Remove(cred)
			recovered <- cred
		}(cred)
	}
	swg.Wait()
	close(recovered)

	n := 0
	for cred := range recovered {
		log.WithFields(log.Fields{
			"pool": cred.Pool,
			"user": cred.Username,
		}).Info("Pool recovered from lag")
		n++
	}
	return n
}
