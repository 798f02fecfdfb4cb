package core

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"
)

// every runs fn on each tick until the engine closes. A failing or
// panicking iteration is logged and the loop carries on.
func (e *Engine) every(name string, interval time.Duration, fn func(ctx context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		log.Infof("Set %s loop interval to %v", name, interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.quit:
				return

			case <-ticker.C:
				e.runOnce(name, fn)
			}
		}
	}()
}

func (e *Engine) runOnce(name string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"loop":  name,
				"panic": r,
			}).Errorf("Loop iteration panicked\n%s", debug.Stack())
		}
	}()

	err := fn(e.ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoCandidates):
		log.WithField("loop", name).Warn("No pool passed selection, keeping previous candidates")
	case errors.Is(err, context.Canceled):
	default:
		log.WithField("loop", name).Errorf("Loop iteration failed: %v", err)
	}
}
