package core

import (
	"errors"
	"fmt"

	"bithopper/model"
)

var (
	// ErrNoCandidates 没有矿池通过筛选
	ErrNoCandidates = errors.New("no valid pools")
	// ErrNoWork is what a miner sees when no upstream handed out work.
	ErrNoWork = errors.New("no work available")
	// ErrUnknownWork marks a submission whose fingerprint was never issued,
	// has been evicted, or belongs to a previous block.
	ErrUnknownWork = errors.New("unknown or stale work")
)

// UpstreamError wraps any transport or protocol failure talking to a pool.
type UpstreamError struct {
	Credential model.Credential
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s (%s): %v", e.Credential.Pool, e.Credential.Username, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
