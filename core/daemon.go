package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/mitchellh/mapstructure"

	"bithopper/config"
	"bithopper/jsonrpc"
	"bithopper/model"
	"bithopper/util"
)

// Upstream fetches and submits getwork on behalf of a credential.
type Upstream interface {
	GetWork(ctx context.Context, pool *model.Pool, cred model.Credential) (*model.Work, error)
	SubmitWork(ctx context.Context, pool *model.Pool, cred model.Credential, data string) (bool, error)
}

// Daemon speaks getwork JSON-RPC over HTTP to upstream pools.
type Daemon struct {
	client  *http.Client
	timeout time.Duration
}

// NewDaemon
func NewDaemon(cfg *config.Upstream) *Daemon {
	return &Daemon{
		client:  &http.Client{},
		timeout: util.MustParseDuration(cfg.Timeout),
	}
}

// GetWork delegates to `getwork` with no params, and returns fresh work
func (d *Daemon) GetWork(ctx context.Context, pool *model.Pool, cred model.Credential) (*model.Work, error) {
	data, err := d.sendHttpRequest(ctx, pool, cred, jsonrpc.NewGetWork(1))
	if err != nil {
		return nil, &UpstreamError{Credential: cred, Err: err}
	}

	var work model.Work
	if err := mapstructure.Decode(data, &work); err != nil {
		return nil, &UpstreamError{Credential: cred, Err: fmt.Errorf("decode work: %w", err)}
	}
	if work.Data == "" {
		return nil, &UpstreamError{Credential: cred, Err: errors.New("work without data")}
	}
	return &work, nil
}

// SubmitWork delegates to `getwork` with the solved data, and returns whether the pool accepted it
func (d *Daemon) SubmitWork(ctx context.Context, pool *model.Pool, cred model.Credential, data string) (bool, error) {
	result, err := d.sendHttpRequest(ctx, pool, cred, jsonrpc.NewGetWork(1, data))
	if err != nil {
		return false, &UpstreamError{Credential: cred, Err: err}
	}

	accepted, ok := result.(bool)
	if !ok {
		return false, &UpstreamError{Credential: cred, Err: fmt.Errorf("unexpected submit result %v", result)}
	}
	return accepted, nil
}

// sendHttpRequest 发送请求
func (d *Daemon) sendHttpRequest(ctx context.Context, pool *model.Pool, cred model.Credential, rpcReq jsonrpc.Request) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pool.Url, bytes.NewBuffer(jsonrpc.MarshalRequest(rpcReq)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(cred.Username, cred.Password)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// Additional error check
	parsedData, err := jsonrpc.UnmarshalResponse(data)
	if err != nil {
		return nil, errors.New("Unable to unmarshal pool's resp (" + string(data) + ")")
	}

	if parsedData.Error != nil {
		return nil, errors.New("Unexpected pool resp: " + string(data))
	}

	return parsedData.Result, nil
}
