package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/hako/durafmt"
	log "github.com/sirupsen/logrus"

	"bithopper/config"
	"bithopper/jsonrpc"
	"bithopper/util"
)

const (
	MaxReqSize = 64 * 1024

	longPollPath     = "/LP"
	shutdownTimeout  = 5 * time.Second
	errCodeNoWork    = -1
	errCodeBadMethod = -32601
	errCodeBadParams = -32602
)

// HttpServer serves getwork and long-poll to miners plus a JSON admin API.
type HttpServer struct {
	*mux.Router

	engine      *Engine
	registry    *Registry
	credentials *Credentials

	listen          string
	longPollTimeout time.Duration

	srv *http.Server
	wg  sync.WaitGroup
}

func NewHttpServer(cfg *config.Server, engine *Engine, registry *Registry, credentials *Credentials) *HttpServer {
	h := &HttpServer{
		Router: mux.NewRouter(),

		engine:      engine,
		registry:    registry,
		credentials: credentials,

		listen:          cfg.Listen,
		longPollTimeout: util.MustParseDuration(cfg.LongPollTimeout),
	}

	h.HandleFunc("/", h.getWorkFunc).Methods(http.MethodPost)
	h.HandleFunc(longPollPath, h.longPollFunc).Methods(http.MethodGet, http.MethodPost)

	api := h.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", h.statsFunc).Methods(http.MethodGet)
	api.HandleFunc("/pools", h.poolsFunc).Methods(http.MethodGet)
	api.HandleFunc("/pools/{name}/shares", h.sharesFunc).Methods(http.MethodPost)
	api.HandleFunc("/pools/{name}/percentage", h.percentageFunc).Methods(http.MethodPost)
	api.HandleFunc("/pools/{name}/priority", h.priorityFunc).Methods(http.MethodPost)
	api.HandleFunc("/coins/{coin}/difficulty", h.difficultyFunc).Methods(http.MethodPost)

	return h
}

// Start binds the listen address and serves in the background.
func (h *HttpServer) Start() error {
	ln, err := net.Listen("tcp", h.listen)
	if err != nil {
		return err
	}
	h.srv = &http.Server{Handler: h}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		log.Infof("Getwork server listening on %s", ln.Addr())
		if err := h.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("Getwork server stopped: %v", err)
		}
	}()
	return nil
}

func (h *HttpServer) Close() {
	if h.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		log.Warnf("Getwork server shutdown: %v", err)
	}
	h.wg.Wait()
}

// getWorkFunc 处理 getwork: 无参数取任务, 一个参数提交任务
func (h *HttpServer) getWorkFunc(w http.ResponseWriter, r *http.Request) {
	data, err := ioutil.ReadAll(io.LimitReader(r.Body, MaxReqSize))
	if err != nil {
		log.Debugf("Unable to read getwork request: %v", err)
		return
	}

	req, err := jsonrpc.UnmarshalRequest(data)
	if err != nil {
		h.writeRPC(w, nil, nil, &jsonrpc.Error{Code: errCodeBadParams, Message: "invalid request"})
		return
	}
	if req.Method != jsonrpc.MethodGetWork {
		h.writeRPC(w, req.Id, nil, &jsonrpc.Error{Code: errCodeBadMethod, Message: "Method not found"})
		return
	}

	w.Header().Set("X-Long-Polling", longPollPath)
	switch len(req.Params) {
	case 0:
		h.sendWork(r.Context(), w, req.Id)
	case 1:
		accepted, err := h.engine.Submit(r.Context(), req.Params[0])
		if err != nil {
			log.Debugf("Submission rejected: %v", err)
		}
		h.writeRPC(w, req.Id, accepted, nil)
	default:
		h.writeRPC(w, req.Id, nil, &jsonrpc.Error{Code: errCodeBadParams, Message: "invalid params"})
	}
}

// longPollFunc holds the request until a new block arrives, then answers
// with fresh work. A timed out wait still answers with fresh work.
func (h *HttpServer) longPollFunc(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.longPollTimeout)
	defer cancel()

	if _, err := h.engine.WaitLongPoll(ctx); err != nil && r.Context().Err() != nil {
		// 客户端已断开
		return
	}
	h.sendWork(r.Context(), w, 1)
}

func (h *HttpServer) sendWork(ctx context.Context, w http.ResponseWriter, id interface{}) {
	work, err := h.engine.GetWork(ctx)
	if err != nil {
		h.writeRPC(w, id, nil, &jsonrpc.Error{Code: errCodeNoWork, Message: ErrNoWork.Error()})
		return
	}
	h.writeRPC(w, id, work, nil)
}

func (h *HttpServer) writeRPC(w http.ResponseWriter, id, result interface{}, rpcErr *jsonrpc.Error) {
	resp := jsonrpc.Response{Id: id, Result: result}
	if rpcErr != nil {
		resp.Error = rpcErr
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(jsonrpc.MarshalResponse(resp)); err != nil {
		log.Debugf("Send data error: %v", err)
	}
}

func (h *HttpServer) statsFunc(w http.ResponseWriter, _ *http.Request) {
	status := h.engine.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":    status.Summary,
		"hashrate":   status.Hashrate,
		"cachedWork": status.CachedWork,
		"uptime":     durafmt.Parse(time.Since(status.Started)).LimitFirstN(2).String(),
	})
}

func (h *HttpServer) poolsFunc(w http.ResponseWriter, _ *http.Request) {
	status := h.engine.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pools":      h.registry.ListPools(),
		"candidates": status.Candidates,
		"lagged":     status.Lagged,
		"percentage": h.credentials.PoolsWithPercentage(),
	})
}

func (h *HttpServer) sharesFunc(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Shares uint64 `json:"shares"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	name := mux.Vars(r)["name"]
	if _, ok := h.registry.GetPool(name); !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown pool"))
		return
	}
	h.applyUpdate(w, h.registry.SetShares(name, body.Shares))
}

func (h *HttpServer) percentageFunc(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Percentage int `json:"percentage"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	name := mux.Vars(r)["name"]
	if _, ok := h.registry.GetPool(name); !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown pool"))
		return
	}
	h.applyUpdate(w, h.credentials.SetPercentage(name, body.Percentage))
}

func (h *HttpServer) priorityFunc(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Priority int `json:"priority"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	name := mux.Vars(r)["name"]
	if _, ok := h.registry.GetPool(name); !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown pool"))
		return
	}
	h.credentials.SetPriority(name, body.Priority)
	h.applyUpdate(w, nil)
}

func (h *HttpServer) difficultyFunc(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Difficulty float64 `json:"difficulty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	h.applyUpdate(w, h.registry.SetDifficulty(mux.Vars(r)["coin"], body.Difficulty))
}

// applyUpdate re-runs selection so an admin change takes effect at once.
func (h *HttpServer) applyUpdate(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.engine.Rebuild(); err != nil {
		log.Warnf("Rebuild after update: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidates": h.engine.Status().Candidates,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxReqSize)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
