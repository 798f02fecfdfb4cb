package core

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"bithopper/config"
)

type Server struct {
	cfg         *config.Config
	daemon      *Daemon
	store       StatStore
	registry    *Registry
	credentials *Credentials

	engine *Engine
	http   *HttpServer
}

func NewServer(cfg *config.Config) (*Server, error) {
	store, err := OpenStore(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}

	s := &Server{
		cfg:         cfg,
		daemon:      NewDaemon(&cfg.Upstream),
		store:       store,
		registry:    NewRegistry(cfg.Pools, cfg.Coins),
		credentials: NewCredentials(cfg.Pools),
	}

	s.engine, err = NewEngine(&cfg.Engine, s.registry, s.credentials, s.daemon, s.store)
	if err != nil {
		store.Close()
		return nil, err
	}
	if cfg.Server.Enabled {
		s.http = NewHttpServer(&cfg.Server, s.engine, s.registry, s.credentials)
	}
	return s, nil
}

// OpenStore opens the stat store named by cfg.Driver.
func OpenStore(cfg *config.Storage) (StatStore, error) {
	switch cfg.Driver {
	case config.DriverSqlite:
		db, err := NewSqlite(cfg.Sqlite.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverRedis:
		r := NewRedis(&cfg.Redis)
		if err := r.Ping(context.Background()); err != nil {
			r.Close()
			return nil, err
		}
		return r, nil
	case config.DriverPostgres:
		pg, err := NewPostgres(context.Background(), &cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func (s *Server) Start() error {
	log.Infof("Starting %s with %d pools", s.cfg.Name, len(s.cfg.Pools))
	s.engine.Start()
	if s.http != nil {
		if err := s.http.Start(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Close() {
	if s.http != nil {
		s.http.Close()
	}
	s.engine.Close()
	if err := s.store.Close(); err != nil {
		log.Errorf("Close storage: %v", err)
	}
}
