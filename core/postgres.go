package core

import (
	"context"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"

	"bithopper/config"
	"bithopper/model"
)

type Postgres struct {
	db *pg.DB
}

func NewPostgres(ctx context.Context, cfg *config.Postgres) (*Postgres, error) {
	db := pg.Connect(&pg.Options{
		Addr:     cfg.Address,
		User:     cfg.Username,
		Password: cfg.Password,
		Database: cfg.Database,
	})
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := db.Model((*model.Stat)(nil)).CreateTable(&orm.CreateTableOptions{IfNotExists: true}); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{db: db}, nil
}

// UpsertStat 写入统计, 已存在则更新计数
func (p *Postgres) UpsertStat(ctx context.Context, stat *model.Stat) error {
	_, err := p.db.ModelContext(ctx, stat).
		OnConflict("(pool, username, password, difficulty) DO UPDATE").
		Set("issued = EXCLUDED.issued, accepted = EXCLUDED.accepted, rejected = EXCLUDED.rejected, updated_at = EXCLUDED.updated_at").
		Insert()
	return err
}

func (p *Postgres) Stats(ctx context.Context) ([]*model.Stat, error) {
	var stats []*model.Stat
	if err := p.db.ModelContext(ctx, &stats).Select(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
