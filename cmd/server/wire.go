package main

import (
	"context"
	"fmt"
	"io"

	"github.com/tohka53/gtrehabiMovement/assignment"
	memstore "github.com/tohka53/gtrehabiMovement/assignment/store"
	"github.com/tohka53/gtrehabiMovement/config"
	"github.com/tohka53/gtrehabiMovement/lock"
	"github.com/tohka53/gtrehabiMovement/logger"
	"github.com/tohka53/gtrehabiMovement/store/postgres"
	"github.com/tohka53/gtrehabiMovement/store/sqlite"
)

type deps struct {
	Store      assignment.Store
	Authorizer assignment.Authorizer
	Locker     assignment.Locker

	closers []io.Closer
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i].Close()
	}
}

func wire(ctx context.Context, cfg config.Config, log *logger.Logger) (*deps, error) {
	d := &deps{}

	switch cfg.StoreDriver {
	case config.DriverMemory:
		d.Store = memstore.NewMemory()
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		d.Store = s
		d.closers = append(d.closers, s)
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		d.Store = s
		d.closers = append(d.closers, s)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.RedisAddr != "" {
		l, err := lock.NewRedis(cfg.RedisAddr, cfg.LockTTL, log)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Locker = l
		d.closers = append(d.closers, l)
	} else {
		d.Locker = lock.NewLocal()
	}

	if len(cfg.Assigners) > 0 {
		d.Authorizer = assignment.NewAllowList(cfg.Assigners...)
	} else {
		d.Authorizer = assignment.AllowAll{}
	}

	return d, nil
}
