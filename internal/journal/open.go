package journal

import (
	"context"

	"agent_workbench/platform/config"
	"agent_workbench/platform/db"
	"agent_workbench/platform/logger"
)

// Open picks the journal backend: Postgres when DATABASE_URL is set,
// otherwise the local SQLite file.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (Store, error) {
	if cfg.GetDatabaseURL() != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("command journal on postgres")
		return &poolOwner{PostgresStore: store, close: pool.Close}, nil
	}

	store, err := OpenSQLiteStore(ctx, cfg.GetJournalSQLitePath())
	if err != nil {
		return nil, err
	}
	log.Info("command journal on sqlite", "path", cfg.GetJournalSQLitePath())
	return store, nil
}

// poolOwner closes the pool Open created.
type poolOwner struct {
	*PostgresStore
	close func()
}

func (p *poolOwner) Close() { p.close() }
