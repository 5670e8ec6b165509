package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crash-cli/internal/model"
	"github.com/sells-group/crash-cli/internal/store"
)

// initStore opens the configured run store. It returns nil when the store
// driver is "none" or empty.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "crash_runs.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		var poolCfg *store.PoolConfig
		if cfg.Store.MaxConns > 0 || cfg.Store.MinConns > 0 {
			poolCfg = &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns}
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, poolCfg)
	case "none", "":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the run store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil || st == nil {
		return st, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// loadModel reads the fitted model named by model.path, or path when set.
func loadModel(path string) (*model.NBModel, error) {
	if path == "" {
		path = cfg.Model.Path
	}
	m, err := model.LoadNBModel(path)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("loaded model",
		zap.String("path", path),
		zap.String("name", m.Name),
		zap.Int("coefficients", m.NumCoefficients()),
	)
	return m, nil
}
