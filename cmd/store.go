package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catchment-cli/internal/store"
)

// initStore opens and migrates the run ledger selected by store.driver.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "catchment.db"
		}
		s, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		st = s
	case "none":
		st = store.Nop{}
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
