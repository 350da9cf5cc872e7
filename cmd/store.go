package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/pricing"
	"github.com/sells-group/outreach-cli/internal/store"
)

// storeHandle is the store interface the commands operate on.
type storeHandle = store.Store

func pricingPolicy() pricing.Policy {
	return pricing.Policy{
		BaseFull:   cfg.Pricing.BaseFull,
		BaseSimple: cfg.Pricing.BaseSimple,
		Step:       cfg.Pricing.Step,
		WindowSize: cfg.Pricing.WindowSize,
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return store.NewSQLite(dsn, pricingPolicy())
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, pricingPolicy(), nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
