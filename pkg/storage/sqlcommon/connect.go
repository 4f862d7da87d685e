package sqlcommon

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// ConfigurePool applies the connection pool settings of cfg to db. Zero values keep
// the driver defaults.
func ConfigurePool(db *sql.DB, cfg *Config) {
	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.ConnMaxIdleTime != 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if cfg.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// DefaultConnectTimeout bounds the wait for the database when no timeout is given.
const DefaultConnectTimeout = time.Minute

// ConfigureDB waits for db to answer pings for up to timeout, then registers its
// connection stats collector when metrics are enabled.
func ConfigureDB(ctx context.Context, db *sql.DB, cfg *Config, timeout time.Duration) (prometheus.Collector, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = timeout
	attempt := 1
	err := backoff.Retry(func() error {
		err := db.PingContext(ctx)
		if err != nil {
			cfg.Logger.Info("waiting for database", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "datavirt")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	return collector, nil
}
