package db

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mcserver-backend/config"
	"mcserver-backend/internal/model"
)

// Models lists every table the application owns, in migration order.
var Models = []any{
	&model.MetricSnapshot{},
	&model.Player{},
	&model.DuelStats{},
	&model.PushSubscription{},
}

// Dialector picks the gorm driver for a DSN. postgres:// and postgresql://
// URLs and key=value strings containing host= go to Postgres; everything else
// is treated as an SQLite path or file: URI.
func Dialector(dsn string) gorm.Dialector {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

// Init opens the database named by cfg.DSN, sizes the pool for the chosen
// driver and runs migrations. Timescale DDL failures are logged, not fatal.
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector := Dialector(cfg.DSN)
	log = log.With(zap.String("component", "db"), zap.String("driver", dialector.Name()))
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if dialector.Name() == "sqlite" {
		// One writer; the poller and the command handlers share it.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.EnableTimescale && dialector.Name() == "postgres" {
		if err := applyTimescaleDDL(db); err != nil {
			log.Warn("timescale ddl incomplete, continuing with plain tables", zap.Error(err))
		} else {
			log.Info("timescale hypertable ready")
		}
	}

	log.Info("database ready")
	return db, nil
}

// Migrate creates or updates all tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func applyTimescaleDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS timescaledb;",
		// timestamp is Unix milliseconds, so the chunk interval is in ms (1 day).
		"SELECT create_hypertable('metric_snapshots', 'timestamp', chunk_time_interval => 86400000, if_not_exists => TRUE, migrate_data => TRUE);",
		"CREATE INDEX IF NOT EXISTS idx_metric_snapshots_online_ts ON metric_snapshots (online, timestamp DESC);",
		"CREATE INDEX IF NOT EXISTS idx_players_lower_name ON players (LOWER(name), last_updated_ts DESC);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
