package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wichananm65/bible-streak-backend/internal/config"
	"github.com/wichananm65/bible-streak-backend/internal/user"
)

const (
	maxIdleConns  = 10
	maxOpenConns  = 100
	slowThreshold = 200 * time.Millisecond
	pingTimeout   = 5 * time.Second
)

// Open connects to the configured SQL database and verifies the connection.
func Open(cfg config.Config, log zerolog.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormLog := log.With().Str("component", "gorm").Logger()
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.New(&gormLog, loggerConfig(cfg)),
		TranslateError: true,
	})
	if err != nil {
		closeDialector(dialector)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("driver", cfg.DatabaseDriver).Msg("database connection established")
	return db, nil
}

// Migrate creates or updates the users table, including the unique index on
// email.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&user.User{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return postgres.New(postgres.Config{Conn: sqlDB}), nil
	case config.DriverMySQL:
		dsn, err := mysqlDSN(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

// closeDialector releases a pool opened ahead of gorm.Open.
func closeDialector(d gorm.Dialector) {
	pd, ok := d.(*postgres.Dialector)
	if !ok {
		return
	}
	if closer, ok := pd.Conn.(io.Closer); ok {
		_ = closer.Close()
	}
}

// mysqlDSN forces parseTime so DATE and DATETIME columns scan into time.Time.
func mysqlDSN(raw string) (string, error) {
	dsnCfg, err := mysqldriver.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	dsnCfg.ParseTime = true
	// report matched rows so a no-op UPDATE is not mistaken for a missing row
	dsnCfg.ClientFoundRows = true
	if dsnCfg.Loc == nil {
		dsnCfg.Loc = time.UTC
	}
	return dsnCfg.FormatDSN(), nil
}

func loggerConfig(cfg config.Config) logger.Config {
	level := logger.Warn
	if cfg.IsDevelopment() {
		level = logger.Info
	}
	return logger.Config{
		SlowThreshold:             slowThreshold,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	}
}
