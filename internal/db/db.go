package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // pure-Go "sqlite" database/sql driver

	"storefront/internal/config"
	"storefront/internal/model"
)

// sqliteDriverName is the database/sql name registered by modernc.org/sqlite.
const sqliteDriverName = "sqlite"

// Open returns a connected GORM DB instance with its connection pool sized from cfg.
func Open(cfg config.DB, log zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverMySQL:
		dialector = mysql.Open(cfg.MySQLDSN())
	case config.DriverSQLite:
		dialector = sqlite.New(sqlite.Config{DriverName: sqliteDriverName, DSN: SQLiteDSN(cfg.SQLitePath)})
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("connection pool: %w", err)
	}
	if cfg.Driver == config.DriverSQLite {
		// One writer at a time; also keeps an in-memory database on a single connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return gdb, nil
}

// SQLiteDSN turns a file path (or ":memory:") into a modernc DSN with the pragmas we rely on.
func SQLiteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Models lists every table owned by the service, in creation order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Product{},
		&model.Lead{},
	}
}

// Migrate creates or updates the users, products and leads tables.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Reset drops every table owned by the service. Development only.
func Reset(gdb *gorm.DB) error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if err := gdb.Migrator().DropTable(models[i]); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
	}
	return nil
}

// Ping checks that a pooled connection can reach the database.
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases every pooled connection.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newGormLogger(log zerolog.Logger) gormlogger.Interface {
	l := log.With().Str("component", "gorm").Logger()
	return gormlogger.New(&l, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
