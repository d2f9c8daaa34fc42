package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	defaultJWTSecret = "change-me"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	AppEnv     string
	ServerPort string

	DB    DB
	JWT   JWT
	Redis Redis

	BcryptCost     int
	CORSOrigins    []string
	LeadsRateLimit float64

	AdminEmail    string
	AdminPassword string

	LogLevel    string
	LogFormat   string
	SwaggerHost string
}

// DB describes how to reach the relational store and how to size its pool.
type DB struct {
	Driver string

	Host     string
	Port     int
	User     string
	Password string
	Name     string
	DSN      string

	SQLitePath string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	Reset bool
}

// JWT configures access token signing.
type JWT struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Redis configures the token deny-list. An empty Addr disables it.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Load reads an optional .env file and then builds Config from the environment
// with sensible defaults.
func Load() *Config {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVER_PORT", "5000")

	v.SetDefault("DB_DRIVER", DriverMySQL)
	v.SetDefault("MYSQL_HOST", "localhost")
	v.SetDefault("MYSQL_PORT", 3306)
	v.SetDefault("MYSQL_USER", "root")
	v.SetDefault("MYSQL_PASSWORD", "")
	v.SetDefault("MYSQL_DB", "storefront")
	v.SetDefault("MYSQL_DSN", "")
	v.SetDefault("SQLITE_PATH", "storefront.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	v.SetDefault("DB_RESET", false)

	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", "storefront")
	v.SetDefault("JWT_TTL", time.Hour)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("LEADS_RATE_LIMIT", 5)

	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("SWAGGER_HOST", "")
	return v
}

// FromViper builds Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		AppEnv:     v.GetString("APP_ENV"),
		ServerPort: v.GetString("SERVER_PORT"),
		DB: DB{
			Driver:          strings.ToLower(v.GetString("DB_DRIVER")),
			Host:            v.GetString("MYSQL_HOST"),
			Port:            v.GetInt("MYSQL_PORT"),
			User:            v.GetString("MYSQL_USER"),
			Password:        v.GetString("MYSQL_PASSWORD"),
			Name:            v.GetString("MYSQL_DB"),
			DSN:             v.GetString("MYSQL_DSN"),
			SQLitePath:      v.GetString("SQLITE_PATH"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			Reset:           v.GetBool("DB_RESET"),
		},
		JWT: JWT{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
			TTL:    v.GetDuration("JWT_TTL"),
		},
		Redis: Redis{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		BcryptCost:     v.GetInt("BCRYPT_COST"),
		CORSOrigins:    splitList(v.GetString("CORS_ORIGINS")),
		LeadsRateLimit: v.GetFloat64("LEADS_RATE_LIMIT"),
		AdminEmail:     v.GetString("ADMIN_EMAIL"),
		AdminPassword:  v.GetString("ADMIN_PASSWORD"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
		SwaggerHost:    v.GetString("SWAGGER_HOST"),
	}
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.AppEnv)
	return env == "production" || env == "prod"
}

// UsesDefaultSecret reports whether tokens would be signed with a publicly known key.
func (c *Config) UsesDefaultSecret() bool {
	return c.JWT.Secret == "" || c.JWT.Secret == defaultJWTSecret
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	var errs []error
	if c.IsProduction() && c.UsesDefaultSecret() {
		errs = append(errs, errors.New("JWT_SECRET must be set to a private value in production"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, fmt.Errorf("JWT_TTL must be positive, got %s", c.JWT.TTL))
	}
	switch c.DB.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DB.Driver))
	}
	return errors.Join(errs...)
}

// MySQLDSN returns MYSQL_DSN when set, otherwise a DSN built from the individual
// MYSQL_* settings.
func (d DB) MySQLDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	mc := mysql.NewConfig()
	mc.User = d.User
	mc.Passwd = d.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
	mc.DBName = d.Name
	mc.ParseTime = true
	// Report matched rather than changed rows for UPDATE.
	mc.ClientFoundRows = true
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
