package config // package config loads application configuration from environment variables

import (
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables
	"strings"
	"time"
)

// Store drivers.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	LogLevel  string // logrus level name
	Store     string // "mysql" or "memory"
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to verify bearer tokens

	TxMaxAttempts int           // transaction attempts before a transient failure
	TxBaseBackoff time.Duration // first retry delay, doubled per attempt

	PromotionSweepInterval time.Duration // how often owed waitlist promotions are retried
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The database
// variables are only required by the mysql store.
func Load() Config {
	c := Config{
		Env:                    must("APP_ENV"),
		Port:                   must("APP_PORT"),
		LogLevel:               envStr("LOG_LEVEL", "info"),
		Store:                  strings.ToLower(envStr("STORE_DRIVER", StoreMySQL)),
		JWTSecret:              must("JWT_SECRET"),
		TxMaxAttempts:          envInt("TX_MAX_ATTEMPTS", 5),
		TxBaseBackoff:          envDur("TX_BASE_BACKOFF", 10*time.Millisecond),
		PromotionSweepInterval: envDur("PROMOTION_SWEEP_INTERVAL", 30*time.Second),
	}
	switch c.Store {
	case StoreMySQL:
		c.DBUser = must("DB_USER")
		c.DBPass = os.Getenv("DB_PASS") // empty allowed
		c.DBHost = must("DB_HOST")
		c.DBPort = must("DB_PORT")
		c.DBName = must("DB_NAME")
	case StoreMemory:
		if c.Env != "dev" && c.Env != "test" {
			log.Fatalf("STORE_DRIVER=memory is only allowed with APP_ENV dev or test")
		}
	default:
		log.Fatalf("invalid STORE_DRIVER: %q", c.Store)
	}
	if c.TxMaxAttempts < 1 {
		c.TxMaxAttempts = 1
	}
	if c.PromotionSweepInterval <= 0 {
		c.PromotionSweepInterval = 30 * time.Second
	}
	return c
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
