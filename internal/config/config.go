package config // package config loads application configuration from environment variables

import (
    "log"
    "os"
    "strconv"
    "time"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Database settings are only consulted when
// the mysql store backend is selected.
type Config struct {
    Env          string // application environment (e.g. "dev", "prod")
    Port         string // HTTP port to listen on
    StoreBackend string // "mysql" or "memory"
    DBUser       string // database username
    DBPass       string // database password (optional)
    DBHost       string // database host address
    DBPort       string // database port number
    DBName       string // database name
    JWTSecret    string // secret used to verify admin JWTs

    Currency string // ISO currency code used on gateway checkouts

    GatewayBaseURL      string        // payment gateway base URL
    GatewayClientID     string        // OAuth client id
    GatewayClientSecret string        // OAuth client secret
    GatewayDestination  string        // merchant destination account at the gateway
    GatewayTimeout      time.Duration // per-request HTTP timeout
    GatewayTokenMargin  time.Duration // refresh access tokens this long before expiry
    ConfirmWait         time.Duration // wait between card token submit and re-fetch

    FeeAccount     string // name of the account receiving subscription fees
    DepositAccount string // name of the account holding deposits
    ServiceAccount string // name of the account receiving service charges
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:          must("APP_ENV"),
        Port:         must("APP_PORT"),
        StoreBackend: envDefault("STORE_BACKEND", "mysql"),
        JWTSecret:    must("JWT_SECRET"),

        Currency: envDefault("CURRENCY", "EUR"),

        GatewayBaseURL:      must("GATEWAY_BASE_URL"),
        GatewayClientID:     must("GATEWAY_CLIENT_ID"),
        GatewayClientSecret: must("GATEWAY_CLIENT_SECRET"),
        GatewayDestination:  os.Getenv("GATEWAY_DESTINATION"),
        GatewayTimeout:      envDuration("GATEWAY_TIMEOUT", 10*time.Second),
        GatewayTokenMargin:  envDuration("GATEWAY_TOKEN_MARGIN", time.Minute),
        ConfirmWait:         envDuration("CONFIRM_WAIT", 2*time.Second),

        FeeAccount:     envDefault("FEE_ACCOUNT", "Membership fees"),
        DepositAccount: envDefault("DEPOSIT_ACCOUNT", "Deposits"),
        ServiceAccount: envDefault("SERVICE_ACCOUNT", "Service charges"),
    }
    if cfg.StoreBackend == "mysql" {
        cfg.DBUser = must("DB_USER")
        cfg.DBPass = os.Getenv("DB_PASS")
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    }
    return cfg
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

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

func envDefault(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func envDuration(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    d, err := time.ParseDuration(v)
    if err != nil {
        log.Fatalf("invalid duration for %s: %q", key, v)
    }
    return d
}
