package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from every environment variable read by Load.
const envPrefix = "IPGUARD_"

// Fail policies applied when a list cannot be loaded and no previous snapshot exists.
const (
	FailClosed = "closed"
	FailOpen   = "open"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// LokiURL enables log shipping to a Loki push endpoint when set.
	LokiURL string `koanf:"loki_url" validate:"omitempty,url"`

	// EnforceWhitelist blocks every address that is not whitelisted.
	EnforceWhitelist bool `koanf:"enforce_whitelist"`

	// FailPolicy decides membership when the store is unreachable and no
	// snapshot was ever loaded. "closed" treats the address as blacklisted and
	// not whitelisted; "open" does the opposite.
	FailPolicy string `koanf:"fail_policy" validate:"required,oneof=closed open"`

	// BlockCode and BlockMessage form the response for blocked requests.
	BlockCode    int    `koanf:"block_code" validate:"required,gte=400,lte=599"`
	BlockMessage string `koanf:"block_message"`

	// RedirectNonWhitelistedTo redirects non-whitelisted requests instead of
	// blocking them. It is an absolute http(s) URL or a path on this host.
	RedirectNonWhitelistedTo string `koanf:"redirect_non_whitelisted_to" validate:"omitempty,redirect_target"`

	// EnableLog logs every blocked or redirected request.
	EnableLog bool `koanf:"enable_log"`

	// TrustedHeader names a header carrying the client address (e.g. X-Real-IP).
	// Empty means the socket peer address is used.
	TrustedHeader string `koanf:"trusted_header"`

	// CacheSize is the membership cache capacity; 0 disables caching.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`

	// CacheTTL bounds how long a cached membership answer is served.
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gte=0"`

	// StoreDriver selects the durable backend.
	StoreDriver string `koanf:"store_driver" validate:"required,oneof=bolt sqlite file redis"`

	// StorePath is the database or file path for bolt, sqlite and file drivers.
	StorePath string `koanf:"store_path" validate:"required_unless=StoreDriver redis"`

	// RedisAddr is the redis server for the redis driver.
	RedisAddr string `koanf:"redis_addr" validate:"required,listen_addr"`

	// RedisPrefix namespaces every redis key.
	RedisPrefix string `koanf:"redis_prefix" validate:"required"`

	// StoreTimeout bounds every durable store call.
	StoreTimeout time.Duration `koanf:"store_timeout" validate:"gt=0"`

	// Listen is the address of the guarded listener.
	Listen string `koanf:"listen" validate:"required,listen_addr"`

	// AdminListen is the address of the admin API and metrics listener.
	AdminListen string `koanf:"admin_listen" validate:"required,listen_addr"`

	// AdminToken, when set, is required as a bearer token on admin requests.
	AdminToken string `koanf:"admin_token"`

	// Upstream is proxied for allowed requests; empty serves forward-auth only.
	Upstream string `koanf:"upstream" validate:"omitempty,url"`

	// MaxConns caps concurrent connections per listener; 0 is unlimited.
	MaxConns int `koanf:"max_conns" validate:"gte=0"`

	// Source is recorded on entries added through this process.
	Source string `koanf:"source" validate:"required"`
}

// DEFAULT_APP_CONFIG defines the default application configuration settings.
// The fail policy defaults to closed: an unreachable store never opens access.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:          "prod",
	LogLevel:     "info",
	FailPolicy:   FailClosed,
	BlockCode:    403,
	BlockMessage: "403 Forbidden",
	CacheSize:    10000,
	CacheTTL:     time.Minute,
	StoreDriver:  "bolt",
	StorePath:    "/var/lib/ipguard/ipguard.db",
	RedisAddr:    "127.0.0.1:6379",
	RedisPrefix:  "ipguard",
	StoreTimeout: 2 * time.Second,
	Listen:       ":8080",
	AdminListen:  "127.0.0.1:8081",
	Source:       "ipguardd",
}

// validListenAddr validates a "host:port" value where host may be empty.
func validListenAddr(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	if host != "" && strings.ContainsAny(host, " /") {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// dotenvLoader loads a .env file into the process environment, without
// overriding variables that are already set. The file is optional; its path
// may be overridden with IPGUARD_ENV_FILE.
var dotenvLoader = func() error {
	path := os.Getenv(envPrefix + "ENV_FILE")
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// envLoader loads environment variables with the prefix "IPGUARD_".
// It transforms the keys to lowercase and removes the prefix.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// validRedirectTarget accepts an absolute http(s) URL or an absolute path
// such as "/denied". Protocol-relative "//host" targets are rejected.
func validRedirectTarget(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	u, err := url.Parse(s)
	if err != nil || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	if u.Scheme != "" {
		return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	}
	return u.Host == "" && strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//")
}

// defaultLoader loads DEFAULT_APP_CONFIG into the provided Koanf instance.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom validations used by AppConfig.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("listen_addr", validListenAddr); err != nil {
		return err
	}
	return v.RegisterValidation("redirect_target", validRedirectTarget)
}

// Load reads defaults, an optional .env file and the environment, and
// returns a validated AppConfig.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := dotenvLoader(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// FailsClosed reports whether the configured fail policy is closed.
func (c *AppConfig) FailsClosed() bool {
	return c.FailPolicy != FailOpen
}
