package config

import (
	"embed"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed env/*.json
var envFiles embed.FS

type Settings struct {
	Env              string                 `koanf:"env" validate:"required"`
	Server           ServerSettings         `koanf:"server"`
	Database         DatabaseSettings       `koanf:"database"`
	Redis            RedisSettings          `koanf:"redis"`
	Log              LogSettings            `koanf:"log"`
	Host             HostSettings           `koanf:"host"`
	Session          SessionSettings        `koanf:"session"`
	PaymentProviders PaymentProviderSettings `koanf:"paymentProviders"`
	Limits           LimitSettings          `koanf:"limits"`
	Platform         PlatformSettings       `koanf:"platform"`
	TwoFactor        TwoFactorSettings      `koanf:"twoFactor"`
	WebAuthn         WebAuthnSettings       `koanf:"webauthn"`
	Yubico           YubicoSettings         `koanf:"yubico"`
	PubSub           PubSubSettings         `koanf:"pubsub"`
	Storage          StorageSettings        `koanf:"storage"`
	Cron             CronSettings           `koanf:"cron"`
}

type ServerSettings struct {
	Port               string        `koanf:"port" validate:"required"`
	ShutdownTimeout    time.Duration `koanf:"shutdownTimeout"`
	CorsAllowedOrigins []string      `koanf:"corsAllowedOrigins"`
	SkipMigrations     bool          `koanf:"skipMigrations"`
}

type DatabaseSettings struct {
	User     string       `koanf:"user" validate:"required"`
	Password string       `koanf:"password"`
	Host     string       `koanf:"host" validate:"required"`
	Port     string       `koanf:"port"`
	Name     string       `koanf:"name" validate:"required"`
	Pool     PoolSettings `koanf:"pool"`
}

type PoolSettings struct {
	MaxOpenConns    int           `koanf:"maxOpenConns" validate:"gte=0"`
	MaxIdleConns    int           `koanf:"maxIdleConns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `koanf:"connMaxIdleTime"`
}

type RedisSettings struct {
	Address  string `koanf:"address"`
	PoolSize int    `koanf:"poolSize"`
}

type LogSettings struct {
	Level string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
}

// HostSettings holds the external URLs of the platform.
type HostSettings struct {
	API      string `koanf:"api" validate:"required,url"`
	Website  string `koanf:"website" validate:"required,url"`
	Frontend string `koanf:"frontend"`
}

type SessionSettings struct {
	Secret        string        `koanf:"secret" validate:"required"`
	TokenLifespan time.Duration `koanf:"tokenLifespan" validate:"required"`
}

type RedirectSettings struct {
	RedirectURI string `koanf:"redirectUri"`
}

type PaymentProviderSettings struct {
	Stripe RedirectSettings `koanf:"stripe"`
	Paypal RedirectSettings `koanf:"paypal"`
}

type RateLimit struct {
	PerAccount              int `koanf:"perAccount"`
	PerAccountForCollective int `koanf:"perAccountForCollective"`
	PerEmail                int `koanf:"perEmail"`
	PerIP                   int `koanf:"perIp"`
}

type LimitSettings struct {
	RequestsPerMinutePerIP int       `koanf:"requestsPerMinutePerIp"`
	OrdersPerHour          RateLimit `koanf:"ordersPerHour"`
	SendMessagePerHour     RateLimit `koanf:"sendMessagePerHour"`
}

type PlatformSettings struct {
	// Admins of this collective are root users.
	CollectiveId          int     `koanf:"collectiveId"`
	FeePercent            float64 `koanf:"feePercent" validate:"gte=0,lte=100"`
	DefaultHostFeePercent float64 `koanf:"defaultHostFeePercent" validate:"gte=0,lte=100"`
	DefaultCurrency       string  `koanf:"defaultCurrency" validate:"len=3"`
}

type TwoFactorSettings struct {
	// base64 encoded 32 bytes key used to encrypt TOTP secrets
	SecretKey          string        `koanf:"secretKey" validate:"required"`
	SessionValidity    time.Duration `koanf:"sessionValidity"`
	RecoveryCodesCount int           `koanf:"recoveryCodesCount"`
}

type WebAuthnSettings struct {
	RPID            string        `koanf:"rpId" validate:"required"`
	RPName          string        `koanf:"rpName"`
	ExpectedOrigins []string      `koanf:"expectedOrigins" validate:"min=1"`
	ChallengeTTL    time.Duration `koanf:"challengeTtl"`
}

type YubicoSettings struct {
	ClientId  string `koanf:"clientId"`
	SecretKey string `koanf:"secretKey"`
}

type PubSubSettings struct {
	ProjectId       string `koanf:"projectId"`
	ActivitiesTopic string `koanf:"activitiesTopic"`
}

type StorageSettings struct {
	Bucket        string `koanf:"bucket"`
	ReportsPrefix string `koanf:"reportsPrefix"`
}

type CronSettings struct {
	MinimumAdminsInterval        time.Duration `koanf:"minimumAdminsInterval"`
	HostMonthlyReportInterval    time.Duration `koanf:"hostMonthlyReportInterval"`
	ExpirePersonalTokensInterval time.Duration `koanf:"expirePersonalTokensInterval"`
	JobTimeout                   time.Duration `koanf:"jobTimeout"`
}

var (
	settings     *Settings
	settingsOnce sync.Once
	settingsMu   sync.RWMutex
)

// environment variables that override the JSON configuration
var envKeyMap = map[string]string{
	"PORT":                         "server.port",
	"CORS_ALLOWED_ORIGINS":         "server.corsAllowedOrigins",
	"SKIP_MIGRATIONS":              "server.skipMigrations",
	"DB_USER":                      "database.user",
	"DB_PASSWORD":                  "database.password",
	"DB_HOST":                      "database.host",
	"DB_PORT":                      "database.port",
	"DB_NAME":                      "database.name",
	"DB_MAX_OPEN_CONNS":            "database.pool.maxOpenConns",
	"DB_MAX_IDLE_CONNS":            "database.pool.maxIdleConns",
	"DB_CONN_MAX_LIFETIME":         "database.pool.connMaxLifetime",
	"DB_CONN_MAX_IDLE_TIME":        "database.pool.connMaxIdleTime",
	"REDIS_ADDRESS":                "redis.address",
	"LOG_LEVEL":                    "log.level",
	"API_URL":                      "host.api",
	"WEBSITE_URL":                  "host.website",
	"API_SECRET":                   "session.secret",
	"TOKEN_LIFESPAN":               "session.tokenLifespan",
	"STRIPE_REDIRECT_URI":          "paymentProviders.stripe.redirectUri",
	"PAYPAL_REDIRECT_URI":          "paymentProviders.paypal.redirectUri",
	"PLATFORM_COLLECTIVE_ID":       "platform.collectiveId",
	"TWO_FACTOR_SECRET_KEY":        "twoFactor.secretKey",
	"WEBAUTHN_RP_ID":               "webauthn.rpId",
	"WEBAUTHN_EXPECTED_ORIGINS":    "webauthn.expectedOrigins",
	"YUBICO_CLIENT_ID":             "yubico.clientId",
	"YUBICO_SECRET_KEY":            "yubico.secretKey",
	"PUBSUB_PROJECT_ID":            "pubsub.projectId",
	"PUBSUB_ACTIVITIES_TOPIC":      "pubsub.activitiesTopic",
	"GCS_BUCKET":                   "storage.bucket",
	"CRON_JOB_TIMEOUT":             "cron.jobTimeout",
	"CRON_MINIMUM_ADMINS_INTERVAL": "cron.minimumAdminsInterval",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// CurrentEnv returns GO_ENV, defaulting to development.
func CurrentEnv() string {
	goEnv := strings.ToLower(strings.TrimSpace(os.Getenv("GO_ENV")))
	if goEnv == "" {
		return "development"
	}
	return goEnv
}

// LoadSettings builds the settings of the given environment:
// env/default.json, then env/<goEnv>.json, then environment variables.
func LoadSettings(goEnv string) (*Settings, error) {
	k := koanf.New(".")

	defaults, err := envFiles.ReadFile("env/default.json")
	if err != nil {
		return nil, fmt.Errorf("read default config: %w", err)
	}
	if err := k.Load(rawbytes.Provider(defaults), json.Parser()); err != nil {
		return nil, fmt.Errorf("load default config: %w", err)
	}

	if goEnv != "" {
		overrides, err := envFiles.ReadFile("env/" + goEnv + ".json")
		if err == nil {
			if err := k.Load(rawbytes.Provider(overrides), json.Parser()); err != nil {
				return nil, fmt.Errorf("load %s config: %w", goEnv, err)
			}
		} else {
			log.Printf("no config file for GO_ENV=%s; using defaults", goEnv)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	s := &Settings{}
	if err := k.Unmarshal("", s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return s, nil
}

// GetSettings returns the process settings, loading them on first use.
func GetSettings() *Settings {
	settingsOnce.Do(func() {
		s, err := LoadSettings(CurrentEnv())
		if err != nil {
			log.Fatalf("failed to load settings: %v", err)
		}
		settingsMu.Lock()
		if settings == nil {
			settings = s
		}
		settingsMu.Unlock()
	})
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings
}

// SetSettings replaces the process settings. Used by tests and tools.
func SetSettings(s *Settings) {
	settingsOnce.Do(func() {})
	settingsMu.Lock()
	settings = s
	settingsMu.Unlock()
}

func (s *Settings) IsProduction() bool {
	return s.Env == "production"
}
