package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultActionQueue is where follow-up actions go when ASYNQ_ACTION_QUEUE is unset.
const DefaultActionQueue = "outreach_actions"

// Config holds all configuration required by the API process.
// Values come from env; a .env file in the working directory is loaded first
// when present. No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Monitor   MonitorConfig
	Scheduler SchedulerConfig
	HTTP      HTTPConfig
	Twilio    TwilioConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	MaxOpenConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// TLS switches the asynq connection to rediss://.
	TLS         bool
	TLSInsecure bool
}

type MonitorConfig struct {
	Enabled  bool
	Interval time.Duration
	Window   time.Duration
	LockTTL  time.Duration
	// LatestTTL bounds how long the cached latest run stays readable.
	LatestTTL time.Duration
}

type SchedulerConfig struct {
	Enabled bool
	// Queue carries the callbacks.due timers this process works off.
	Queue string
	// ActionQueue carries outreach.action tasks for the external dispatcher.
	// It must differ from Queue.
	ActionQueue string
	Concurrency int

	// Filled from RedisConfig by Validate.
	RedisURL         string
	RedisTLSInsecure bool
}

type HTTPConfig struct {
	WebhookRatePerSecond float64
	WebhookBurst         int
	ShutdownTimeout      time.Duration
}

type TwilioConfig struct {
	// AuthToken enables status callback signature validation.
	AuthToken string
	// PublicURL is the scheme and host Twilio calls back on.
	PublicURL string
	// Region normalizes numbers without a country prefix (ISO 3166-1 alpha-2).
	Region string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	c := Config{}
	var parseErrs errorList

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = parseErrs.keep(mustInt("APP_PORT"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = parseErrs.keep(mustInt("DB_PORT"))
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.MaxOpenConns = parseErrs.keep(optionalInt("DB_MAX_OPEN_CONNS"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = parseErrs.keep(mustInt("REDIS_PORT"))
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = parseErrs.keep(optionalInt("REDIS_DB"))
	c.Redis.TLS = optionalBool("REDIS_TLS", false)
	c.Redis.TLSInsecure = optionalBool("REDIS_TLS_INSECURE", false)

	// Duration env vars are optional; defaults applied in Validate().
	c.Monitor.Enabled = optionalBool("MONITOR_ENABLED", true)
	c.Monitor.Interval = mustDuration("MONITOR_INTERVAL")
	c.Monitor.Window = mustDuration("MONITOR_WINDOW")
	c.Monitor.LockTTL = mustDuration("MONITOR_LOCK_TTL")
	c.Monitor.LatestTTL = mustDuration("MONITOR_LATEST_TTL")

	c.Scheduler.Enabled = optionalBool("SCHEDULER_ENABLED", true)
	c.Scheduler.Queue = strings.TrimSpace(os.Getenv("ASYNQ_QUEUE"))
	c.Scheduler.ActionQueue = strings.TrimSpace(os.Getenv("ASYNQ_ACTION_QUEUE"))
	c.Scheduler.Concurrency = parseErrs.keep(optionalInt("ASYNQ_CONCURRENCY"))

	if v := strings.TrimSpace(os.Getenv("WEBHOOK_RATE_PER_SECOND")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			parseErrs.add(fmt.Errorf("WEBHOOK_RATE_PER_SECOND must be a number, got %q", v))
		}
		c.HTTP.WebhookRatePerSecond = f
	}
	c.HTTP.WebhookBurst = parseErrs.keep(optionalInt("WEBHOOK_BURST"))
	c.HTTP.ShutdownTimeout = mustDuration("HTTP_SHUTDOWN_TIMEOUT")

	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PublicURL = strings.TrimSpace(os.Getenv("TWILIO_PUBLIC_URL"))
	c.Twilio.Region = strings.ToUpper(strings.TrimSpace(os.Getenv("TWILIO_DEFAULT_REGION")))

	if err := joinErrors(parseErrs.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills defaults for optional values.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	if c.DB.MaxOpenConns < 0 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be >= 0, got %d", c.DB.MaxOpenConns))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be between 0 and 15, got %d", c.Redis.DB))
	}

	if c.Monitor.Interval <= 0 {
		c.Monitor.Interval = 60 * time.Second
	}
	if c.Monitor.Window <= 0 {
		c.Monitor.Window = 2 * time.Minute
	}
	if c.Monitor.LockTTL <= 0 {
		c.Monitor.LockTTL = 5 * time.Minute
	}
	if c.Monitor.LatestTTL <= 0 {
		c.Monitor.LatestTTL = 24 * time.Hour
	}
	if c.Monitor.LockTTL < c.Monitor.Interval {
		errs = append(errs, errors.New("MONITOR_LOCK_TTL must be at least MONITOR_INTERVAL"))
	}

	if c.Scheduler.Queue == "" {
		c.Scheduler.Queue = "default"
	}
	if c.Scheduler.ActionQueue == "" {
		c.Scheduler.ActionQueue = DefaultActionQueue
	}
	if c.Scheduler.ActionQueue == c.Scheduler.Queue {
		errs = append(errs, errors.New("ASYNQ_ACTION_QUEUE must differ from ASYNQ_QUEUE"))
	}
	if c.Scheduler.Concurrency <= 0 {
		c.Scheduler.Concurrency = 10
	}
	c.Scheduler.RedisURL = c.RedisURL()
	c.Scheduler.RedisTLSInsecure = c.Redis.TLSInsecure

	if c.HTTP.WebhookRatePerSecond <= 0 {
		c.HTTP.WebhookRatePerSecond = 20
	}
	if c.HTTP.WebhookBurst <= 0 {
		c.HTTP.WebhookBurst = 40
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}

	if c.Twilio.Region == "" {
		c.Twilio.Region = "US"
	}
	if c.Twilio.AuthToken != "" && c.Twilio.PublicURL == "" {
		errs = append(errs, errors.New("TWILIO_PUBLIC_URL is required when TWILIO_AUTH_TOKEN is set"))
	}
	if c.IsProduction() && c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// RedisURL is the redis:// form asynq is configured from. It contains the
// password and must not be logged.
func (c Config) RedisURL() string {
	if c.Redis.Host == "" {
		return ""
	}
	scheme := "redis"
	if c.Redis.TLS {
		scheme = "rediss"
	}
	u := url.URL{Scheme: scheme, Host: c.RedisAddr(), Path: "/" + strconv.Itoa(c.Redis.DB)}
	if c.Redis.Password != "" {
		u.User = url.UserPassword("", c.Redis.Password)
	}
	return u.String()
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

type errorList struct{ errs []error }

func (l *errorList) add(err error) {
	if err != nil {
		l.errs = append(l.errs, err)
	}
}

// keep records err and returns n so parse calls stay one line each.
func (l *errorList) keep(n int, err error) int {
	l.add(err)
	return n
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
