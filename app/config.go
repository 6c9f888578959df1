package app

import (
	"fmt"
	"github.com/joho/godotenv"
	"github.com/lefinal/confcomp-server/agenda"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/remindersvc"
	"github.com/lefinal/confcomp-server/web_server"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
	"os"
	"strconv"
	"time"
)

// Environment variables that override values from the config file.
const (
	EnvDBConn        = "CONFCOMP_DB_CONN"
	EnvMQTTAddr      = "CONFCOMP_MQTT_ADDR"
	EnvRedisAddr     = "CONFCOMP_REDIS_ADDR"
	EnvRedisPassword = "CONFCOMP_REDIS_PASSWORD"
	EnvRedisDB       = "CONFCOMP_REDIS_DB"
)

// Defaults used by Config.Normalize.
const (
	defaultMaxDBConnections = 16
	defaultStdoutLogLevel   = "info"
	defaultPublishLogLevel  = "warn"
	defaultLogMaxSizeMB     = 100
	defaultLogKeepDays      = 14
	defaultTimezone         = "UTC"
	defaultCalendarName     = "Conference Agenda"
)

// LogConfig configures logging.
type LogConfig struct {
	// StdoutLevel is the minimum level for logging to stdout.
	StdoutLevel string `yaml:"stdout_level"`
	// PublishLevel is the minimum level for log entries to publish via MQTT.
	PublishLevel string `yaml:"publish_level"`
	// HighPriorityOutput is the optional file for warnings and errors.
	HighPriorityOutput string `yaml:"high_priority_output"`
	// DebugOutput is the optional file for all log entries.
	DebugOutput string `yaml:"debug_output"`
	// MaxSizeMB is the size after which log files are rotated.
	MaxSizeMB int `yaml:"max_size_mb"`
	// KeepDays is the number of days to keep rotated log files.
	KeepDays int `yaml:"keep_days"`
	// SystemDebugStatsInterval enables periodic logging of debug stats if
	// greater than zero.
	SystemDebugStatsInterval time.Duration `yaml:"system_debug_stats_interval"`
}

// MQTTConfig configures the MQTT connection.
type MQTTConfig struct {
	// Addr is the URL of the MQTT broker like mqtt://localhost:1883.
	Addr string `yaml:"addr"`
	// ClientID overrides the default client id.
	ClientID string `yaml:"client_id"`
}

// RedisConfig configures the Redis connection for sessions.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig configures authentication.
type AuthConfig struct {
	// SessionTTL is the lifetime of sessions.
	SessionTTL time.Duration `yaml:"session_ttl"`
	// BcryptCost is the cost for password hashing.
	BcryptCost int `yaml:"bcrypt_cost"`
	// AdminEmails are the emails of accounts that are admins. They are checked on
	// every sign-in, so existing accounts are promoted as well.
	AdminEmails []string `yaml:"admin_emails"`
}

// AgendaConfig configures agenda computation.
type AgendaConfig struct {
	// TransitiveGrouping groups events connected via conflict chains instead of
	// only direct conflicts.
	TransitiveGrouping bool `yaml:"transitive_grouping"`
	// CalendarName is the name of the exported iCalendar feed.
	CalendarName string `yaml:"calendar_name"`
}

// GroupingMode returns the agenda.GroupingMode for the config.
func (c AgendaConfig) GroupingMode() agenda.GroupingMode {
	if c.TransitiveGrouping {
		return agenda.GroupingTransitive
	}
	return agenda.GroupingSingleHop
}

// RemindersConfig configures session reminders.
type RemindersConfig struct {
	// Enabled enables reminders.
	Enabled bool `yaml:"enabled"`
	// Schedule is the standard cron spec for checking upcoming sessions.
	Schedule string `yaml:"schedule"`
	// LeadTime is how long before the start of a session to remind.
	LeadTime time.Duration `yaml:"lead_time"`
}

// Config is the configuration needed in order to boot an App.
type Config struct {
	Log LogConfig `yaml:"log"`
	// DBConn is the connection string for the PostgreSQL database.
	DBConn string `yaml:"db_conn"`
	// MaxDBConnections is the maximum number of database connections.
	MaxDBConnections int32 `yaml:"max_db_connections"`
	// ServeAddr is the address, the app will listen for HTTP and websocket
	// connections on.
	ServeAddr string `yaml:"serve_addr"`
	// AllowedOrigins for CORS. All are allowed if empty.
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MQTT           MQTTConfig      `yaml:"mqtt"`
	Redis          RedisConfig     `yaml:"redis"`
	Auth           AuthConfig      `yaml:"auth"`
	Agenda         AgendaConfig    `yaml:"agenda"`
	Reminders      RemindersConfig `yaml:"reminders"`
	// Timezone is the IANA time zone of the conference.
	Timezone string `yaml:"timezone"`
}

// Normalize fills unset values with defaults.
func (c *Config) Normalize() {
	if c.Log.StdoutLevel == "" {
		c.Log.StdoutLevel = defaultStdoutLogLevel
	}
	if c.Log.PublishLevel == "" {
		c.Log.PublishLevel = defaultPublishLogLevel
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Log.KeepDays <= 0 {
		c.Log.KeepDays = defaultLogKeepDays
	}
	if c.MaxDBConnections <= 0 {
		c.MaxDBConnections = defaultMaxDBConnections
	}
	if c.ServeAddr == "" {
		c.ServeAddr = web_server.DefaultServeAddr
	}
	if c.Agenda.CalendarName == "" {
		c.Agenda.CalendarName = defaultCalendarName
	}
	if c.Reminders.Schedule == "" {
		c.Reminders.Schedule = remindersvc.DefaultSchedule
	}
	if c.Reminders.LeadTime <= 0 {
		c.Reminders.LeadTime = remindersvc.DefaultLeadTime
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
}

// applyEnv overrides secrets with values from the environment if set.
func (c *Config) applyEnv(lookup func(key string) (string, bool)) error {
	if v, ok := lookup(EnvDBConn); ok {
		c.DBConn = v
	}
	if v, ok := lookup(EnvMQTTAddr); ok {
		c.MQTT.Addr = v
	}
	if v, ok := lookup(EnvRedisAddr); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookup(EnvRedisPassword); ok {
		c.Redis.Password = v
	}
	if v, ok := lookup(EnvRedisDB); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return errors.NewBadRequestErr("invalid redis db in environment", err, errors.Details{"was": v})
		}
		c.Redis.DB = db
	}
	return nil
}

// ParseConfig parses the given YAML, applies environment overrides using the
// given lookup function and normalizes the result.
func ParseConfig(raw []byte, lookup func(key string) (string, bool)) (Config, error) {
	var config Config
	err := yaml.Unmarshal(raw, &config)
	if err != nil {
		return Config{}, errors.NewBadRequestErr("parse config", err, nil)
	}
	err = config.applyEnv(lookup)
	if err != nil {
		return Config{}, errors.Wrap(err, "apply environment", nil)
	}
	config.Normalize()
	return config, nil
}

// LoadConfig loads the config from the YAML file at the given path. An
// optional .env file in the working directory is loaded into the environment
// before applying overrides.
func LoadConfig(path string) (Config, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		return Config{}, errors.NewInternalErrorFromErr(err, "load .env file", nil)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.NewInternalErrorFromErr(err, "read config file", errors.Details{"path": path})
	}
	config, err := ParseConfig(raw, os.LookupEnv)
	if err != nil {
		return Config{}, errors.Wrap(err, "parse config", errors.Details{"path": path})
	}
	return config, nil
}

// parseLevel parses the given log level.
func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	err := l.UnmarshalText([]byte(level))
	if err != nil {
		return l, errors.NewBadRequestErr(fmt.Sprintf("invalid log level %q", level), err, nil)
	}
	return l, nil
}

// ValidateConfig assures that all required values are set and valid.
func ValidateConfig(config Config) error {
	if config.DBConn == "" {
		return errors.NewBadRequestErr("missing db connection string", nil, nil)
	}
	if config.MQTT.Addr == "" {
		return errors.NewBadRequestErr("missing mqtt addr", nil, nil)
	}
	if config.Redis.Addr == "" {
		return errors.NewBadRequestErr("missing redis addr", nil, nil)
	}
	if _, err := parseLevel(config.Log.StdoutLevel); err != nil {
		return errors.Wrap(err, "stdout log level", nil)
	}
	if _, err := parseLevel(config.Log.PublishLevel); err != nil {
		return errors.Wrap(err, "publish log level", nil)
	}
	if _, err := time.LoadLocation(config.Timezone); err != nil {
		return errors.NewBadRequestErr(fmt.Sprintf("invalid timezone %q", config.Timezone), err, nil)
	}
	if _, err := cron.ParseStandard(config.Reminders.Schedule); err != nil {
		return errors.NewBadRequestErr(fmt.Sprintf("invalid reminder schedule %q", config.Reminders.Schedule), err, nil)
	}
	return nil
}
