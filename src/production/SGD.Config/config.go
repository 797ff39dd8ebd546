package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all garden service configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Postgres holds devices and threshold settings
	Database DatabaseConfig `json:"database"`

	// Mongo holds the telemetry log
	Mongo MongoConfig `json:"mongo"`

	// Redis caches real-time device state
	Redis RedisConfig `json:"redis"`

	// MQTT configuration
	MQTT MQTTConfig `json:"mqtt"`

	// Auth configuration
	Auth AuthConfig `json:"auth"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// CORS configuration
	CORS CORSConfig `json:"cors"`

	Weather    WeatherConfig    `json:"weather"`
	AI         AIConfig         `json:"ai"`
	Mail       MailConfig       `json:"mail"`
	Automation AutomationConfig `json:"automation"`
	Telemetry  BatchConfig      `json:"telemetry"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
}

// MongoConfig holds MongoDB connection settings
type MongoConfig struct {
	URI        string        `json:"uri"`
	Database   string        `json:"database"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	StateTTL time.Duration `json:"state_ttl"`
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	BrokerHost  string        `json:"broker_host"`
	BrokerPort  int           `json:"broker_port"`
	BrokerUser  string        `json:"broker_user"`
	BrokerPass  string        `json:"broker_pass"`
	UseTLS      bool          `json:"use_tls"`
	CACertPath  string        `json:"ca_cert_path"`
	Topic       string        `json:"topic"`
	ClientID    string        `json:"client_id"`
	SharedGroup string        `json:"shared_group"`
	QoS         byte          `json:"qos"`
	KeepAlive   time.Duration `json:"keep_alive"`
	PingTimeout time.Duration `json:"ping_timeout"`
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	Enabled              bool          `json:"enabled"`
	JWTSecretKey         string        `json:"jwt_secret_key"`
	JWTIssuer            string        `json:"jwt_issuer"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	SecureCookies        bool          `json:"secure_cookies"`
	Admin                AdminConfig   `json:"admin"`
}

// AdminConfig holds the operator account
type AdminConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout, stderr, or file path
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// WeatherConfig points at an OpenWeatherMap-compatible forecast endpoint
type WeatherConfig struct {
	APIURL          string        `json:"api_url"`
	APIKey          string        `json:"api_key"`
	DefaultLocation string        `json:"default_location"`
	Language        string        `json:"language"`
	Timeout         time.Duration `json:"timeout"`
}

// AIConfig points at the garden assistant service
type AIConfig struct {
	ServiceURL string        `json:"service_url"`
	Timeout    time.Duration `json:"timeout"`
}

// MailConfig holds SMTP settings for operator notifications
type MailConfig struct {
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	From     string   `json:"from"`
	To       []string `json:"to"`
}

// Enabled reports whether enough SMTP settings are present to send mail
func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.From != "" && len(m.To) > 0
}

// AutomationConfig drives the scheduled garden jobs
type AutomationConfig struct {
	Enabled      bool          `json:"enabled"`
	Cron         string        `json:"cron"`
	DeviceUIDs   []string      `json:"device_uids"`
	Prompt       string        `json:"prompt"`
	OfflineAfter time.Duration `json:"offline_after"`
	SweepCron    string        `json:"sweep_cron"`
}

// BatchConfig holds batch processing configuration
type BatchConfig struct {
	Size   int           `json:"size"`
	Window time.Duration `json:"window"`
}

const (
	defaultJWTSecret    = "change-this-secret-in-production"
	DefaultDeviceUID    = "ESP32_GARDEN_001"
	DefaultInboundTopic = "smartgarden/device/+/+"
	defaultPrompt       = "Analyse the current state of the garden and propose automatic actions that keep the plants healthy. " +
		"If the readings are not far from normal, do not propose any action."
)

// Load loads the garden service configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	// A missing .env file is fine; variables may be set directly
	_ = godotenv.Load()

	env := &envReader{}
	config := &Config{
		Server: ServerConfig{
			Port:         env.str("PORT", "8080"),
			ReadTimeout:  env.duration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: env.duration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  env.duration("IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Host:     env.str("POSTGRES_HOST", "localhost"),
			Port:     env.integer("POSTGRES_PORT", 5432),
			User:     env.str("POSTGRES_USER", ""),
			Password: env.str("POSTGRES_PASSWORD", ""),
			DBName:   env.str("POSTGRES_DB", "smartgarden"),
			SSLMode:  env.str("POSTGRES_SSLMODE", "disable"),
			MaxConns: env.integer("POSTGRES_MAX_CONNS", 25),
			MinConns: env.integer("POSTGRES_MIN_CONNS", 5),
		},
		Mongo: MongoConfig{
			URI:        env.str("MONGODB_URI", "mongodb://localhost:27017"),
			Database:   env.str("MONGODB_DB", "smartgarden"),
			Collection: env.str("MONGODB_TELEMETRY_COLLECTION", "telemetry_logs"),
			Timeout:    env.duration("MONGODB_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     env.str("REDIS_ADDR", "localhost:6379"),
			Password: env.str("REDIS_PASSWORD", ""),
			DB:       env.integer("REDIS_DB", 0),
			StateTTL: env.duration("REDIS_STATE_TTL", 0),
		},
		MQTT: MQTTConfig{
			BrokerHost:  env.str("BROKER_HOST", "localhost"),
			BrokerPort:  env.integer("BROKER_PORT", 1883),
			BrokerUser:  env.str("BROKER_USER", ""),
			BrokerPass:  env.str("BROKER_PASS", ""),
			UseTLS:      env.boolean("BROKER_TLS", false),
			CACertPath:  env.str("BROKER_CA_FILE", ""),
			Topic:       env.str("MQTT_TOPIC", DefaultInboundTopic),
			ClientID:    env.str("MQTT_CLIENT_ID", "garden-service"),
			SharedGroup: env.str("MQTT_SHARED_GROUP", ""),
			QoS:         byte(env.integer("MQTT_QOS", 1)),
			KeepAlive:   env.duration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout: env.duration("MQTT_PING_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			Enabled:              env.boolean("AUTH_ENABLED", true),
			JWTSecretKey:         env.str("JWT_SECRET_KEY", defaultJWTSecret),
			JWTIssuer:            env.str("JWT_ISSUER", "garden-service"),
			AccessTokenDuration:  env.duration("JWT_ACCESS_TOKEN_DURATION", 15*time.Minute),
			RefreshTokenDuration: env.duration("JWT_REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			SecureCookies:        env.boolean("AUTH_SECURE_COOKIES", false),
			Admin: AdminConfig{
				Username: env.str("ADMIN_USERNAME", "admin"),
				Password: env.str("ADMIN_PASSWORD", ""),
			},
		},
		Logging: LoggingConfig{
			Level:        env.str("LOG_LEVEL", "info"),
			Format:       env.str("LOG_FORMAT", "text"),
			Output:       env.str("LOG_OUTPUT", "stdout"),
			EnableCaller: env.boolean("LOG_ENABLE_CALLER", false),
		},
		CORS: CORSConfig{
			AllowedOrigins:   env.list("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   env.list("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   env.list("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization"}),
			ExposedHeaders:   env.list("CORS_EXPOSED_HEADERS", []string{"Content-Length"}),
			AllowCredentials: env.boolean("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           env.integer("CORS_MAX_AGE", 43200), // 12 hours
		},
		Weather: WeatherConfig{
			APIURL:          env.str("WEATHER_API_URL", "https://api.openweathermap.org/data/2.5/forecast"),
			APIKey:          env.str("WEATHER_API_KEY", ""),
			DefaultLocation: env.str("WEATHER_DEFAULT_LOCATION", "Hanoi,VN"),
			Language:        env.str("WEATHER_LANG", "en"),
			Timeout:         env.duration("WEATHER_TIMEOUT", 10*time.Second),
		},
		AI: AIConfig{
			ServiceURL: env.str("AI_SERVICE_URL", "http://localhost:5000/chat"),
			Timeout:    env.duration("AI_TIMEOUT", 60*time.Second),
		},
		Mail: MailConfig{
			Host:     env.str("SMTP_HOST", ""),
			Port:     env.integer("SMTP_PORT", 587),
			Username: env.str("SMTP_USERNAME", ""),
			Password: env.str("SMTP_PASSWORD", ""),
			From:     env.str("MAIL_FROM", ""),
			To:       env.list("MAIL_TO", nil),
		},
		Automation: AutomationConfig{
			Enabled:      env.boolean("AUTOMATION_ENABLED", true),
			Cron:         env.str("AUTOMATION_CRON", "@every 1m"),
			DeviceUIDs:   env.list("AUTOMATION_DEVICE_UIDS", []string{DefaultDeviceUID}),
			Prompt:       env.str("AUTOMATION_PROMPT", defaultPrompt),
			OfflineAfter: env.duration("DEVICE_OFFLINE_AFTER", 2*time.Minute),
			SweepCron:    env.str("DEVICE_SWEEP_CRON", "@every 30s"),
		},
		Telemetry: BatchConfig{
			Size:   env.integer("TELEMETRY_BATCH_SIZE", 200),
			Window: env.duration("TELEMETRY_BATCH_WINDOW", 1*time.Second),
		},
	}

	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// Validate reports every invalid or missing setting at once
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Database.User != "", "POSTGRES_USER is required")
	check(c.Database.Password != "", "POSTGRES_PASSWORD is required")
	check(c.MQTT.BrokerPort >= 1 && c.MQTT.BrokerPort <= 65535, "BROKER_PORT must be between 1 and 65535, got %d", c.MQTT.BrokerPort)
	check(c.MQTT.QoS <= 2, "MQTT_QOS must be 0, 1 or 2, got %d", c.MQTT.QoS)
	if c.Auth.Enabled {
		check(c.Auth.Admin.Password != "", "ADMIN_PASSWORD is required when AUTH_ENABLED is true")
	}
	check(c.Telemetry.Size > 0, "TELEMETRY_BATCH_SIZE must be positive")
	check(c.Telemetry.Window > 0, "TELEMETRY_BATCH_WINDOW must be positive")
	return errors.Join(errs...)
}

// Warnings lists settings that work but should not reach production
func (c *Config) Warnings() []string {
	var out []string
	if c.Auth.Enabled && c.Auth.JWTSecretKey == defaultJWTSecret {
		out = append(out, "JWT_SECRET_KEY is the built-in default; set a real secret")
	}
	if !c.Auth.Enabled {
		out = append(out, "AUTH_ENABLED is false; the API is open to anyone who can reach it")
	}
	if !c.Mail.Enabled() {
		out = append(out, "SMTP_HOST, MAIL_FROM or MAIL_TO missing; operator notifications are disabled")
	}
	return out
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *Config) GetMQTTBrokerURL() string {
	return BrokerURL(c.MQTT.BrokerHost, c.MQTT.BrokerPort, c.MQTT.UseTLS)
}

// BrokerURL builds a paho broker URL
func BrokerURL(host string, port int, useTLS bool) string {
	scheme := "tcp"
	if useTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// envReader reads typed variables and keeps every parse error
// so Load can report them together.
type envReader struct {
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *envReader) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

// list splits a comma-separated variable, dropping empty items
func (e *envReader) list(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
