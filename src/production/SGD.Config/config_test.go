package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_USER", "garden")
	t.Setenv("POSTGRES_PASSWORD", "garden")
	t.Setenv("ADMIN_PASSWORD", "operator")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DefaultInboundTopic, cfg.MQTT.Topic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, []string{DefaultDeviceUID}, cfg.Automation.DeviceUIDs)
	assert.Equal(t, 2*time.Minute, cfg.Automation.OfflineAfter)
	assert.True(t, cfg.Auth.Enabled)
	assert.False(t, cfg.Mail.Enabled())
	assert.Equal(t, "tcp://localhost:1883", cfg.GetMQTTBrokerURL())
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BROKER_HOST", "broker.local")
	t.Setenv("BROKER_PORT", "8883")
	t.Setenv("BROKER_TLS", "true")
	t.Setenv("AUTOMATION_DEVICE_UIDS", "A, B,,C")
	t.Setenv("TELEMETRY_BATCH_WINDOW", "250ms")
	t.Setenv("SMTP_HOST", "smtp.local")
	t.Setenv("MAIL_FROM", "garden@example.com")
	t.Setenv("MAIL_TO", "ops@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tcps://broker.local:8883", cfg.GetMQTTBrokerURL())
	assert.Equal(t, []string{"A", "B", "C"}, cfg.Automation.DeviceUIDs)
	assert.Equal(t, 250*time.Millisecond, cfg.Telemetry.Window)
	assert.True(t, cfg.Mail.Enabled())
}

func TestValidate(t *testing.T) {
	t.Run("missing database user", func(t *testing.T) {
		t.Setenv("POSTGRES_PASSWORD", "garden")
		t.Setenv("ADMIN_PASSWORD", "operator")
		t.Setenv("POSTGRES_USER", "")
		_, err := Load()
		assert.ErrorContains(t, err, "POSTGRES_USER")
	})

	t.Run("auth without admin password", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("ADMIN_PASSWORD", "")
		_, err := Load()
		assert.ErrorContains(t, err, "ADMIN_PASSWORD")
	})

	t.Run("auth disabled needs no admin", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("ADMIN_PASSWORD", "")
		t.Setenv("AUTH_ENABLED", "false")
		_, err := Load()
		assert.NoError(t, err)
	})

	t.Run("bad qos", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("MQTT_QOS", "3")
		_, err := Load()
		assert.ErrorContains(t, err, "MQTT_QOS")
	})
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "garden", SSLMode: "disable"}}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=garden sslmode=disable", cfg.GetDatabaseDSN())
}

func TestLoad_ReportsEveryParseError(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BROKER_PORT", "eighteen")
	t.Setenv("AUTH_ENABLED", "maybe")
	t.Setenv("TELEMETRY_BATCH_WINDOW", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "BROKER_PORT")
	assert.ErrorContains(t, err, "AUTH_ENABLED")
	assert.ErrorContains(t, err, "TELEMETRY_BATCH_WINDOW")
}

func TestValidate_JoinsProblems(t *testing.T) {
	cfg := &Config{
		MQTT:      MQTTConfig{BrokerPort: 0, QoS: 1},
		Telemetry: BatchConfig{Size: 10, Window: time.Second},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "POSTGRES_USER")
	assert.ErrorContains(t, err, "POSTGRES_PASSWORD")
	assert.ErrorContains(t, err, "BROKER_PORT")
}

func TestWarnings(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{Enabled: true, JWTSecretKey: defaultJWTSecret}}
	warnings := cfg.Warnings()
	assert.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "JWT_SECRET_KEY")

	cfg = &Config{
		Auth: AuthConfig{Enabled: true, JWTSecretKey: "real"},
		Mail: MailConfig{Host: "smtp", From: "a@b", To: []string{"c@d"}},
	}
	assert.Empty(t, cfg.Warnings())
}
