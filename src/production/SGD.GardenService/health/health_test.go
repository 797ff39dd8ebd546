package health

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_AllOK(t *testing.T) {
	h := NewHealthChecker()
	h.Register("redis", func(ctx context.Context) error { return nil })
	h.Register("mqtt", func(ctx context.Context) error { return nil })

	status, ok := h.GetHealthStatus(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "ok", status["status"])
	checks := status["checks"].(map[string]interface{})
	assert.Len(t, checks, 2)
}

func TestHealthChecker_Degraded(t *testing.T) {
	h := NewHealthChecker()
	h.Register("redis", func(ctx context.Context) error { return nil })
	h.Register("mongo", func(ctx context.Context) error { return errors.New("no primary") })

	status, ok := h.GetHealthStatus(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "degraded", status["status"])
	mongo := status["checks"].(map[string]interface{})["mongo"].(map[string]interface{})
	assert.Equal(t, "error", mongo["status"])
	assert.Equal(t, "no primary", mongo["error"])
}

func TestPostgresCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	assert.NoError(t, PostgresCheck(db)(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.ErrorContains(t, PostgresCheck(db)(context.Background()), "ping")

	assert.Error(t, PostgresCheck(nil)(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS devices").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS threshold_settings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewDatabaseManager(db).CreateTables(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	assert.NoError(t, RedisCheck(client)(context.Background()))

	mr.Close()
	assert.ErrorContains(t, RedisCheck(client)(context.Background()), "redis ping failed")
}

func TestConnectedCheck(t *testing.T) {
	up := true
	check := ConnectedCheck(func() bool { return up })
	assert.NoError(t, check(context.Background()))

	up = false
	assert.Error(t, check(context.Background()))
}
