package clickhouse_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"smc-lab/internal/domain"
	"smc-lab/internal/storage"
	chstore "smc-lab/internal/storage/clickhouse"
	"smc-lab/internal/storage/migrations"
)

// setupTestDB starts a ClickHouse container and applies the embedded migrations.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*chstore.Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60*time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/smc_test", host, port.Port())

	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	require.NoError(t, err)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

func candles(times ...int64) []domain.Candle {
	out := make([]domain.Candle, len(times))
	for i, ts := range times {
		out[i] = domain.Candle{Time: ts, Open: 100, High: 101.5, Low: 99.25, Close: 100.75, Volume: 12.5}
	}
	return out
}

func TestCandleStore_Integration(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewCandleStore(conn)
	ctx := context.Background()
	btc := domain.SeriesKey{Symbol: "BTCUSDT", Interval: "1h"}
	eth := domain.SeriesKey{Symbol: "ETHUSDT", Interval: "1h"}

	require.NoError(t, store.InsertBulk(ctx, btc, candles(7200, 0, 3600)))
	require.NoError(t, store.InsertBulk(ctx, eth, candles(0)))

	got, err := store.GetBySeries(ctx, btc)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(0), got[0].Time)
	assert.Equal(t, int64(7200), got[2].Time)
	assert.Equal(t, candles(0)[0], got[0])

	ranged, err := store.GetByTimeRange(ctx, btc, 3600, 7200)
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	latest, err := store.Latest(ctx, btc)
	require.NoError(t, err)
	assert.Equal(t, int64(7200), latest.Time)

	_, err = store.Latest(ctx, domain.SeriesKey{Symbol: "SOLUSDT", Interval: "1h"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.InsertBulk(ctx, btc, candles(10800, 3600))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	keys, err := store.ListSeries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SeriesKey{btc, eth}, keys)
}
