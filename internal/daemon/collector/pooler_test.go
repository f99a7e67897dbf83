package collector

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

func poolerFixture() *fakeQuerier {
	q := newFakeQuerier()
	q.set(queryPoolerVersion, map[string]string{"version": "PgBouncer 1.22.0"})
	q.set(queryPoolerStats,
		map[string]string{"database": "app", "total_xact_count": "100", "total_query_count": "250", "total_received": "4096", "total_sent": "8192"},
		map[string]string{"database": "pgbouncer", "total_xact_count": "3", "total_query_count": "3", "total_received": "0", "total_sent": "0"},
	)
	q.set(queryPoolerPools,
		map[string]string{"database": "app", "user": "app", "cl_active": "7", "cl_waiting": "2", "sv_active": "5", "sv_idle": "1"},
		map[string]string{"database": "app", "user": "report", "cl_active": "1", "cl_waiting": "0", "sv_active": "1", "sv_idle": "3"},
	)
	q.set(queryPoolerClients,
		map[string]string{"type": "C", "user": "app", "database": "app", "state": "active", "addr": "10.0.0.8"},
		map[string]string{"type": "C", "user": "app", "database": "app", "state": "waiting", "addr": "10.0.0.9"},
	)
	q.set(queryPoolerServers,
		map[string]string{"type": "S", "user": "app", "database": "app", "state": "active", "addr": "10.0.0.5"},
	)
	return q
}

func newTestPooler(t *testing.T, d *fakeDialer, extra ...map[string]interface{}) *PoolerCollector {
	t.Helper()
	params := map[string]interface{}{"dsn": "postgres://pgbouncer@localhost:6432/pgbouncer"}
	for _, m := range extra {
		for k, v := range m {
			params[k] = v
		}
	}
	c, err := NewPoolerCollector(config.SourceConfig{
		ID:     "pool",
		Kind:   config.KindPooler,
		Params: params,
	}, d.dial)
	require.NoError(t, err)
	return c
}

func TestPoolerSumsAcrossPools(t *testing.T) {
	q := poolerFixture()
	d := &fakeDialer{q: q}
	c := newTestPooler(t, d)

	reading, err := c.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, snapshot.StatusOK, reading.Status)
	assert.Equal(t, snapshot.Text("PgBouncer 1.22.0"), reading.Fields["version"])
	assert.Equal(t, snapshot.Counter(103), reading.Fields["xact_count"])
	assert.Equal(t, snapshot.Counter(253), reading.Fields["query_count"])
	assert.Equal(t, snapshot.Counter(4096), reading.Fields["bytes_received"])
	assert.Equal(t, snapshot.Counter(8192), reading.Fields["bytes_sent"])
	assert.Equal(t, snapshot.Gauge(8), reading.Fields["cl_active"])
	assert.Equal(t, snapshot.Gauge(2), reading.Fields["cl_waiting"])
	assert.Equal(t, snapshot.Gauge(6), reading.Fields["sv_active"])
	assert.Equal(t, snapshot.Gauge(4), reading.Fields["sv_idle"])
	assert.Len(t, reading.Fields["pools"].Rows, 2)
	assert.Len(t, reading.Fields["clients"].Rows, 2)
	assert.Len(t, reading.Fields["servers"].Rows, 1)
	require.Len(t, d.opts, 1)
	assert.True(t, d.opts[0].AdminConsole)
}

func TestPoolerCachesVersion(t *testing.T) {
	q := poolerFixture()
	c := newTestPooler(t, &fakeDialer{q: q})

	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, q.count(queryPoolerVersion))
	assert.Equal(t, 3, q.count(queryPoolerStats))
}

func TestPoolerPoolsFailureDegrades(t *testing.T) {
	q := poolerFixture()
	q.fail(queryPoolerPools, fmt.Errorf("admin console busy"))
	c := newTestPooler(t, &fakeDialer{q: q})

	reading, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshot.StatusDegraded, reading.Status)
	assert.Equal(t, snapshot.Counter(103), reading.Fields["xact_count"])
	_, ok := reading.Fields["cl_active"]
	assert.False(t, ok)
}

func TestPoolerStatsFailureFailsFetch(t *testing.T) {
	q := poolerFixture()
	q.fail(queryPoolerStats, fmt.Errorf("server closed the connection unexpectedly"))
	d := &fakeDialer{q: q}
	c := newTestPooler(t, d)

	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, q.closed)

	q.set(queryPoolerStats)
	_, err = c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, d.dials)
	assert.Equal(t, 2, q.count(queryPoolerVersion))
}

func TestPoolerConnectionListFailureDegrades(t *testing.T) {
	q := poolerFixture()
	q.fail(queryPoolerServers, fmt.Errorf("admin console busy"))
	c := newTestPooler(t, &fakeDialer{q: q})

	reading, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshot.StatusDegraded, reading.Status)
	assert.Contains(t, reading.Error, "servers")
	assert.Len(t, reading.Fields["clients"].Rows, 2)
	assert.Equal(t, snapshot.Gauge(8), reading.Fields["cl_active"])
	assert.False(t, q.closed)
}

func TestPoolerConnectionListsCanBeTurnedOff(t *testing.T) {
	q := poolerFixture()
	c := newTestPooler(t, &fakeDialer{q: q}, map[string]interface{}{"collect_connections": false})

	reading, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, q.count(queryPoolerClients))
	assert.Zero(t, q.count(queryPoolerServers))
	_, ok := reading.Fields["clients"]
	assert.False(t, ok)
}
