package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

const exporterBody = `# HELP rds_cpu_utilization CPU utilization percent.
# TYPE rds_cpu_utilization gauge
rds_cpu_utilization{instance="db1"} 42.5
# HELP rds_read_iops_total Read operations.
# TYPE rds_read_iops_total counter
rds_read_iops_total{instance="db1",volume="a"} 1200
# HELP rds_query_seconds Query latency.
# TYPE rds_query_seconds summary
rds_query_seconds_sum 3.5
rds_query_seconds_count 7
`

func newTestCloud(t *testing.T, url string, params map[string]interface{}) *CloudCollector {
	t.Helper()
	if params == nil {
		params = map[string]interface{}{}
	}
	params["url"] = url
	c, err := NewCloudCollector(config.SourceConfig{ID: "cloud", Kind: config.KindCloud, Params: params})
	require.NoError(t, err)
	return c
}

func TestCloudScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(exporterBody))
	}))
	defer srv.Close()

	c := newTestCloud(t, srv.URL, map[string]interface{}{
		"headers": map[string]interface{}{"X-Api-Key": "secret"},
	})
	reading, err := c.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, snapshot.Gauge(42.5), reading.Fields[`rds_cpu_utilization{instance="db1"}`])
	assert.Equal(t, snapshot.Counter(1200), reading.Fields[`rds_read_iops_total{instance="db1",volume="a"}`])
	assert.Equal(t, snapshot.Gauge(3.5), reading.Fields["rds_query_seconds_sum"])
	assert.Equal(t, snapshot.Counter(7), reading.Fields["rds_query_seconds_count"])
	assert.Equal(t, HealthOK, c.Health().State)
}

func TestCloudMetricAllowList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(exporterBody))
	}))
	defer srv.Close()

	c := newTestCloud(t, srv.URL, map[string]interface{}{
		"metrics": []interface{}{"rds_cpu_utilization"},
	})
	reading, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, reading.Fields, 1)
}

func TestCloudStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		code   errors.ErrorCode
	}{
		{http.StatusForbidden, errors.ErrCodeFetchTerminal},
		{http.StatusNotFound, errors.ErrCodeFetchTerminal},
		{http.StatusServiceUnavailable, errors.ErrCodeFetchTransient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestCloud(t, srv.URL, nil).Fetch(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestCloudHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestCloud(t, srv.URL, nil).Fetch(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeFetchTransient))
	assert.Less(t, time.Since(start), time.Second)
}
