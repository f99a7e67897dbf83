package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// PoolerOptions are decoded from a pooler source's params.
type PoolerOptions struct {
	DSN string `mapstructure:"dsn"`
	// CollectConnections adds the SHOW CLIENTS and SHOW SERVERS row-sets.
	CollectConnections bool `mapstructure:"collect_connections"`
}

// Aggregated pooler counters and the SHOW columns they are summed from.
var (
	poolColumns = []string{"cl_active", "cl_waiting", "sv_active", "sv_idle"}
	statColumns = map[string]string{
		"total_xact_count":  "xact_count",
		"total_query_count": "query_count",
		"total_received":    "bytes_received",
		"total_sent":        "bytes_sent",
	}
)

// PoolerCollector reads PgBouncer's admin console.
type PoolerCollector struct {
	id     snapshot.SourceID
	opts   PoolerOptions
	dial   Dialer
	health *healthTracker
	now    func() time.Time

	gate    fetchGate
	conn    Querier
	version string
}

// NewPoolerCollector builds a pooler collector from its source config.
func NewPoolerCollector(src config.SourceConfig, dial Dialer) (*PoolerCollector, error) {
	opts := PoolerOptions{CollectConnections: true}
	if err := src.DecodeParams(&opts); err != nil {
		return nil, err
	}
	if opts.DSN == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "pooler source requires params.dsn")
	}
	id := snapshot.SourceID(src.ID)
	if id == "" {
		id = snapshot.SourcePool
	}
	return &PoolerCollector{
		id:     id,
		opts:   opts,
		dial:   dial,
		health: newHealthTracker(id),
		now:    time.Now,
		gate:   newFetchGate(),
	}, nil
}

func (c *PoolerCollector) Identify() snapshot.SourceID { return c.id }

func (c *PoolerCollector) Health() Health { return c.health.get() }

// Fetch reads SHOW STATS and SHOW POOLS and sums their counters. Client and
// server connection lists are added when enabled.
func (c *PoolerCollector) Fetch(ctx context.Context) (snapshot.SourceReading, error) {
	if err := c.gate.enter(ctx); err != nil {
		err = errors.FetchTransient(string(c.id), err).WithDetail("reason", "previous fetch still running")
		c.health.failure(err)
		return snapshot.SourceReading{}, err
	}
	defer c.gate.leave()

	reading, err := c.fetch(ctx)
	if err != nil {
		err = classifyError(string(c.id), err)
		c.health.failure(err)
		return snapshot.SourceReading{}, err
	}
	c.health.success(reading.FetchedAt)
	return reading, nil
}

func (c *PoolerCollector) fetch(ctx context.Context) (snapshot.SourceReading, error) {
	if c.conn == nil {
		q, err := c.dial(ctx, c.opts.DSN, DialOptions{AdminConsole: true})
		if err != nil {
			return snapshot.SourceReading{}, err
		}
		c.conn = q
		c.version = ""
	}

	if c.version == "" {
		rows, err := c.conn.QueryRows(ctx, queryPoolerVersion)
		if err != nil {
			c.reset()
			return snapshot.SourceReading{}, err
		}
		if len(rows) > 0 {
			c.version = rows[0]["version"]
		}
	}

	reading := newReading(c.now())
	reading.Fields["version"] = snapshot.Text(c.version)

	stats, err := c.conn.QueryRows(ctx, queryPoolerStats)
	if err != nil {
		c.reset()
		return snapshot.SourceReading{}, err
	}
	reading.Fields["stats"] = toRows(stats)
	columns := make([]string, 0, len(statColumns))
	for col := range statColumns {
		columns = append(columns, col)
	}
	for col, sum := range sumColumns(stats, columns...) {
		reading.Fields[statColumns[col]] = snapshot.Counter(sum)
	}

	var failed []string
	for _, set := range c.rowSets() {
		rows, err := c.conn.QueryRows(ctx, set.sql)
		if err != nil {
			if ctx.Err() != nil {
				c.reset()
				return snapshot.SourceReading{}, ctx.Err()
			}
			failed = append(failed, fmt.Sprintf("%s: %v", set.name, err))
			continue
		}
		reading.Fields[set.name] = toRows(rows)
		if set.sums != nil {
			for col, sum := range sumColumns(rows, set.sums...) {
				reading.Fields[col] = snapshot.Gauge(float64(sum))
			}
		}
	}
	if len(failed) > 0 {
		reading.Status = snapshot.StatusDegraded
		reading.Error = strings.Join(failed, "; ")
	}
	return reading, nil
}

// poolerRowSet is an optional SHOW command. A failed one degrades the reading.
type poolerRowSet struct {
	name string
	sql  string
	sums []string
}

func (c *PoolerCollector) rowSets() []poolerRowSet {
	sets := []poolerRowSet{{name: "pools", sql: queryPoolerPools, sums: poolColumns}}
	if c.opts.CollectConnections {
		sets = append(sets,
			poolerRowSet{name: "clients", sql: queryPoolerClients},
			poolerRowSet{name: "servers", sql: queryPoolerServers})
	}
	return sets
}

func (c *PoolerCollector) reset() {
	if c.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = c.conn.Close(ctx)
		cancel()
	}
	c.conn = nil
	c.version = ""
}

// Close releases the admin console connection.
func (c *PoolerCollector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.gate.enter(ctx); err != nil {
		return err
	}
	defer c.gate.leave()
	c.reset()
	return nil
}
