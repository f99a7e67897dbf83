package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moby/patternmatcher"

	"github.com/grovetools/pgpulse/config"
	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/logging"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// DefaultExcludeSettings hides settings that commonly carry secrets or paths
// to key material.
var DefaultExcludeSettings = []string{"*ssl*", "*password*", "*key*"}

// DefaultTopStatements is how many pg_stat_statements rows are kept.
const DefaultTopStatements = 25

// PrimaryOptions are decoded from a primary source's params.
type PrimaryOptions struct {
	DSN             string   `mapstructure:"dsn"`
	ExcludeSettings []string `mapstructure:"exclude_settings"`
	CollectSettings bool     `mapstructure:"collect_settings"`
	CollectLocks    bool     `mapstructure:"collect_locks"`
	// TopStatements limits the statement row-set; zero or less turns it off.
	TopStatements int `mapstructure:"top_statements"`
}

// PrimaryCollector reads server, activity and statistics views from a
// PostgreSQL server over one dedicated connection.
type PrimaryCollector struct {
	id       snapshot.SourceID
	opts     PrimaryOptions
	dial     Dialer
	excluder *patternmatcher.PatternMatcher
	health   *healthTracker
	now      func() time.Time

	// gate serialises fetches; conn and caps are only touched while held.
	gate fetchGate
	conn Querier
	caps *primaryCaps
}

// primaryCaps holds capability checks cached for the life of a connection.
type primaryCaps struct {
	hasStatements bool
	isReplica     bool
}

// primaryPart is one optional sub-query. A failed part degrades the reading.
type primaryPart struct {
	name  string
	sql   string
	apply func(rows []map[string]string, fields map[string]snapshot.Value)
}

// NewPrimaryCollector builds a primary collector from its source config.
func NewPrimaryCollector(src config.SourceConfig, dial Dialer) (*PrimaryCollector, error) {
	opts := PrimaryOptions{
		CollectSettings: true,
		CollectLocks:    true,
		TopStatements:   DefaultTopStatements,
	}
	if err := src.DecodeParams(&opts); err != nil {
		return nil, err
	}
	if opts.ExcludeSettings == nil {
		opts.ExcludeSettings = DefaultExcludeSettings
	}
	if opts.DSN == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "primary source requires params.dsn")
	}
	excluder, err := patternmatcher.New(opts.ExcludeSettings)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude_settings pattern: %w", err)
	}

	id := snapshot.SourceID(src.ID)
	if id == "" {
		id = snapshot.SourcePrimary
	}
	return &PrimaryCollector{
		id:       id,
		opts:     opts,
		dial:     dial,
		excluder: excluder,
		health:   newHealthTracker(id),
		now:      time.Now,
		gate:     newFetchGate(),
	}, nil
}

func (c *PrimaryCollector) Identify() snapshot.SourceID { return c.id }

func (c *PrimaryCollector) Health() Health { return c.health.get() }

// Fetch runs the primary's queries under ctx.
func (c *PrimaryCollector) Fetch(ctx context.Context) (snapshot.SourceReading, error) {
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

func (c *PrimaryCollector) fetch(ctx context.Context) (snapshot.SourceReading, error) {
	q, err := c.connection(ctx)
	if err != nil {
		return snapshot.SourceReading{}, err
	}

	if c.caps == nil {
		caps, err := c.probe(ctx, q)
		if err != nil {
			c.reset()
			return snapshot.SourceReading{}, err
		}
		c.caps = caps
	}

	reading := newReading(c.now())

	rows, err := q.QueryRows(ctx, queryServerInfo)
	if err != nil {
		c.reset()
		return snapshot.SourceReading{}, err
	}
	if len(rows) > 0 {
		newRowSpec("server", "uptime_seconds").withText("version", "database", "addr").apply(rows[0], reading.Fields)
	}
	role := "primary"
	if c.caps.isReplica {
		role = "replica"
	}
	reading.Fields["server.role"] = snapshot.Text(role)

	var failed []string
	for _, part := range c.parts() {
		rows, err := q.QueryRows(ctx, part.sql)
		if err != nil {
			if ctx.Err() != nil {
				c.reset()
				return snapshot.SourceReading{}, ctx.Err()
			}
			failed = append(failed, fmt.Sprintf("%s: %v", part.name, err))
			continue
		}
		part.apply(rows, reading.Fields)
	}

	if len(failed) > 0 {
		reading.Status = snapshot.StatusDegraded
		reading.Error = strings.Join(failed, "; ")
		logging.NewLogger("collector").WithField("source", c.id).
			WithField("failed", len(failed)).Debug("Partial primary reading")
	}
	return reading, nil
}

// parts returns the optional sub-queries for the cached capabilities.
func (c *PrimaryCollector) parts() []primaryPart {
	single := func(spec rowSpec) func([]map[string]string, map[string]snapshot.Value) {
		return func(rows []map[string]string, fields map[string]snapshot.Value) {
			if len(rows) > 0 {
				spec.apply(rows[0], fields)
			}
		}
	}
	rowSet := func(name string) func([]map[string]string, map[string]snapshot.Value) {
		return func(rows []map[string]string, fields map[string]snapshot.Value) {
			fields[name] = toRows(rows)
		}
	}

	parts := []primaryPart{
		{name: "connections", sql: queryConnectionStats, apply: single(newRowSpec("connections"))},
		{name: "database", sql: queryDatabaseStats, apply: single(newRowSpec("database",
			"xact_commit", "xact_rollback", "blks_read", "blks_hit",
			"tup_returned", "tup_fetched", "tup_inserted", "tup_updated", "tup_deleted",
			"conflicts", "deadlocks", "temp_files", "temp_bytes"))},
		{name: "bgwriter", sql: queryBgwriter, apply: single(newRowSpec("bgwriter",
			"buffers_clean", "maxwritten_clean", "buffers_alloc"))},
		{name: "activity", sql: queryActivity, apply: rowSet("activity")},
	}

	if c.caps.isReplica {
		parts = append(parts, primaryPart{name: "replication", sql: queryReplicationReplica, apply: rowSet("replication")})
	} else {
		parts = append(parts,
			primaryPart{name: "replication", sql: queryReplicationPrimary, apply: rowSet("replication")},
			primaryPart{name: "replication_slots", sql: queryReplicationSlots, apply: rowSet("replication_slots")})
	}
	parts = append(parts, primaryPart{name: "subscriptions", sql: querySubscriptions, apply: rowSet("subscriptions")})

	if c.opts.CollectLocks {
		parts = append(parts,
			primaryPart{name: "locks", sql: queryLocks, apply: rowSet("locks")},
			primaryPart{name: "blocked", sql: queryBlocked, apply: applyBlocked})
	}

	if c.caps.hasStatements {
		parts = append(parts, primaryPart{name: "statements", sql: queryStatementTypes, apply: single(newRowSpec("statements",
			"select_calls", "insert_calls", "update_calls", "delete_calls"))})
		if c.opts.TopStatements > 0 {
			parts = append(parts, primaryPart{
				name:  "top_statements",
				sql:   fmt.Sprintf(queryStatementTop, c.opts.TopStatements),
				apply: rowSet("top_statements"),
			})
		}
	}

	if c.opts.CollectSettings {
		parts = append(parts, primaryPart{name: "settings", sql: querySettings, apply: c.applySettings})
	}
	return parts
}

// applyBlocked stores blocked/blocking pairs and how many backends wait.
func applyBlocked(rows []map[string]string, fields map[string]snapshot.Value) {
	fields["blocked"] = toRows(rows)
	waiting := make(map[string]bool, len(rows))
	for _, row := range rows {
		waiting[row["blocked_pid"]] = true
	}
	fields["locks.blocked_backends"] = snapshot.Gauge(float64(len(waiting)))
}

// applySettings stores pg_settings minus the excluded names.
func (c *PrimaryCollector) applySettings(rows []map[string]string, fields map[string]snapshot.Value) {
	kept := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		if c.excluded(row["name"]) {
			continue
		}
		kept = append(kept, row)
	}
	fields["settings"] = toRows(kept)
}

func (c *PrimaryCollector) excluded(name string) bool {
	match, err := c.excluder.MatchesOrParentMatches(name)
	return err == nil && match
}

func (c *PrimaryCollector) probe(ctx context.Context, q Querier) (*primaryCaps, error) {
	rows, err := q.QueryRows(ctx, queryCapabilities)
	if err != nil {
		return nil, err
	}
	caps := &primaryCaps{}
	if len(rows) > 0 {
		caps.hasStatements = parseBool(rows[0]["has_statements"])
		caps.isReplica = parseBool(rows[0]["is_replica"])
	}
	return caps, nil
}

func (c *PrimaryCollector) connection(ctx context.Context) (Querier, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	q, err := c.dial(ctx, c.opts.DSN, DialOptions{})
	if err != nil {
		return nil, err
	}
	c.conn = q
	return q, nil
}

// reset drops the connection and its cached capabilities.
func (c *PrimaryCollector) reset() {
	if c.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = c.conn.Close(ctx)
		cancel()
	}
	c.conn = nil
	c.caps = nil
}

// Close releases the connection.
func (c *PrimaryCollector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.gate.enter(ctx); err != nil {
		return err
	}
	defer c.gate.leave()
	c.reset()
	return nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "1", "yes", "on":
		return true
	}
	return false
}
