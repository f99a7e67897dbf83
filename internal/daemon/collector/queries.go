package collector

// PostgreSQL statements issued by the primary collector. Every query is a
// single statement with no parameters so it can run over the simple protocol.
const (
	queryCapabilities = `
		SELECT
			EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'pg_stat_statements') AS has_statements,
			pg_is_in_recovery() AS is_replica`

	queryServerInfo = `
		SELECT
			current_setting('server_version') AS version,
			current_setting('server_version_num')::int AS version_num,
			EXTRACT(EPOCH FROM (now() - pg_postmaster_start_time()))::bigint AS uptime_seconds,
			current_database() AS database,
			COALESCE(inet_server_addr()::text, 'local') AS addr,
			COALESCE(inet_server_port(), 5432) AS port`

	queryConnectionStats = `
		SELECT
			count(*) AS total,
			count(*) FILTER (WHERE state = 'active') AS active,
			count(*) FILTER (WHERE state = 'idle') AS idle,
			count(*) FILTER (WHERE state = 'idle in transaction') AS idle_in_transaction,
			count(*) FILTER (WHERE wait_event_type IS NOT NULL AND state = 'active') AS waiting,
			(SELECT setting::int FROM pg_settings WHERE name = 'max_connections') AS max_connections
		FROM pg_stat_activity
		WHERE backend_type = 'client backend'`

	queryDatabaseStats = `
		SELECT
			numbackends,
			xact_commit,
			xact_rollback,
			blks_read,
			blks_hit,
			CASE WHEN blks_read + blks_hit > 0
				THEN round(100.0 * blks_hit / (blks_read + blks_hit), 2)
				ELSE 0 END AS cache_hit_ratio,
			tup_returned,
			tup_fetched,
			tup_inserted,
			tup_updated,
			tup_deleted,
			conflicts,
			deadlocks,
			temp_files,
			temp_bytes
		FROM pg_stat_database
		WHERE datname = current_database()`

	queryBgwriter = `
		SELECT
			buffers_clean,
			maxwritten_clean,
			buffers_alloc
		FROM pg_stat_bgwriter`

	queryActivity = `
		SELECT
			pid,
			usename AS user,
			datname AS database,
			COALESCE(client_addr::text, 'local') AS host,
			application_name AS application,
			state,
			EXTRACT(EPOCH FROM (now() - query_start))::int AS time,
			wait_event_type,
			wait_event,
			LEFT(query, 500) AS query
		FROM pg_stat_activity
		WHERE pid != pg_backend_pid()
			AND state IS NOT NULL
			AND backend_type = 'client backend'
		ORDER BY query_start ASC NULLS LAST`

	queryReplicationPrimary = `
		SELECT
			pid,
			usename,
			application_name,
			COALESCE(client_addr::text, 'local') AS client_addr,
			state,
			sent_lsn,
			replay_lsn,
			pg_wal_lsn_diff(sent_lsn, replay_lsn) AS lag_bytes,
			sync_state
		FROM pg_stat_replication
		ORDER BY application_name`

	queryReplicationReplica = `
		SELECT
			pid,
			status,
			received_lsn,
			latest_end_lsn,
			pg_wal_lsn_diff(latest_end_lsn, received_lsn) AS lag_bytes,
			slot_name,
			sender_host,
			sender_port
		FROM pg_stat_wal_receiver`

	queryStatementTypes = `
		SELECT
			COALESCE(SUM(calls) FILTER (WHERE query ~* '^\s*(select|with.*select)'), 0) AS select_calls,
			COALESCE(SUM(calls) FILTER (WHERE query ~* '^\s*insert'), 0) AS insert_calls,
			COALESCE(SUM(calls) FILTER (WHERE query ~* '^\s*update'), 0) AS update_calls,
			COALESCE(SUM(calls) FILTER (WHERE query ~* '^\s*delete'), 0) AS delete_calls
		FROM pg_stat_statements`

	queryStatementTop = `
		SELECT
			queryid,
			LEFT(query, 200) AS query,
			calls,
			round(total_exec_time::numeric, 2) AS total_ms,
			round(mean_exec_time::numeric, 2) AS mean_ms,
			round(max_exec_time::numeric, 2) AS max_ms,
			rows,
			CASE WHEN shared_blks_hit + shared_blks_read > 0
				THEN round(100.0 * shared_blks_hit / (shared_blks_hit + shared_blks_read), 2)
				ELSE 0 END AS cache_hit_ratio
		FROM pg_stat_statements
		ORDER BY total_exec_time DESC
		LIMIT %d`

	queryLocks = `
		SELECT
			l.pid,
			l.locktype,
			d.datname AS database,
			COALESCE(c.relname, l.relation::text) AS relation,
			l.mode,
			l.granted,
			a.wait_event,
			a.state,
			LEFT(a.query, 200) AS query
		FROM pg_locks l
		LEFT JOIN pg_stat_activity a ON l.pid = a.pid
		LEFT JOIN pg_database d ON l.database = d.oid
		LEFT JOIN pg_class c ON l.relation = c.oid
		WHERE l.pid != pg_backend_pid()
		ORDER BY l.granted, l.pid
		LIMIT 100`

	queryBlocked = `
		SELECT
			blocked.pid AS blocked_pid,
			blocked_act.usename AS blocked_user,
			blocked_act.datname AS database,
			blocked.locktype AS lock_type,
			blocked.mode AS blocked_mode,
			blocking.pid AS blocking_pid,
			blocking_act.usename AS blocking_user,
			blocking.mode AS blocking_mode,
			LEFT(blocked_act.query, 200) AS blocked_query,
			LEFT(blocking_act.query, 200) AS blocking_query,
			EXTRACT(EPOCH FROM (now() - blocked_act.query_start))::int AS blocked_seconds
		FROM pg_locks blocked
		JOIN pg_stat_activity blocked_act ON blocked_act.pid = blocked.pid
		JOIN pg_locks blocking ON blocking.locktype = blocked.locktype
			AND blocking.database IS NOT DISTINCT FROM blocked.database
			AND blocking.relation IS NOT DISTINCT FROM blocked.relation
			AND blocking.page IS NOT DISTINCT FROM blocked.page
			AND blocking.tuple IS NOT DISTINCT FROM blocked.tuple
			AND blocking.virtualxid IS NOT DISTINCT FROM blocked.virtualxid
			AND blocking.transactionid IS NOT DISTINCT FROM blocked.transactionid
			AND blocking.classid IS NOT DISTINCT FROM blocked.classid
			AND blocking.objid IS NOT DISTINCT FROM blocked.objid
			AND blocking.objsubid IS NOT DISTINCT FROM blocked.objsubid
			AND blocking.pid != blocked.pid
		JOIN pg_stat_activity blocking_act ON blocking_act.pid = blocking.pid
		WHERE NOT blocked.granted
		ORDER BY blocked_act.query_start`

	queryReplicationSlots = `
		SELECT
			slot_name,
			plugin,
			slot_type,
			database,
			active,
			active_pid,
			restart_lsn,
			confirmed_flush_lsn,
			pg_wal_lsn_diff(pg_current_wal_lsn(), restart_lsn) AS lag_bytes
		FROM pg_replication_slots
		ORDER BY slot_name`

	querySubscriptions = `
		SELECT
			subname,
			pid,
			received_lsn,
			latest_end_lsn,
			pg_wal_lsn_diff(latest_end_lsn, received_lsn) AS lag_bytes,
			last_msg_send_time,
			last_msg_receipt_time
		FROM pg_stat_subscription
		ORDER BY subname`

	querySettings = `
		SELECT name, setting
		FROM pg_settings
		ORDER BY name`
)

// PgBouncer admin console commands issued by the pooler collector.
const (
	queryPoolerVersion = `SHOW VERSION`
	queryPoolerPools   = `SHOW POOLS`
	queryPoolerStats   = `SHOW STATS`
	queryPoolerClients = `SHOW CLIENTS`
	queryPoolerServers = `SHOW SERVERS`
)
