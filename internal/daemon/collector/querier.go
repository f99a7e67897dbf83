package collector

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/version"
)

// Querier runs text queries and returns every row as column name to text value.
// NULL becomes the empty string.
type Querier interface {
	QueryRows(ctx context.Context, sql string) ([]map[string]string, error)
	Close(ctx context.Context) error
}

// Dialer opens a Querier for a DSN.
type Dialer func(ctx context.Context, dsn string, opts DialOptions) (Querier, error)

// DialOptions tunes the connection for the backend kind.
type DialOptions struct {
	// AdminConsole is set for PgBouncer's admin database, which only speaks
	// the simple query protocol and rejects most startup parameters.
	AdminConsole bool
}

// pgxQuerier adapts a single pgx connection. Queries run over the simple
// protocol so every value arrives in text format.
type pgxQuerier struct {
	conn *pgx.Conn
}

// DialPostgres connects with pgx.
func DialPostgres(ctx context.Context, dsn string, opts DialOptions) (Querier, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFetchTerminal, "invalid connection string")
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	if !opts.AdminConsole {
		if _, ok := cfg.RuntimeParams["application_name"]; !ok {
			cfg.RuntimeParams["application_name"] = version.ApplicationName()
		}
	} else {
		delete(cfg.RuntimeParams, "application_name")
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &pgxQuerier{conn: conn}, nil
}

func (q *pgxQuerier) QueryRows(ctx context.Context, sql string) ([]map[string]string, error) {
	rows, err := q.conn.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]string
	for rows.Next() {
		raw := rows.RawValues()
		row := make(map[string]string, len(fields))
		for i, fd := range fields {
			if i < len(raw) && raw[i] != nil {
				row[fd.Name] = string(raw[i])
			} else {
				row[fd.Name] = ""
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *pgxQuerier) Close(ctx context.Context) error {
	return q.conn.Close(ctx)
}

// classifyError converts a driver error into a fetch error. Authentication
// failures and missing databases cannot recover within a session.
func classifyError(source string, err error) error {
	if errors.Is(err, errors.ErrCodeFetchTerminal) || errors.Is(err, errors.ErrCodeFetchTransient) {
		return err
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "28") || pgErr.Code == "3D000" {
			return errors.FetchTerminal(source, err).WithDetail("sqlstate", pgErr.Code)
		}
		return errors.FetchTransient(source, err).WithDetail("sqlstate", pgErr.Code)
	}
	return errors.FetchTransient(source, err)
}
