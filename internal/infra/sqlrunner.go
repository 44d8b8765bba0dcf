package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SQLExecutor defines the contract repositories use for executing SQL.
// *pgxpool.Pool, pgx.Tx and *SQLRunner all satisfy it.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

const defaultSlowQuery = 500 * time.Millisecond

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner strips the marker line from each query and logs the marker so a
// slow or failing statement can be traced back to its sqlinline constant.
// Each statement runs inside a span named after its marker.
type SQLRunner struct {
	DB     SQLExecutor
	Logger zerolog.Logger
	// SlowQuery is the duration above which a statement is logged at warn.
	SlowQuery time.Duration

	tracer trace.Tracer
}

func NewSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{
		DB:        db,
		Logger:    logger,
		SlowQuery: defaultSlowQuery,
		tracer:    otel.Tracer("genlux/sql"),
	}
}

func (r *SQLRunner) start(ctx context.Context, op, query string) (context.Context, *statement, error) {
	marker, trimmed, err := extractMarker(query)
	if err != nil {
		return ctx, nil, err
	}
	tracer := r.tracer
	if tracer == nil {
		tracer = otel.Tracer("genlux/sql")
	}
	ctx, span := tracer.Start(ctx, "sql "+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("sql.marker", marker),
		),
	)
	return ctx, &statement{runner: r, op: op, marker: marker, body: trimmed, span: span, began: time.Now()}, nil
}

// statement tracks one query from submission to its final scan or close.
type statement struct {
	runner *SQLRunner
	op     string
	marker string
	body   string
	span   trace.Span
	began  time.Time
}

func (s *statement) finish(err error, rows int64) {
	elapsed := time.Since(s.began)
	log := s.runner.Logger
	switch {
	case err != nil && !IsNoRows(err):
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("sql", s.marker).Str("op", s.op).Dur("elapsed", elapsed).Msg("sql error")
	case s.runner.SlowQuery > 0 && elapsed > s.runner.SlowQuery:
		log.Warn().Str("sql", s.marker).Str("op", s.op).Dur("elapsed", elapsed).Msg("slow sql")
	default:
		evt := log.Debug().Str("sql", s.marker).Str("op", s.op).Dur("elapsed", elapsed)
		if rows >= 0 {
			evt = evt.Int64("rows", rows)
		}
		evt.Msg("sql ok")
	}
	if rows >= 0 {
		s.span.SetAttributes(attribute.Int64("db.rows_affected", rows))
	}
	s.span.End()
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	ctx, st, err := r.start(ctx, "exec", query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	tag, err := r.DB.Exec(ctx, st.body, args...)
	st.finish(err, tag.RowsAffected())
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	ctx, st, err := r.start(ctx, "query_row", query)
	if err != nil {
		return errorRow{err: err}
	}
	return &tracedRow{row: r.DB.QueryRow(ctx, st.body, args...), st: st}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	ctx, st, err := r.start(ctx, "query", query)
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.Query(ctx, st.body, args...)
	if err != nil {
		st.finish(err, -1)
		return nil, err
	}
	return &tracedRows{Rows: rows, st: st}, nil
}

type tracedRow struct {
	row pgx.Row
	st  *statement
}

func (t *tracedRow) Scan(dest ...any) error {
	err := t.row.Scan(dest...)
	t.st.finish(err, -1)
	return err
}

type tracedRows struct {
	pgx.Rows
	st     *statement
	closed bool
}

func (t *tracedRows) Close() {
	t.Rows.Close()
	if t.closed {
		return
	}
	t.closed = true
	t.st.finish(t.Rows.Err(), t.Rows.CommandTag().RowsAffected())
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	lines := strings.Split(trimmed, "\n")
	if len(lines) == 0 {
		return "", "", errors.New("empty query")
	}
	markerLine := strings.TrimSpace(lines[0])
	if !markerRegexp.MatchString(markerLine) {
		return "", "", errors.New("sql marker missing or invalid")
	}
	return strings.TrimSpace(strings.TrimPrefix(markerLine, "--sql ")), strings.Join(lines[1:], "\n"), nil
}

var _ SQLExecutor = (*SQLRunner)(nil)

// IsNoRows reports whether err is pgx's empty-result error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
