package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ngrok/sqlmw"
	"github.com/prometheus/client_golang/prometheus"
)

// instrumentedDriverName is the pgx driver wrapped with the query metrics.
const instrumentedDriverName = "pgx-instrumented"

var (
	verbRegex = regexp.MustCompile(`^\s*(\w+)`)

	dbOpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "data_broker",
		Name:      "db_op_duration_milliseconds",
		Help:      "Time spent on a database operation",
		Buckets:   []float64{5, 25, 100, 500, 1000, 5000},
	}, []string{"op", "verb"})

	dbOpTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "data_broker",
		Name:      "db_op_total",
		Help:      "Number of database operations",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(dbOpLatency, dbOpTotal)
	sql.Register(instrumentedDriverName, sqlmw.Driver(stdlib.GetDefaultDriver(), &metricInterceptor{}))
}

// metricInterceptor times the statements and transactions sent to PostgreSQL.
type metricInterceptor struct {
	sqlmw.NullInterceptor
}

func (mi *metricInterceptor) ConnBeginTx(ctx context.Context, conn driver.ConnBeginTx, opts driver.TxOptions) (context.Context, driver.Tx, error) {
	defer observe("begin", "begin", time.Now())
	tx, err := conn.BeginTx(ctx, opts)
	return ctx, tx, err
}

func (mi *metricInterceptor) ConnExecContext(ctx context.Context, conn driver.ExecerContext, query string, args []driver.NamedValue) (driver.Result, error) {
	defer observe("exec", sqlVerb(query), time.Now())
	return conn.ExecContext(ctx, query, args)
}

func (mi *metricInterceptor) ConnQueryContext(ctx context.Context, conn driver.QueryerContext, query string, args []driver.NamedValue) (context.Context, driver.Rows, error) {
	defer observe("query", sqlVerb(query), time.Now())
	rows, err := conn.QueryContext(ctx, query, args)
	return ctx, rows, err
}

func (mi *metricInterceptor) StmtExecContext(ctx context.Context, stmt driver.StmtExecContext, query string, args []driver.NamedValue) (driver.Result, error) {
	defer observe("stmt_exec", sqlVerb(query), time.Now())
	return stmt.ExecContext(ctx, args)
}

func (mi *metricInterceptor) StmtQueryContext(ctx context.Context, stmt driver.StmtQueryContext, query string, args []driver.NamedValue) (context.Context, driver.Rows, error) {
	defer observe("stmt_query", sqlVerb(query), time.Now())
	rows, err := stmt.QueryContext(ctx, args)
	return ctx, rows, err
}

func (mi *metricInterceptor) TxCommit(ctx context.Context, tx driver.Tx) error {
	defer observe("commit", "commit", time.Now())
	return tx.Commit()
}

func (mi *metricInterceptor) TxRollback(ctx context.Context, tx driver.Tx) error {
	defer observe("rollback", "rollback", time.Now())
	return tx.Rollback()
}

func sqlVerb(query string) string {
	m := verbRegex.FindStringSubmatch(query)
	if m == nil {
		return "unknown"
	}
	return strings.ToLower(m[1])
}

func observe(op, verb string, start time.Time) {
	dbOpTotal.WithLabelValues(op).Inc()
	dbOpLatency.WithLabelValues(op, verb).Observe(float64(time.Since(start).Milliseconds()))
}
