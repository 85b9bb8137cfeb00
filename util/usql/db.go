// Package usql wraps database/sql so every statement is timed under the
// gocore "SQL" stat and a prometheus histogram labelled by verb.
package usql

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stat = gocore.NewStat("SQL")

	prometheusSQLDuration *prometheus.HistogramVec
	metricsOnce           sync.Once
)

func initPrometheusMetrics() {
	metricsOnce.Do(func() {
		prometheusSQLDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fingerprint",
				Subsystem: "sql",
				Name:      "statement_duration_seconds",
				Help:      "Duration of SQL statements by engine and verb",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"engine", "verb"},
		)
	})
}

type DB struct {
	*sql.DB
	engine string
}

// Open opens a database handle for the given registered driver.
func Open(driverName, dataSourceName string) (*DB, error) {
	initPrometheusMetrics()

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}

	return &DB{DB: db, engine: driverName}, nil
}

// Engine is the driver name the handle was opened with.
func (db *DB) Engine() string {
	return db.engine
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	defer db.observe(query, time.Now())

	return db.DB.QueryContext(ctx, query, args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	defer db.observe(query, time.Now())

	return db.DB.QueryRowContext(ctx, query, args...)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	defer db.observe(query, time.Now())

	return db.DB.ExecContext(ctx, query, args...)
}

func (db *DB) observe(query string, start time.Time) {
	stat.NewStat(query).AddTime(start)
	prometheusSQLDuration.WithLabelValues(db.engine, verb(query)).Observe(time.Since(start).Seconds())
}

// verb is the first keyword of query, upper cased.
func verb(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "UNKNOWN"
	}

	return strings.ToUpper(fields[0])
}
