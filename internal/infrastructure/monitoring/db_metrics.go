package monitoring

import (
	"context"
	"database/sql"
	"time"
)

// DBMetricsCollector samples the pool of the checkout database: reconciliation
// and transition writes share it with nothing else.
type DBMetricsCollector struct {
	db *sql.DB
}

func NewDBMetricsCollector(db *sql.DB) *DBMetricsCollector {
	return &DBMetricsCollector{
		db: db,
	}
}

// StartCollecting samples once right away, then every interval until ctx is done.
func (c *DBMetricsCollector) StartCollecting(ctx context.Context, interval time.Duration) {
	c.collect()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.collect()
			}
		}
	}()
}

func (c *DBMetricsCollector) collect() {
	stats := c.db.Stats()

	DBConnectionsActive.Set(float64(stats.InUse))
	DBConnectionsIdle.Set(float64(stats.Idle))
	DBConnectionWaitsTotal.Set(float64(stats.WaitCount))
}

func observeStatement(queryType, table string, err error) {
	if err != nil {
		DBQueryErrorsTotal.WithLabelValues(queryType, table).Inc()
	}
}

func InstrumentQuery(ctx context.Context, db *sql.DB, queryType, table, query string, args ...interface{}) (*sql.Rows, error) {
	end := TimeDBQuery(queryType, table)
	defer end()

	rows, err := db.QueryContext(ctx, query, args...)
	observeStatement(queryType, table, err)
	return rows, err
}

func InstrumentExec(ctx context.Context, db *sql.DB, queryType, table, query string, args ...interface{}) (sql.Result, error) {
	end := TimeDBQuery(queryType, table)
	defer end()

	result, err := db.ExecContext(ctx, query, args...)
	observeStatement(queryType, table, err)
	return result, err
}

// InstrumentQueryRow times the round trip only; scan errors surface to the
// caller and are not counted here.
func InstrumentQueryRow(ctx context.Context, db *sql.DB, queryType, table, query string, args ...interface{}) *sql.Row {
	end := TimeDBQuery(queryType, table)
	defer end()

	return db.QueryRowContext(ctx, query, args...)
}
