package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"db-monitor/pkg/model"
)

// DefaultSlowQueryLimit caps the slow query list when the caller gives no limit.
const DefaultSlowQueryLimit = 10

const (
	queryGlobalStatus = "SHOW GLOBAL STATUS"

	querySlowLog = "SELECT sql_text, query_time, lock_time, rows_sent, db, start_time " +
		"FROM mysql.slow_log ORDER BY start_time DESC LIMIT ?"

	queryLongRunning = "SELECT INFO, TIME, DB FROM information_schema.PROCESSLIST " +
		"WHERE TIME > 1 ORDER BY TIME DESC LIMIT ?"

	queryActive = "SELECT ID, USER, HOST, DB, COMMAND, TIME, STATE, INFO " +
		"FROM information_schema.PROCESSLIST WHERE COMMAND != 'Sleep' ORDER BY TIME DESC"

	queryTableSpace = "SELECT table_schema, SUM(data_length + index_length), SUM(data_length), SUM(index_length) " +
		"FROM information_schema.TABLES GROUP BY table_schema"
)

// Collector captures status snapshots and the auxiliary query lists.
type Collector struct {
	dialer       *Dialer
	metrics      *Metrics
	log          logrus.FieldLogger
	queryTimeout time.Duration
	now          func() time.Time
}

func NewCollector(d *Dialer, queryTimeout time.Duration, m *Metrics, log logrus.FieldLogger) *Collector {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Collector{dialer: d, metrics: m, log: log, queryTimeout: queryTimeout, now: time.Now}
}

// Collect captures one StatusSnapshot from inst. The service goes through
// Report; Collect is for callers that only need the raw counters.
func (c *Collector) Collect(ctx context.Context, inst model.Instance) (StatusSnapshot, error) {
	var snap StatusSnapshot
	err := c.dialer.Acquire(ctx, inst, func(ctx context.Context, db *sql.DB) error {
		var err error
		snap, err = c.snapshot(ctx, db)
		return err
	})
	return snap, err
}

// Report captures a snapshot, derives the metric report and attaches the
// auxiliary lists, all on a single checkout.
func (c *Collector) Report(ctx context.Context, inst model.Instance, slowLimit int) (model.MetricReport, error) {
	var report model.MetricReport
	err := c.dialer.Acquire(ctx, inst, func(ctx context.Context, db *sql.DB) error {
		snap, err := c.snapshot(ctx, db)
		if err != nil {
			return err
		}
		report = Derive(snap)
		entry := c.log.WithField("instance", inst.Name)
		report.SlowQueryList = c.slowQueries(ctx, db, slowLimit, entry)
		report.ActiveQueries = c.activeQueries(ctx, db, entry)
		report.TableSpace = c.tableSpace(ctx, db, entry)
		return nil
	})
	return report, err
}

func (c *Collector) snapshot(ctx context.Context, db *sql.DB) (_ StatusSnapshot, err error) {
	start := c.now()
	defer func() { c.metrics.observeCollect(start, err) }()

	qctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	rows, err := db.QueryContext(qctx, queryGlobalStatus)
	if err != nil {
		return StatusSnapshot{}, &CollectionError{Query: queryGlobalStatus, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return StatusSnapshot{}, &CollectionError{Query: queryGlobalStatus, Err: err}
	}
	if len(cols) != 2 {
		return StatusSnapshot{}, &CollectionError{
			Query: queryGlobalStatus,
			Err:   fmt.Errorf("expected 2 columns, got %d", len(cols)),
		}
	}

	raw := make(map[string]string, 512)
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return StatusSnapshot{}, &CollectionError{Query: queryGlobalStatus, Err: err}
		}
		if value.Valid {
			raw[name] = value.String
		}
	}
	if err := rows.Err(); err != nil {
		return StatusSnapshot{}, &CollectionError{Query: queryGlobalStatus, Err: err}
	}
	return ParseSnapshot(raw, c.now()), nil
}

// slowQueries reads the slow log and falls back to long-running processes
// when the log is empty or unreadable.
func (c *Collector) slowQueries(ctx context.Context, db *sql.DB, limit int, log logrus.FieldLogger) []model.SlowQuery {
	if limit <= 0 {
		limit = DefaultSlowQueryLimit
	}
	out, err := c.slowLog(ctx, db, limit)
	if err != nil {
		log.WithError(err).Debug("slow log unavailable")
	}
	if len(out) > 0 {
		return out
	}
	out, err = c.longRunning(ctx, db, limit)
	if err != nil {
		log.WithError(err).Warn("long running query lookup failed")
		return []model.SlowQuery{}
	}
	return out
}

func (c *Collector) slowLog(ctx context.Context, db *sql.DB, limit int) ([]model.SlowQuery, error) {
	qctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	rows, err := db.QueryContext(qctx, querySlowLog, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SlowQuery{}
	for rows.Next() {
		var (
			text, qt, lt, dbName sql.NullString
			sent                 sql.NullInt64
			started              sql.NullTime
		)
		if err := rows.Scan(&text, &qt, &lt, &sent, &dbName, &started); err != nil {
			return nil, err
		}
		out = append(out, model.SlowQuery{
			Query:         text.String,
			ExecutionTime: qt.String,
			LockTime:      lt.String,
			RowsSent:      sent.Int64,
			Database:      dbName.String,
			QueryTime:     started.Time,
		})
	}
	return out, rows.Err()
}

func (c *Collector) longRunning(ctx context.Context, db *sql.DB, limit int) ([]model.SlowQuery, error) {
	qctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	rows, err := db.QueryContext(qctx, queryLongRunning, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	now := c.now()
	out := []model.SlowQuery{}
	for rows.Next() {
		var (
			info, dbName sql.NullString
			secs         sql.NullInt64
		)
		if err := rows.Scan(&info, &secs, &dbName); err != nil {
			return nil, err
		}
		out = append(out, model.SlowQuery{
			Query:         info.String,
			ExecutionTime: strconv.FormatInt(secs.Int64, 10),
			LockTime:      "0",
			Database:      dbName.String,
			QueryTime:     now,
		})
	}
	return out, rows.Err()
}

func (c *Collector) activeQueries(ctx context.Context, db *sql.DB, log logrus.FieldLogger) []model.ActiveQuery {
	qctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	out := []model.ActiveQuery{}
	rows, err := db.QueryContext(qctx, queryActive)
	if err != nil {
		log.WithError(err).Warn("active query lookup failed")
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, secs                             sql.NullInt64
			user, host, dbName, cmd, state, info sql.NullString
		)
		if err := rows.Scan(&id, &user, &host, &dbName, &cmd, &secs, &state, &info); err != nil {
			log.WithError(err).Warn("active query scan failed")
			return []model.ActiveQuery{}
		}
		out = append(out, model.ActiveQuery{
			ID:      id.Int64,
			User:    user.String,
			Host:    host.String,
			DB:      dbName.String,
			Command: cmd.String,
			Time:    secs.Int64,
			State:   state.String,
			Info:    info.String,
		})
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).Warn("active query lookup failed")
		return []model.ActiveQuery{}
	}
	return out
}

func (c *Collector) tableSpace(ctx context.Context, db *sql.DB, log logrus.FieldLogger) []model.TableSpace {
	qctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	out := []model.TableSpace{}
	rows, err := db.QueryContext(qctx, queryTableSpace)
	if err != nil {
		log.WithError(err).Warn("table space lookup failed")
		return out
	}
	defer rows.Close()
	for rows.Next() {
		var (
			schema                 string
			total, data, indexSize sql.NullInt64
		)
		if err := rows.Scan(&schema, &total, &data, &indexSize); err != nil {
			log.WithError(err).Warn("table space scan failed")
			return []model.TableSpace{}
		}
		out = append(out, model.TableSpace{
			Name:        schema,
			Size:        total.Int64,
			DataSize:    data.Int64,
			IndexSize:   indexSize.Int64,
			PercentUsed: "N/A",
		})
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).Warn("table space lookup failed")
		return []model.TableSpace{}
	}
	return out
}
