package monitor

import (
	"database/sql"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"db-monitor/pkg/model"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func enabledInstance() model.Instance {
	return model.Instance{
		ID: 1, Name: "orders-primary", Host: "10.0.0.5", Port: 3306,
		Username: "monitor", Password: "secret", Status: model.StatusEnabled,
	}
}

// sequenceOpener hands out a fresh sqlmock per open, configured by the
// setup at the same position.
func sequenceOpener(t *testing.T, setups ...func(sqlmock.Sqlmock)) (OpenFunc, func() int) {
	t.Helper()
	var mocks []sqlmock.Sqlmock
	t.Cleanup(func() {
		for _, m := range mocks {
			require.NoError(t, m.ExpectationsWereMet())
		}
	})
	open := func(driverName, dsn string) (*sql.DB, error) {
		require.Equal(t, "mysql", driverName)
		require.Less(t, len(mocks), len(setups), "unexpected connection attempt")
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		setups[len(mocks)](mock)
		mocks = append(mocks, mock)
		return db, nil
	}
	return open, func() int { return len(mocks) }
}

func expectPing(m sqlmock.Sqlmock) {
	m.ExpectPing()
	m.ExpectClose()
}

func expectStatus(m sqlmock.Sqlmock, kv ...string) {
	rows := sqlmock.NewRows([]string{"Variable_name", "Value"})
	for i := 0; i+1 < len(kv); i += 2 {
		rows.AddRow(kv[i], kv[i+1])
	}
	m.ExpectQuery(regexp.QuoteMeta(queryGlobalStatus)).WillReturnRows(rows)
}

func expectFullReport(m sqlmock.Sqlmock) {
	expectStatus(m,
		"Uptime", "100", "Queries", "500", "Com_commit", "10", "Com_rollback", "5",
		"Connections", "42", "Threads_running", "3", "Threads_connected", "8", "Slow_queries", "2")
	m.ExpectQuery(regexp.QuoteMeta(querySlowLog)).
		WithArgs(DefaultSlowQueryLimit).
		WillReturnRows(sqlmock.NewRows([]string{"sql_text", "query_time", "lock_time", "rows_sent", "db", "start_time"}).
			AddRow("SELECT SLEEP(3)", "00:00:03", "00:00:00", int64(1), "orders", time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)))
	m.ExpectQuery(regexp.QuoteMeta(queryActive)).
		WillReturnRows(sqlmock.NewRows([]string{"ID", "USER", "HOST", "DB", "COMMAND", "TIME", "STATE", "INFO"}).
			AddRow(int64(17), "app", "10.0.0.9:51000", "orders", "Query", int64(4), "executing", "SELECT 1"))
	m.ExpectQuery(regexp.QuoteMeta(queryTableSpace)).
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "size", "data_size", "index_size"}).
			AddRow("orders", int64(3072), int64(2048), int64(1024)))
	m.ExpectClose()
}
