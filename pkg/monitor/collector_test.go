package monitor

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(open OpenFunc) *Collector {
	d := NewDialer(time.Second, open, quietLogger())
	return NewCollector(d, time.Second, NewMetrics(nil), quietLogger())
}

func TestCollectSnapshot(t *testing.T) {
	open, _ := sequenceOpener(t, func(m sqlmock.Sqlmock) {
		expectStatus(m, "Uptime", "100", "Queries", "500", "Aborted_clients", "3")
		m.ExpectClose()
	})
	snap, err := newTestCollector(open).Collect(context.Background(), enabledInstance())
	require.NoError(t, err)
	require.NotNil(t, snap.Uptime)
	assert.Equal(t, int64(100), *snap.Uptime)
	require.NotNil(t, snap.Queries)
	assert.Equal(t, int64(500), *snap.Queries)
	assert.Nil(t, snap.ComCommit)
	assert.False(t, snap.CapturedAt.IsZero())
}

func TestCollectQueryRejected(t *testing.T) {
	open, _ := sequenceOpener(t, func(m sqlmock.Sqlmock) {
		m.ExpectQuery(regexp.QuoteMeta(queryGlobalStatus)).WillReturnError(errors.New("command denied"))
		m.ExpectClose()
	})
	_, err := newTestCollector(open).Collect(context.Background(), enabledInstance())
	assert.ErrorIs(t, err, ErrCollection)
	assert.Equal(t, 500, Code(err))
}

func TestCollectMalformedResult(t *testing.T) {
	open, _ := sequenceOpener(t, func(m sqlmock.Sqlmock) {
		m.ExpectQuery(regexp.QuoteMeta(queryGlobalStatus)).
			WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c"}).AddRow("Uptime", "1", "x"))
		m.ExpectClose()
	})
	_, err := newTestCollector(open).Collect(context.Background(), enabledInstance())
	var ce *CollectionError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "expected 2 columns")
}

func TestReportAttachesAuxLists(t *testing.T) {
	open, _ := sequenceOpener(t, expectFullReport)
	r, err := newTestCollector(open).Report(context.Background(), enabledInstance(), 0)
	require.NoError(t, err)

	assert.Equal(t, 5.0, r.QPS)
	assert.Equal(t, 0.15, r.TPS)
	assert.Equal(t, int64(42), r.Connections)
	assert.Equal(t, int64(8), r.ThreadsConnected)

	require.Len(t, r.SlowQueryList, 1)
	assert.Equal(t, "SELECT SLEEP(3)", r.SlowQueryList[0].Query)
	assert.Equal(t, "orders", r.SlowQueryList[0].Database)
	require.Len(t, r.ActiveQueries, 1)
	assert.Equal(t, int64(17), r.ActiveQueries[0].ID)
	require.Len(t, r.TableSpace, 1)
	assert.Equal(t, int64(3072), r.TableSpace[0].Size)
	assert.Equal(t, "N/A", r.TableSpace[0].PercentUsed)
}

func TestReportSlowQueryFallbackAndAuxFailures(t *testing.T) {
	open, _ := sequenceOpener(t, func(m sqlmock.Sqlmock) {
		expectStatus(m, "Uptime", "10")
		m.ExpectQuery(regexp.QuoteMeta(querySlowLog)).WithArgs(3).
			WillReturnError(errors.New("table mysql.slow_log doesn't exist"))
		m.ExpectQuery(regexp.QuoteMeta(queryLongRunning)).WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"INFO", "TIME", "DB"}).AddRow("SELECT * FROM big", int64(12), "orders"))
		m.ExpectQuery(regexp.QuoteMeta(queryActive)).WillReturnError(errors.New("denied"))
		m.ExpectQuery(regexp.QuoteMeta(queryTableSpace)).WillReturnError(errors.New("denied"))
		m.ExpectClose()
	})
	r, err := newTestCollector(open).Report(context.Background(), enabledInstance(), 3)
	require.NoError(t, err)

	require.Len(t, r.SlowQueryList, 1)
	assert.Equal(t, "12", r.SlowQueryList[0].ExecutionTime)
	assert.Equal(t, "0", r.SlowQueryList[0].LockTime)
	assert.NotNil(t, r.ActiveQueries)
	assert.Empty(t, r.ActiveQueries)
	assert.NotNil(t, r.TableSpace)
	assert.Empty(t, r.TableSpace)
}
