package store

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"db-monitor/pkg/model"
)

func newGormMock(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		sqlDB.Close()
	})
	gdb, err := gorm.Open(gormmysql.New(gormmysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return NewGormStore(gdb), mock
}

var gormColumns = []string{"id", "name", "host", "port", "username", "password", "database", "environment", "status"}

func TestGormGetInstance(t *testing.T) {
	s, mock := newGormMock(t)

	mock.ExpectQuery("SELECT \\* FROM `instances`").
		WillReturnRows(sqlmock.NewRows(gormColumns).
			AddRow(3, "orders", "10.0.0.5", 3306, "monitor", "pw", "", "production", model.StatusEnabled))
	inst, found, err := s.GetInstance(3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "orders", inst.Name)
	assert.True(t, inst.Enabled())

	mock.ExpectQuery("SELECT \\* FROM `instances`").WillReturnRows(sqlmock.NewRows(gormColumns))
	_, found, err = s.GetInstance(4)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGormListActive(t *testing.T) {
	s, mock := newGormMock(t)

	mock.ExpectQuery("SELECT \\* FROM `instances` WHERE status = \\?").
		WithArgs(model.StatusEnabled).
		WillReturnRows(sqlmock.NewRows(gormColumns).
			AddRow(1, "a", "h", 3306, "u", "p", "", "", model.StatusEnabled))
	list, err := s.ListActiveInstances()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGormDelete(t *testing.T) {
	s, mock := newGormMock(t)

	mock.ExpectExec("DELETE FROM `instances`").WillReturnResult(sqlmock.NewResult(0, 1))
	deleted, err := s.DeleteInstance(1)
	require.NoError(t, err)
	assert.True(t, deleted)

	mock.ExpectExec("DELETE FROM `instances`").WillReturnResult(sqlmock.NewResult(0, 0))
	deleted, err = s.DeleteInstance(2)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestGormUpdateMissing(t *testing.T) {
	s, mock := newGormMock(t)

	mock.ExpectQuery("SELECT \\* FROM `instances`").WillReturnRows(sqlmock.NewRows(gormColumns))
	_, err := s.UpdateInstance(model.Instance{ID: 9, Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}
