package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"db-monitor/pkg/model"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS instances(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	host TEXT NOT NULL,
	port INTEGER NOT NULL,
	username TEXT NOT NULL,
	password TEXT NOT NULL,
	database_name TEXT NOT NULL DEFAULT '',
	environment TEXT NOT NULL DEFAULT '',
	status INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

const instanceColumns = `id, name, host, port, username, password, database_name, environment, status, created_at, updated_at`

// SQLiteStore keeps the registry in a local file; useful without a MySQL registry.
type SQLiteStore struct {
	db      *sql.DB
	timeout time.Duration
}

// OpenSQLite opens (and creates if needed) the registry file at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "sqlite mkdir")
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "sqlite open")
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite ping")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite init schema")
	}
	return &SQLiteStore{db: db, timeout: 2 * time.Second}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(r rowScanner) (model.Instance, error) {
	var (
		inst             model.Instance
		created, updated int64
	)
	err := r.Scan(&inst.ID, &inst.Name, &inst.Host, &inst.Port, &inst.Username, &inst.Password,
		&inst.Database, &inst.Environment, &inst.Status, &created, &updated)
	if err != nil {
		return inst, err
	}
	inst.CreatedAt = time.UnixMilli(created)
	inst.UpdatedAt = time.UnixMilli(updated)
	return inst, nil
}

func (s *SQLiteStore) GetInstance(id uint) (model.Instance, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	row := s.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM instances WHERE id = ?`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Instance{}, false, nil
	}
	if err != nil {
		return model.Instance{}, false, errors.Wrapf(err, "get instance %d", id)
	}
	return inst, true, nil
}

func (s *SQLiteStore) list(where string, args ...any) ([]model.Instance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT `+instanceColumns+` FROM instances `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list instances")
	}
	defer rows.Close()
	out := []model.Instance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan instance")
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListInstances() ([]model.Instance, error) {
	return s.list("")
}

func (s *SQLiteStore) ListActiveInstances() ([]model.Instance, error) {
	return s.list("WHERE status = ?", model.StatusEnabled)
}

func (s *SQLiteStore) CreateInstance(inst model.Instance) (model.Instance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	now := time.Now()
	inst.Status = model.StatusEnabled
	inst.CreatedAt, inst.UpdatedAt = now, now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO instances(name, host, port, username, password, database_name, environment, status, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		inst.Name, inst.Host, inst.Port, inst.Username, inst.Password, inst.Database, inst.Environment,
		inst.Status, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return inst, errors.Wrap(err, "create instance")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return inst, errors.Wrap(err, "create instance")
	}
	inst.ID = uint(id)
	return inst, nil
}

func (s *SQLiteStore) UpdateInstance(inst model.Instance) (model.Instance, error) {
	existing, ok, err := s.GetInstance(inst.ID)
	if err != nil {
		return inst, err
	}
	if !ok {
		return inst, ErrNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	inst.CreatedAt = existing.CreatedAt
	inst.UpdatedAt = time.Now()
	_, err = s.db.ExecContext(ctx,
		`UPDATE instances SET name=?, host=?, port=?, username=?, password=?, database_name=?, environment=?, status=?, updated_at=?
		 WHERE id=?`,
		inst.Name, inst.Host, inst.Port, inst.Username, inst.Password, inst.Database, inst.Environment,
		inst.Status, inst.UpdatedAt.UnixMilli(), inst.ID)
	if err != nil {
		return inst, errors.Wrapf(err, "update instance %d", inst.ID)
	}
	return inst, nil
}

func (s *SQLiteStore) DeleteInstance(id uint) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id=?`, id)
	if err != nil {
		return false, errors.Wrapf(err, "delete instance %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "delete instance %d", id)
	}
	return n > 0, nil
}
