package monitor

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"db-monitor/pkg/model"
)

// MaxProbeTimeout bounds how long a single connect attempt may block.
const MaxProbeTimeout = 5 * time.Second

// OpenFunc opens a database handle; sql.Open in production.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Dialer hands out short-lived pools scoped to a single operation.
// Nothing is kept between calls.
type Dialer struct {
	open    OpenFunc
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewDialer(timeout time.Duration, open OpenFunc, log logrus.FieldLogger) *Dialer {
	if timeout <= 0 || timeout > MaxProbeTimeout {
		timeout = MaxProbeTimeout
	}
	if open == nil {
		open = sql.Open
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dialer{open: open, timeout: timeout, log: log}
}

// Timeout is the connect timeout enforced on every checkout.
func (d *Dialer) Timeout() time.Duration {
	return d.timeout
}

// DSN renders the driver DSN for inst.
func (d *Dialer) DSN(inst model.Instance) string {
	cfg := mysql.NewConfig()
	cfg.User = inst.Username
	cfg.Passwd = inst.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(inst.Host, strconv.Itoa(inst.Port))
	cfg.DBName = inst.Database
	cfg.Timeout = d.timeout
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Acquire opens a pool for inst, runs fn and closes the pool on every exit path.
func (d *Dialer) Acquire(ctx context.Context, inst model.Instance, fn func(context.Context, *sql.DB) error) error {
	db, err := d.open("mysql", d.DSN(inst))
	if err != nil {
		return &ConnectionError{Reason: reason(err), Err: err}
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			d.log.WithError(cerr).WithField("instance", inst.Name).Debug("close pool")
		}
	}()
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Minute)
	return fn(ctx, db)
}
