package monitor

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"

	"db-monitor/pkg/model"
)

// Prober validates that an instance accepts a network and auth handshake.
type Prober struct {
	dialer  *Dialer
	metrics *Metrics
	log     logrus.FieldLogger
}

func NewProber(d *Dialer, m *Metrics, log logrus.FieldLogger) *Prober {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Prober{dialer: d, metrics: m, log: log}
}

// Probe returns nil when inst is reachable with its credentials.
// Disabled instances fail with ErrNotFound before any network activity.
func (p *Prober) Probe(ctx context.Context, inst model.Instance) error {
	if !inst.Enabled() {
		return ErrNotFound
	}
	entry := p.log.WithFields(logrus.Fields{"instance": inst.Name, "host": inst.Host, "port": inst.Port})
	entry.Debug("probing")
	err := p.dialer.Acquire(ctx, inst, func(ctx context.Context, db *sql.DB) error {
		pctx, cancel := context.WithTimeout(ctx, p.dialer.Timeout())
		defer cancel()
		if err := db.PingContext(pctx); err != nil {
			return &ConnectionError{Reason: reason(err), Err: err}
		}
		return nil
	})
	p.metrics.observeProbe(err)
	if err != nil {
		entry.WithError(err).Warn("probe failed")
		return err
	}
	entry.Debug("probe ok")
	return nil
}
