package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"db-monitor/pkg/model"
)

// Registry is the read side of the instance store used by the service.
type Registry interface {
	GetInstance(id uint) (model.Instance, bool, error)
	ListInstances() ([]model.Instance, error)
}

// Notifier delivers short operator messages, e.g. to a chat robot.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// StopResult is returned by Stop.
type StopResult struct {
	Stopped bool `json:"stopped"`
}

// Service orchestrates probing, collection and history synthesis.
//
// Live reads follow a degrade-to-empty policy: when an instance cannot be
// probed or collected, Realtime serves an empty report instead of an error
// so dashboards keep rendering. Start and TestConnection surface the error.
type Service struct {
	registry  Registry
	prober    *Prober
	collector *Collector
	synth     *Synthesizer
	notifier  Notifier
	log       logrus.FieldLogger
	slowLimit int
	now       func() time.Time
}

// Options configures a Service.
type Options struct {
	Registry       Registry
	Prober         *Prober
	Collector      *Collector
	Synthesizer    *Synthesizer
	Notifier       Notifier // optional
	Logger         logrus.FieldLogger
	SlowQueryLimit int
}

func NewService(o Options) *Service {
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.SlowQueryLimit <= 0 {
		o.SlowQueryLimit = DefaultSlowQueryLimit
	}
	if o.Synthesizer == nil {
		o.Synthesizer = NewSynthesizer(nil, nil)
	}
	return &Service{
		registry:  o.Registry,
		prober:    o.Prober,
		collector: o.Collector,
		synth:     o.Synthesizer,
		notifier:  o.Notifier,
		log:       o.Logger,
		slowLimit: o.SlowQueryLimit,
		now:       time.Now,
	}
}

// Instances lists every registered instance.
func (s *Service) Instances() ([]model.Instance, error) {
	list, err := s.registry.ListInstances()
	if err != nil {
		s.log.WithError(err).Error("list instances")
		return nil, errors.Wrap(ErrInternal, err.Error())
	}
	return list, nil
}

func (s *Service) lookup(id uint) (model.Instance, error) {
	inst, ok, err := s.registry.GetInstance(id)
	if err != nil {
		s.log.WithError(err).WithField("id", id).Error("load instance")
		return model.Instance{}, errors.Wrap(ErrInternal, err.Error())
	}
	if !ok {
		return model.Instance{}, ErrNotFound
	}
	return inst, nil
}

// Start validates and probes the instance and returns its first report.
// The bool reports whether collection failed and the report is empty.
func (s *Service) Start(ctx context.Context, id uint) (model.MetricReport, bool, error) {
	inst, err := s.lookup(id)
	if err != nil {
		return model.MetricReport{}, false, err
	}
	if !inst.Enabled() {
		return model.MetricReport{}, false, ErrNotFound
	}
	entry := s.log.WithFields(logrus.Fields{"id": id, "instance": inst.Name})
	entry.Info("starting monitoring")

	if err := s.prober.Probe(ctx, inst); err != nil {
		s.notify(fmt.Sprintf("[db-monitor] cannot start monitoring %s (%s:%d): %v", inst.Name, inst.Host, inst.Port, err))
		return model.MetricReport{}, false, err
	}

	report, degraded := s.collect(ctx, inst, entry)
	report.InstanceName = inst.Name
	entry.WithField("degraded", degraded).Info("monitoring started")
	s.notify(fmt.Sprintf("[db-monitor] monitoring started for %s", inst.Name))
	return report, degraded, nil
}

// Stop is idempotent; no background collection exists to tear down.
func (s *Service) Stop(_ context.Context, id uint) StopResult {
	s.log.WithField("id", id).Info("stopping monitoring")
	if inst, ok, err := s.registry.GetInstance(id); err == nil && ok {
		s.notify(fmt.Sprintf("[db-monitor] monitoring stopped for %s", inst.Name))
	}
	return StopResult{Stopped: true}
}

// Realtime probes and collects on every call. The bool reports whether the
// result was degraded to an empty report.
func (s *Service) Realtime(ctx context.Context, id uint) (model.MetricReport, bool, error) {
	inst, err := s.lookup(id)
	if err != nil {
		return model.MetricReport{}, false, err
	}
	entry := s.log.WithFields(logrus.Fields{"id": id, "instance": inst.Name})
	if err := s.prober.Probe(ctx, inst); err != nil {
		entry.WithError(err).Warn("realtime probe failed; serving empty report")
		return model.EmptyReport(s.now()), true, nil
	}
	report, degraded := s.collect(ctx, inst, entry)
	return report, degraded, nil
}

// History synthesizes the series for timeRange. Live history is not stored.
func (s *Service) History(_ context.Context, id uint, timeRange string) (History, error) {
	if _, err := s.lookup(id); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"id": id, "timeRange": timeRange}).Debug("synthesizing history")
	return s.synth.Synthesize(timeRange), nil
}

// TestConnection probes an instance that may not be registered yet.
func (s *Service) TestConnection(ctx context.Context, inst model.Instance) error {
	if err := inst.ValidateConnection(); err != nil {
		return Validation(err.Error())
	}
	inst.Status = model.StatusEnabled
	return s.prober.Probe(ctx, inst)
}

// collect applies degrade-to-empty to a collection failure.
func (s *Service) collect(ctx context.Context, inst model.Instance, entry logrus.FieldLogger) (model.MetricReport, bool) {
	report, err := s.collector.Report(ctx, inst, s.slowLimit)
	if err != nil {
		entry.WithError(err).Warn("collection failed; serving empty report")
		return model.EmptyReport(s.now()), true
	}
	return report, false
}

func (s *Service) notify(text string) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, text); err != nil {
			s.log.WithError(err).Warn("notification failed")
		}
	}()
}
