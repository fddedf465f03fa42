package monitor

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-monitor/pkg/model"
)

type fakeRegistry struct {
	items map[uint]model.Instance
	err   error
}

func (f *fakeRegistry) GetInstance(id uint) (model.Instance, bool, error) {
	if f.err != nil {
		return model.Instance{}, false, f.err
	}
	inst, ok := f.items[id]
	return inst, ok, nil
}

func (f *fakeRegistry) ListInstances() ([]model.Instance, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Instance, 0, len(f.items))
	for _, inst := range f.items {
		out = append(out, inst)
	}
	return out, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
	done chan struct{}
}

func (r *recordingNotifier) Notify(_ context.Context, text string) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, text)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func newTestService(t *testing.T, reg Registry, open OpenFunc, n Notifier) *Service {
	t.Helper()
	log := quietLogger()
	d := NewDialer(time.Second, open, log)
	m := NewMetrics(nil)
	return NewService(Options{
		Registry:    reg,
		Prober:      NewProber(d, m, log),
		Collector:   NewCollector(d, time.Second, m, log),
		Synthesizer: NewSynthesizer(rand.NewSource(1), m),
		Notifier:    n,
		Logger:      log,
	})
}

func registryWith(insts ...model.Instance) *fakeRegistry {
	r := &fakeRegistry{items: map[uint]model.Instance{}}
	for _, i := range insts {
		r.items[i.ID] = i
	}
	return r
}

func TestStartReturnsReportAndName(t *testing.T) {
	open, calls := sequenceOpener(t, expectPing, expectFullReport)
	svc := newTestService(t, registryWith(enabledInstance()), open, nil)

	r, degraded, err := svc.Start(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, "orders-primary", r.InstanceName)
	assert.Equal(t, 5.0, r.QPS)
	assert.Equal(t, 2, calls())
}

func TestStartUnknownOrDisabled(t *testing.T) {
	disabled := enabledInstance()
	disabled.ID = 2
	disabled.Status = model.StatusDisabled
	open, calls := sequenceOpener(t)
	svc := newTestService(t, registryWith(disabled), open, nil)

	_, _, err := svc.Start(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = svc.Start(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 404, Code(err))
	assert.Zero(t, calls())
}

func TestStartProbeFailureNotifies(t *testing.T) {
	open, _ := sequenceOpener(t, func(m sqlmock.Sqlmock) {
		m.ExpectPing().WillReturnError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route to host")})
		m.ExpectClose()
	})
	n := &recordingNotifier{done: make(chan struct{}, 1)}
	svc := newTestService(t, registryWith(enabledInstance()), open, n)

	_, _, err := svc.Start(context.Background(), 1)
	require.ErrorIs(t, err, ErrConnection)

	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0], "orders-primary")
}

func TestStartCollectionFailureIsDegraded(t *testing.T) {
	open, _ := sequenceOpener(t, expectPing, func(m sqlmock.Sqlmock) {
		m.ExpectQuery("SHOW GLOBAL STATUS").WillReturnError(errors.New("server has gone away"))
		m.ExpectClose()
	})
	svc := newTestService(t, registryWith(enabledInstance()), open, nil)

	r, degraded, err := svc.Start(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, "orders-primary", r.InstanceName)
	assert.Zero(t, r.Uptime)
}

func TestStopAlwaysSucceeds(t *testing.T) {
	n := &recordingNotifier{done: make(chan struct{}, 1)}
	svc := newTestService(t, registryWith(), nil, n)
	assert.Equal(t, StopResult{Stopped: true}, svc.Stop(context.Background(), 99))
	assert.Equal(t, StopResult{Stopped: true}, svc.Stop(context.Background(), 99))

	// unregistered ids are not announced
	select {
	case <-n.done:
		t.Fatal("unexpected notification for unknown instance")
	case <-time.After(100 * time.Millisecond):
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Empty(t, n.msgs)
}

func TestStopNotifiesWithName(t *testing.T) {
	n := &recordingNotifier{done: make(chan struct{}, 1)}
	svc := newTestService(t, registryWith(enabledInstance()), nil, n)
	svc.Stop(context.Background(), 1)

	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, []string{"[db-monitor] monitoring stopped for orders-primary"}, n.msgs)
}

func TestRealtimeDegradesToEmpty(t *testing.T) {
	open, _ := sequenceOpener(t, expectPing, func(m sqlmock.Sqlmock) {
		m.ExpectQuery("SHOW GLOBAL STATUS").WillReturnError(errors.New("server has gone away"))
		m.ExpectClose()
	})
	svc := newTestService(t, registryWith(enabledInstance()), open, nil)

	before := time.Now().UnixMilli()
	r, degraded, err := svc.Realtime(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Zero(t, r.QPS)
	assert.Empty(t, r.SlowQueryList)
	assert.NotNil(t, r.SlowQueryList)
	assert.GreaterOrEqual(t, r.Timestamp, before)
}

func TestRealtimeProbeFailureDegrades(t *testing.T) {
	open, calls := sequenceOpener(t, func(m sqlmock.Sqlmock) {
		m.ExpectPing().WillReturnError(context.DeadlineExceeded)
		m.ExpectClose()
	})
	svc := newTestService(t, registryWith(enabledInstance()), open, nil)

	_, degraded, err := svc.Realtime(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, 1, calls())
}

func TestRealtimeLive(t *testing.T) {
	open, _ := sequenceOpener(t, expectPing, expectFullReport)
	svc := newTestService(t, registryWith(enabledInstance()), open, nil)

	r, degraded, err := svc.Realtime(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, int64(3), r.ThreadsRunning)
}

func TestRealtimeDisabledDegradesWithoutConnecting(t *testing.T) {
	disabled := enabledInstance()
	disabled.Status = model.StatusDisabled
	open, calls := sequenceOpener(t)
	svc := newTestService(t, registryWith(disabled), open, nil)

	r, degraded, err := svc.Realtime(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Zero(t, r.Uptime)
	assert.Zero(t, calls())
}

func TestRealtimeUnknownInstance(t *testing.T) {
	svc := newTestService(t, registryWith(), nil, nil)
	_, _, err := svc.Realtime(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistory(t *testing.T) {
	svc := newTestService(t, registryWith(enabledInstance()), nil, nil)

	h, err := svc.History(context.Background(), 1, "6h")
	require.NoError(t, err)
	assert.Len(t, h["qps"], 18)

	_, err = svc.History(context.Background(), 7, "6h")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryFailureIsInternal(t *testing.T) {
	svc := newTestService(t, &fakeRegistry{err: errors.New("registry down")}, nil, nil)
	_, _, err := svc.Start(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, 500, Code(err))

	_, err = svc.Instances()
	assert.ErrorIs(t, err, ErrInternal)
}

func TestTestConnectionValidates(t *testing.T) {
	svc := newTestService(t, registryWith(), nil, nil)
	err := svc.TestConnection(context.Background(), model.Instance{Host: "db", Port: 0})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 400, Code(err))
	assert.Equal(t, "port must be greater than 0", err.Error())
}
