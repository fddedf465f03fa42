package monitor

import (
	"math"
	"strconv"
	"strings"
	"time"

	"db-monitor/pkg/model"
)

// Status variable names read from SHOW GLOBAL STATUS.
const (
	varUptime           = "Uptime"
	varConnections      = "Connections"
	varThreadsRunning   = "Threads_running"
	varThreadsConnected = "Threads_connected"
	varSlowQueries      = "Slow_queries"
	varQueries          = "Queries"
	varComCommit        = "Com_commit"
	varComRollback      = "Com_rollback"
)

// StatusSnapshot is one capture of the counters the calculator needs.
// A nil field means the counter was absent or unparseable.
type StatusSnapshot struct {
	Uptime           *int64
	Connections      *int64
	ThreadsRunning   *int64
	ThreadsConnected *int64
	SlowQueries      *int64
	Queries          *int64
	ComCommit        *int64
	ComRollback      *int64
	CapturedAt       time.Time
}

// ParseSnapshot picks the tracked counters out of raw status variables.
// Variable names match case-insensitively.
func ParseSnapshot(raw map[string]string, at time.Time) StatusSnapshot {
	lower := make(map[string]string, len(raw))
	for k, v := range raw {
		lower[strings.ToLower(k)] = v
	}
	get := func(name string) *int64 {
		v, ok := lower[strings.ToLower(name)]
		if !ok {
			return nil
		}
		return parseCounter(v)
	}
	return StatusSnapshot{
		Uptime:           get(varUptime),
		Connections:      get(varConnections),
		ThreadsRunning:   get(varThreadsRunning),
		ThreadsConnected: get(varThreadsConnected),
		SlowQueries:      get(varSlowQueries),
		Queries:          get(varQueries),
		ComCommit:        get(varComCommit),
		ComRollback:      get(varComRollback),
		CapturedAt:       at,
	}
}

func parseCounter(v string) *int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int64(f)
	return &n
}

// Counters is a StatusSnapshot after the default-fill step.
type Counters struct {
	Uptime           int64
	Connections      int64
	ThreadsRunning   int64
	ThreadsConnected int64
	SlowQueries      int64
	Queries          int64
	ComCommit        int64
	ComRollback      int64
	// RateWindow is the uptime used as rate denominator; 1 when uptime is absent.
	RateWindow int64
}

// Fill resolves every optional counter: absent counts become 0, an absent
// uptime becomes a rate window of 1.
func (s StatusSnapshot) Fill() Counters {
	return Counters{
		Uptime:           valueOr(s.Uptime, 0),
		Connections:      valueOr(s.Connections, 0),
		ThreadsRunning:   valueOr(s.ThreadsRunning, 0),
		ThreadsConnected: valueOr(s.ThreadsConnected, 0),
		SlowQueries:      valueOr(s.SlowQueries, 0),
		Queries:          valueOr(s.Queries, 0),
		ComCommit:        valueOr(s.ComCommit, 0),
		ComRollback:      valueOr(s.ComRollback, 0),
		RateWindow:       valueOr(s.Uptime, 1),
	}
}

func valueOr(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return *p
}

// Derive computes the report for one snapshot. It does no I/O; the
// auxiliary lists come back empty and are attached by the collector.
func Derive(s StatusSnapshot) model.MetricReport {
	c := s.Fill()
	r := model.EmptyReport(s.CapturedAt)
	r.Uptime = c.Uptime
	r.Connections = c.Connections
	r.ThreadsRunning = c.ThreadsRunning
	r.ThreadsConnected = c.ThreadsConnected
	r.SlowQueries = c.SlowQueries
	r.QPS = rate(c.Queries, c.RateWindow)
	r.TPS = rate(c.ComCommit+c.ComRollback, c.RateWindow)
	return r
}

// rate is count/seconds rounded to two decimals, 0 when seconds is not positive.
func rate(count, seconds int64) float64 {
	if seconds <= 0 {
		return 0
	}
	v := float64(count) / float64(seconds)
	if v < 0 {
		return 0
	}
	return round2(v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
