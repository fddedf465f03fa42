package monitor

import (
	"math/rand"
	"sync"
	"time"
)

// TimeRange fixes the shape of a synthesized history series.
type TimeRange struct {
	Token    string
	Points   int
	Interval time.Duration
}

// DefaultTimeRange is used for empty and unknown tokens.
const DefaultTimeRange = "24h"

var timeRanges = map[string]TimeRange{
	"1h":  {Token: "1h", Points: 12, Interval: 5 * time.Minute},
	"6h":  {Token: "6h", Points: 18, Interval: 20 * time.Minute},
	"24h": {Token: "24h", Points: 24, Interval: time.Hour},
	"7d":  {Token: "7d", Points: 28, Interval: 6 * time.Hour},
}

// LookupTimeRange resolves token, treating anything unknown as 24h.
func LookupTimeRange(token string) TimeRange {
	if tr, ok := timeRanges[token]; ok {
		return tr
	}
	return timeRanges[DefaultTimeRange]
}

// Tracked history metrics and their inclusive value bounds.
var historyMetrics = []struct {
	name     string
	min, max int
}{
	{"qps", 50, 549},
	{"tps", 10, 109},
	{"connections", 20, 99},
	{"slow_queries", 0, 7},
	{"threads_running", 5, 19},
}

// HistoryMetrics lists the metric names every history response carries.
func HistoryMetrics() []string {
	out := make([]string, 0, len(historyMetrics))
	for _, m := range historyMetrics {
		out = append(out, m.name)
	}
	return out
}

// SeriesPoint is one bucket of a synthesized series.
type SeriesPoint struct {
	Time  time.Time
	Label string // HH:mm, local time
	Value int
}

// MetricSeries is ordered oldest first.
type MetricSeries []SeriesPoint

// SeriesPayload is the wire shape of one series.
type SeriesPayload struct {
	Values []int    `json:"values"`
	Labels []string `json:"labels"`
}

// Payload splits the series into parallel value and label arrays.
func (s MetricSeries) Payload() SeriesPayload {
	p := SeriesPayload{Values: make([]int, len(s)), Labels: make([]string, len(s))}
	for i, pt := range s {
		p.Values[i] = pt.Value
		p.Labels[i] = pt.Label
	}
	return p
}

// History maps metric name to its series.
type History map[string]MetricSeries

func (h History) Payload() map[string]SeriesPayload {
	out := make(map[string]SeriesPayload, len(h))
	for name, s := range h {
		out[name] = s.Payload()
	}
	return out
}

// Synthesizer produces shape-compatible history in place of stored samples.
// It is safe for concurrent use.
type Synthesizer struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	now     func() time.Time
	loc     *time.Location
	metrics *Metrics
}

// NewSynthesizer draws values from src. Pass a fixed-seed source for
// reproducible output.
func NewSynthesizer(src rand.Source, m *Metrics) *Synthesizer {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Synthesizer{rnd: rand.New(src), now: time.Now, loc: time.Local, metrics: m}
}

// Synthesize returns one series per tracked metric for token.
func (s *Synthesizer) Synthesize(token string) History {
	tr := LookupTimeRange(token)
	now := s.now()
	s.metrics.observeSynth(tr.Token)

	stamps := make([]time.Time, tr.Points)
	labels := make([]string, tr.Points)
	for i := range stamps {
		stamps[i] = now.Add(-time.Duration(tr.Points-1-i) * tr.Interval)
		labels[i] = stamps[i].In(s.loc).Format("15:04")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(History, len(historyMetrics))
	for _, m := range historyMetrics {
		series := make(MetricSeries, tr.Points)
		for i := range series {
			series[i] = SeriesPoint{
				Time:  stamps[i],
				Label: labels[i],
				Value: m.min + s.rnd.Intn(m.max-m.min+1),
			}
		}
		out[m.name] = series
	}
	return out
}
