package monitor

import (
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var labelPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func TestSynthesizeShape(t *testing.T) {
	cases := []struct {
		token    string
		points   int
		interval time.Duration
	}{
		{"1h", 12, 5 * time.Minute},
		{"6h", 18, 20 * time.Minute},
		{"24h", 24, time.Hour},
		{"7d", 28, 6 * time.Hour},
		{"30d", 24, time.Hour},
		{"", 24, time.Hour},
	}
	s := NewSynthesizer(rand.NewSource(1), nil)
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			before := time.Now()
			h := s.Synthesize(tc.token)
			require.Len(t, h, len(HistoryMetrics()))
			for _, name := range HistoryMetrics() {
				series, ok := h[name]
				require.True(t, ok, name)
				require.Len(t, series, tc.points)
				for i, pt := range series {
					assert.Regexp(t, labelPattern, pt.Label)
					if i > 0 {
						assert.Equal(t, tc.interval, pt.Time.Sub(series[i-1].Time))
					}
				}
				last := series[len(series)-1].Time
				assert.False(t, last.Before(before))
				assert.Less(t, time.Since(last), tc.interval)
			}
		})
	}
}

func TestSynthesizeBounds(t *testing.T) {
	s := NewSynthesizer(rand.NewSource(42), nil)
	for i := 0; i < 50; i++ {
		h := s.Synthesize("7d")
		for _, m := range historyMetrics {
			for _, pt := range h[m.name] {
				assert.GreaterOrEqual(t, pt.Value, m.min, m.name)
				assert.LessOrEqual(t, pt.Value, m.max, m.name)
			}
		}
	}
}

func TestSynthesizeFixedSeed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func() *Synthesizer {
		s := NewSynthesizer(rand.NewSource(7), nil)
		s.now = func() time.Time { return now }
		s.loc = time.UTC
		return s
	}
	a, b := mk().Synthesize("1h"), mk().Synthesize("1h")
	assert.Equal(t, a, b)

	labels := a["qps"].Payload().Labels
	assert.Equal(t, "11:05", labels[0])
	assert.Equal(t, "12:00", labels[11])
}

func TestUnknownRangeMatches24h(t *testing.T) {
	assert.Equal(t, LookupTimeRange("24h"), LookupTimeRange("bogus"))
	assert.Equal(t, 12, LookupTimeRange("1h").Points)
}

func TestHistoryPayload(t *testing.T) {
	s := NewSynthesizer(rand.NewSource(3), nil)
	p := s.Synthesize("6h").Payload()
	require.Contains(t, p, "threads_running")
	assert.Len(t, p["threads_running"].Values, 18)
	assert.Len(t, p["threads_running"].Labels, 18)
}
