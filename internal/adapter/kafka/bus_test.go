package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPatterns(t *testing.T) {
	exact, wildcards := splitPatterns([]string{"station-ORO", "station-*", "reservoir.sha", "*", "#"})

	assert.Equal(t, []string{"station-ORO", "reservoir.sha"}, exact)
	assert.Equal(t, []string{"station-*", "*", "#"}, wildcards)
}

func TestMatchTopics(t *testing.T) {
	names := []string{
		"station-ORO",
		"station-SHA",
		"reservoir.oro",
		"weather-alerts",
		"__consumer_offsets",
	}

	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{"catch-all", []string{"*"}, []string{"station-ORO", "station-SHA", "reservoir.oro", "weather-alerts"}},
		{"mqtt style catch-all", []string{"#"}, []string{"station-ORO", "station-SHA", "reservoir.oro", "weather-alerts"}},
		{"station prefix", []string{"station-*"}, []string{"station-ORO", "station-SHA"}},
		{"reservoir prefix", []string{"reservoir.*"}, []string{"reservoir.oro"}},
		{"no match", []string{"snowpack-*"}, nil},
		{"multiple patterns no double count", []string{"station-*", "*"},
			[]string{"station-ORO", "station-SHA", "reservoir.oro", "weather-alerts"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchTopics(names, tt.patterns))
		})
	}
}

func TestMatchTopics_SkipsInternal(t *testing.T) {
	matched := matchTopics([]string{"__consumer_offsets", "_schemas"}, []string{"*"})
	assert.Empty(t, matched)
}
