package metrics

import (
	"strings"
	"testing"

	"cuida-monitor/internal/index"
	"cuida-monitor/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexGaugesFollowTree(t *testing.T) {
	reg := prometheus.NewRegistry()
	idx := index.New()
	m := New(reg, idx)

	for _, k := range []int64{10, 20, 30, 30} {
		idx.Insert(k, models.EventData{Kind: models.KindFall})
	}
	m.IngestTotal.WithLabelValues("http", "stored").Add(4)

	expected := `
# HELP cuida_index_duplicates_dropped_total Live inserts dropped because an event with the same timestamp was already indexed
# TYPE cuida_index_duplicates_dropped_total counter
cuida_index_duplicates_dropped_total 1
# HELP cuida_index_height Longest root-to-leaf path of the chronological index
# TYPE cuida_index_height gauge
cuida_index_height 3
# HELP cuida_index_size Number of events held by the chronological index
# TYPE cuida_index_size gauge
cuida_index_size 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"cuida_index_size", "cuida_index_height", "cuida_index_duplicates_dropped_total"))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.IngestTotal.WithLabelValues("http", "stored")))
}

type fixedIndex struct {
	size, height int
	dropped      uint64
}

func (f fixedIndex) Len() int        { return f.size }
func (f fixedIndex) Height() int     { return f.height }
func (f fixedIndex) Dropped() uint64 { return f.dropped }

func TestIndexGaugesReadAccessors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, fixedIndex{size: 7, height: 5, dropped: 2})
	m.RehydrateSkipped.Set(3)

	expected := `
# HELP cuida_index_height Longest root-to-leaf path of the chronological index
# TYPE cuida_index_height gauge
cuida_index_height 5
# HELP cuida_index_size Number of events held by the chronological index
# TYPE cuida_index_size gauge
cuida_index_size 7
# HELP cuida_rehydrate_skipped_duplicates Stored events left out of the index on the last rehydration because an earlier event holds their timestamp
# TYPE cuida_rehydrate_skipped_duplicates gauge
cuida_rehydrate_skipped_duplicates 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"cuida_index_size", "cuida_index_height", "cuida_rehydrate_skipped_duplicates"))
}
