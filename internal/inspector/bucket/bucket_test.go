package bucket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

func TestPlanFetch(t *testing.T) {
	p := NewPlanner(0)

	tests := []struct {
		name   string
		value  value.RemoteValue
		want   PlanKind
		ranges []Range
	}{
		{
			name:  "small array is direct",
			value: value.Array("a", 50),
			want:  Direct,
		},
		{
			name:  "exactly one bucket worth is direct",
			value: value.Array("a", 100),
			want:  Direct,
		},
		{
			name:   "106 elements",
			value:  value.Array("a", 106),
			want:   Buckets,
			ranges: []Range{{0, 99}, {100, 105}},
		},
		{
			name:   "typed array",
			value:  value.TypedArray("a", "Uint8Array", 201),
			want:   Buckets,
			ranges: []Range{{0, 99}, {100, 199}, {200, 200}},
		},
		{
			name:  "object never buckets",
			value: value.RemoteValue{Kind: value.KindObject, ObjectID: "o", Length: 5000, HasLength: true},
			want:  Direct,
		},
		{
			name:  "map never buckets",
			value: value.Map("m", 5000),
			want:  Direct,
		},
		{
			name:  "array without declared length",
			value: value.RemoteValue{Kind: value.KindArray, ObjectID: "a"},
			want:  Direct,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := p.PlanFetch(tt.value)
			assert.Equal(t, tt.want, plan.Kind)
			if tt.ranges != nil {
				assert.Equal(t, tt.ranges, plan.Ranges)
			}
		})
	}
}

func TestPlanCoversExactly(t *testing.T) {
	p := NewPlanner(DefaultSize)

	for _, length := range []int{101, 106, 999, 10000, 10001, 100000, 123457} {
		plan := p.PlanFetch(value.Array("a", length))
		require.Equal(t, Buckets, plan.Kind, "length %d", length)

		next := 0
		for _, r := range plan.Ranges {
			assert.Equal(t, next, r.Start, "gap or overlap at length %d", length)
			assert.GreaterOrEqual(t, r.End, r.Start)
			assert.LessOrEqual(t, r.Len(), DefaultSize, "range %s at length %d", r, length)
			next = r.End + 1
		}
		assert.Equal(t, length, next, "ranges must cover [0,%d)", length)
	}
}

func TestHugeArrayKeepsRangesBounded(t *testing.T) {
	p := NewPlanner(DefaultSize)

	plan := p.PlanFetch(value.Array("a", 100000))
	require.Equal(t, Buckets, plan.Kind)
	require.Len(t, plan.Ranges, 1000)
	assert.Equal(t, Range{0, 99}, plan.Ranges[0])
	assert.Equal(t, Range{99900, 99999}, plan.Ranges[999])

	assert.Equal(t, Direct, p.PlanRange(plan.Ranges[999]).Kind)
}

func TestPlanRangeSplitsLongRanges(t *testing.T) {
	p := NewPlanner(DefaultSize)

	inner := p.PlanRange(Range{1000, 1249})
	require.Equal(t, Buckets, inner.Kind)
	assert.Equal(t, []Range{{1000, 1099}, {1100, 1199}, {1200, 1249}}, inner.Ranges)
}

func TestPlanRangeAtBoundary(t *testing.T) {
	p := NewPlanner(DefaultSize)

	assert.Equal(t, Direct, p.PlanRange(Range{100, 199}).Kind)
	assert.Equal(t, Buckets, p.PlanRange(Range{100, 200}).Kind)
}

func TestRangeLabel(t *testing.T) {
	assert.Equal(t, "[100 … 105]", Range{100, 105}.Label())
	assert.Equal(t, 6, Range{100, 105}.Len())
}
