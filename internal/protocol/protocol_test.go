package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		want    *bucket.Range
		wantErr bool
	}{
		{name: "absent", want: nil},
		{name: "valid", start: "100", end: "199", want: &bucket.Range{Start: 100, End: 199}},
		{name: "single", start: "5", end: "5", want: &bucket.Range{Start: 5, End: 5}},
		{name: "missing end", start: "1", wantErr: true},
		{name: "inverted", start: "9", end: "3", wantErr: true},
		{name: "negative", start: "-1", end: "3", wantErr: true},
		{name: "not a number", start: "a", end: "3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.start, tt.end)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRangeQueryRoundTrip(t *testing.T) {
	assert.Nil(t, RangeQuery(nil))

	q := RangeQuery(&bucket.Range{Start: 200, End: 299})
	got, err := ParseRange(q["start"], q["end"])
	require.NoError(t, err)
	assert.Equal(t, &bucket.Range{Start: 200, End: 299}, got)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/protocol/objects/obj-1/properties", PropertiesPath("obj-1"))
	assert.Equal(t, "/protocol/objects/a%2Fb/getter", GetterPath("a/b"))
}

func TestPropertiesBody(t *testing.T) {
	body, err := Marshal(PropertiesResponse{Properties: []value.PropertyDescriptor{
		value.Data(value.NameKey("foo"), value.Number(123)),
		value.Accessor(value.NameKey("bar"), "getter-1"),
	}})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"kind":"getter"`)

	var decoded PropertiesResponse
	require.NoError(t, Unmarshal(body, &decoded))
	require.Len(t, decoded.Properties, 2)
	assert.Equal(t, value.DescriptorGetter, decoded.Properties[1].Kind)
	assert.Equal(t, value.ObjectID("getter-1"), decoded.Properties[1].Resolved().ObjectID)
	assert.Equal(t, float64(123), decoded.Properties[0].Resolved().Num)
}
