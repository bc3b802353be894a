package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/serialize"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
	"github.com/replayio/devtools-sub005/internal/testutil"
)

func TestRecorderReplaysSerialization(t *testing.T) {
	ctx := context.Background()
	graph, root := testutil.Chain(10)
	graph.DefineGlobal("chain", root)

	rec := NewRecorder(graph)
	live := inspector.NewTree(rec)
	v, err := rec.Evaluate(ctx, "chain")
	require.NoError(t, err)

	want, err := serialize.New(live).WithMaxDepth(20).Serialize(ctx, live.NewRoot(v))
	require.NoError(t, err)
	fetches := graph.TotalFetches()

	store := NewStore(rec.Snapshot())
	replayed := inspector.NewTree(store)
	v, err = store.Evaluate(ctx, "chain")
	require.NoError(t, err)

	got, err := serialize.New(replayed).WithMaxDepth(20).Serialize(ctx, replayed.NewRoot(v))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, fetches, graph.TotalFetches(), "replay never reaches the live backend")
}

func TestRecorderMergesRanges(t *testing.T) {
	ctx := context.Background()
	graph, root := testutil.Numbers("big", 250)
	graph.Define("big", append(graphProps(t, graph, "big"), value.Data(value.NameKey("tag"), value.String("x")))...)

	rec := NewRecorder(graph)
	tree := inspector.NewTree(rec)
	node := tree.NewRoot(root)

	buckets, err := tree.Expand(ctx, node)
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	// expand the buckets back to front so the recorder has to reorder them
	for i := len(buckets) - 1; i >= 0; i-- {
		_, err := tree.Expand(ctx, buckets[i])
		require.NoError(t, err)
	}

	props := rec.Snapshot().Objects["big"]
	require.Len(t, props, 250)
	for i, p := range props {
		require.True(t, p.Key.IsIndex)
		require.Equal(t, i, p.Key.Index)
	}

	// a full fetch afterwards adds the named property after the indices
	_, err = rec.FetchProperties(ctx, "big", nil)
	require.NoError(t, err)
	props = rec.Snapshot().Objects["big"]
	require.Len(t, props, 251)
	assert.Equal(t, "tag", props[250].Key.Name)
}

func TestRecorderRecordsGetterOutcomes(t *testing.T) {
	ctx := context.Background()
	graph := testutil.NewGraph().
		DefineGetter("ok", func() (value.RemoteValue, error) { return value.Number(7), nil }).
		DefineGetter("throws", func() (value.RemoteValue, error) { return value.RemoteValue{}, errors.New("boom") })

	rec := NewRecorder(graph)
	_, err := rec.InvokeGetter(ctx, "ok")
	require.NoError(t, err)
	_, err = rec.InvokeGetter(ctx, "throws")
	require.Error(t, err)

	snap := rec.Snapshot()
	require.Contains(t, snap.Getters, value.ObjectID("ok"))
	assert.Equal(t, float64(7), snap.Getters["ok"].Value.Num)
	assert.Equal(t, "boom", snap.Getters["throws"].Error)
}

func TestRecorderSkipsFailures(t *testing.T) {
	ctx := context.Background()
	graph, _ := testutil.SelfCycle()
	graph.Fail("obj", errors.New("offline"))

	rec := NewRecorder(graph)
	_, err := rec.FetchProperties(ctx, "obj", nil)
	require.Error(t, err)
	assert.NotContains(t, rec.Snapshot().Objects, value.ObjectID("obj"))
}

func TestMerge(t *testing.T) {
	a := []value.PropertyDescriptor{
		value.Data(value.IndexKey(2), value.Number(2)),
		value.Data(value.NameKey("length"), value.Number(4)),
	}
	b := []value.PropertyDescriptor{
		value.Data(value.IndexKey(0), value.Number(0)),
		value.Data(value.IndexKey(2), value.Number(99)),
		value.Data(value.NameKey("extra"), value.Null()),
	}

	got := merge(a, b)
	keys := make([]string, len(got))
	for i, p := range got {
		keys[i] = p.Key.String()
	}
	assert.Equal(t, []string{"0", "2", "length", "extra"}, keys)
	assert.Equal(t, float64(2), got[1].Resolved().Num, "first answer wins")
}

func graphProps(t *testing.T, g *testutil.Graph, id value.ObjectID) []value.PropertyDescriptor {
	t.Helper()
	props, err := g.FetchProperties(context.Background(), id, (*bucket.Range)(nil))
	require.NoError(t, err)
	return props
}
