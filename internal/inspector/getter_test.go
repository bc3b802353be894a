package inspector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
	"github.com/replayio/devtools-sub005/internal/testutil"
)

func getterGraph() *testutil.Graph {
	return testutil.NewGraph().
		Define("obj",
			value.Data(value.NameKey("plain"), value.Number(1)),
			value.Accessor(value.NameKey("computed"), "obj.computed"),
			value.Accessor(value.NameKey("broken"), "obj.broken"),
			value.SetterOnly(value.NameKey("writeOnly")),
		).
		DefineGetter("obj.computed", func() (value.RemoteValue, error) {
			return value.Object("result", ""), nil
		}).
		DefineGetter("obj.broken", func() (value.RemoteValue, error) {
			return value.RemoteValue{}, errors.New("TypeError: nope")
		}).
		Define("result", value.Data(value.NameKey("inner"), value.Bool(true)))
}

func TestExpandNeverInvokesGetters(t *testing.T) {
	g := getterGraph()
	tree := inspector.NewTree(g)

	children, err := tree.Expand(context.Background(), tree.NewRoot(value.Object("obj", "")))
	require.NoError(t, err)

	computed := childByKey(t, children, "computed")
	assert.Equal(t, value.DescriptorGetter, computed.DescriptorKind())
	assert.Equal(t, value.KindGetter, computed.Value().Kind)
	assert.Equal(t, "(...)", computed.Preview())
	assert.False(t, computed.Expandable())

	writeOnly := childByKey(t, children, "writeOnly")
	assert.Equal(t, value.DescriptorSetter, writeOnly.DescriptorKind())
	assert.Equal(t, value.PrimitiveUndefined, writeOnly.Value().Primitive)

	assert.Zero(t, g.GetterCount("obj.computed"))
	assert.Zero(t, g.GetterCount("obj.broken"))
}

func TestInvokeGetterReplacesPlaceholder(t *testing.T) {
	g := getterGraph()
	tree := inspector.NewTree(g)
	ctx := context.Background()

	children, err := tree.Expand(ctx, tree.NewRoot(value.Object("obj", "")))
	require.NoError(t, err)
	computed := childByKey(t, children, "computed")

	got, err := tree.InvokeGetter(ctx, computed)
	require.NoError(t, err)
	assert.Equal(t, value.ObjectID("result"), got.ObjectID)
	assert.Equal(t, value.KindObject, computed.Value().Kind)
	assert.Equal(t, inspector.StateCollapsed, computed.State())
	assert.Equal(t, 1, g.GetterCount("obj.computed"))

	inner, err := tree.Expand(ctx, computed)
	require.NoError(t, err)
	assert.Equal(t, []string{"inner"}, keys(inner))
}

func TestInvokeGetterFailureIsIsolated(t *testing.T) {
	g := getterGraph()
	tree := inspector.NewTree(g)
	ctx := context.Background()

	children, err := tree.Expand(ctx, tree.NewRoot(value.Object("obj", "")))
	require.NoError(t, err)
	broken := childByKey(t, children, "broken")

	_, err = tree.InvokeGetter(ctx, broken)
	require.ErrorIs(t, err, inspector.ErrGetterEvaluationFailed)
	require.NotNil(t, broken.LoadError())
	assert.Equal(t, inspector.ErrorGetterEvaluationFailed, broken.LoadError().Kind)
	assert.Equal(t, value.KindGetter, broken.Value().Kind)

	plain := childByKey(t, children, "plain")
	assert.Nil(t, plain.LoadError())
	assert.Zero(t, g.GetterCount("obj.computed"))
}

func TestInvokeGetterRejectsDataProperties(t *testing.T) {
	g := getterGraph()
	tree := inspector.NewTree(g)
	ctx := context.Background()

	children, err := tree.Expand(ctx, tree.NewRoot(value.Object("obj", "")))
	require.NoError(t, err)

	for _, key := range []string{"plain", "writeOnly"} {
		_, err := tree.InvokeGetter(ctx, childByKey(t, children, key))
		assert.ErrorIs(t, err, inspector.ErrInvalidOperation, key)
	}

	_, err = tree.InvokeGetter(ctx, nil)
	assert.ErrorIs(t, err, inspector.ErrInvalidOperation)
}

func TestInvokeGetterOnDetachedNode(t *testing.T) {
	m := testutil.NewMockResolver(t)
	m.On("FetchProperties", mock.Anything, value.ObjectID("obj"), mock.Anything).
		Return([]value.PropertyDescriptor{value.Accessor(value.NameKey("g"), "obj.g")}, nil).Once()

	tree := inspector.NewTree(m)
	root := tree.NewRoot(value.Object("obj", ""))
	children, err := tree.Expand(context.Background(), root)
	require.NoError(t, err)

	tree.Teardown(root)
	_, err = tree.InvokeGetter(context.Background(), children[0])
	assert.ErrorIs(t, err, inspector.ErrNodeDetached)
	m.AssertNotCalled(t, "InvokeGetter", mock.Anything, mock.Anything)
}

func TestReinvokedGetterTearsDownOldChildren(t *testing.T) {
	g := getterGraph()
	tree := inspector.NewTree(g)
	obs := &recordingObserver{}
	defer tree.Subscribe(obs)()
	ctx := context.Background()

	children, err := tree.Expand(ctx, tree.NewRoot(value.Object("obj", "")))
	require.NoError(t, err)
	computed := childByKey(t, children, "computed")

	_, err = tree.InvokeGetter(ctx, computed)
	require.NoError(t, err)
	old, err := tree.Expand(ctx, computed)
	require.NoError(t, err)
	require.Len(t, old, 1)

	_, err = tree.InvokeGetter(ctx, computed)
	require.NoError(t, err)

	assert.True(t, old[0].Detached())
	assert.False(t, computed.Detached())
	assert.Nil(t, computed.Children())
	obs.mu.Lock()
	assert.Equal(t, 1, obs.tornDown)
	obs.mu.Unlock()

	fresh, err := tree.Expand(ctx, computed)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.NotSame(t, old[0], fresh[0])
}

func TestExpandRacingGetterDoesNotInstallOldChildren(t *testing.T) {
	proceed := make(chan struct{})
	calls := 0
	g := testutil.NewGraph().
		Define("obj", value.Accessor(value.NameKey("current"), "obj.current")).
		DefineGetter("obj.current", func() (value.RemoteValue, error) {
			calls++
			if calls == 1 {
				return value.Object("first", ""), nil
			}
			<-proceed
			return value.Object("second", ""), nil
		}).
		Define("first", value.Data(value.NameKey("from"), value.String("first"))).
		Define("second", value.Data(value.NameKey("from"), value.String("second")))
	tree := inspector.NewTree(g)
	ctx := context.Background()

	children, err := tree.Expand(ctx, tree.NewRoot(value.Object("obj", "")))
	require.NoError(t, err)
	current := childByKey(t, children, "current")
	_, err = tree.InvokeGetter(ctx, current)
	require.NoError(t, err)

	getterDone := make(chan error, 1)
	go func() {
		_, err := tree.InvokeGetter(ctx, current)
		getterDone <- err
	}()
	require.Eventually(t, func() bool {
		return g.GetterCount("obj.current") == 2
	}, time.Second, time.Millisecond)

	release := g.Block()
	expandDone := make(chan error, 1)
	go func() {
		_, err := tree.Expand(ctx, current)
		expandDone <- err
	}()
	assert.Equal(t, value.ObjectID("first"), <-g.Entered())

	close(proceed)
	require.NoError(t, <-getterDone)
	release()

	err = <-expandDone
	assert.ErrorIs(t, err, inspector.ErrRemoteFetchFailed)
	assert.Nil(t, current.Children())
	assert.Equal(t, value.ObjectID("second"), current.Value().ObjectID)

	fresh, err := tree.Expand(ctx, current)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "second", fresh[0].Value().Str)
}
