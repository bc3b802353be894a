// Package cdp is an inspector backend for a page in a Chrome-compatible
// browser, driven over the DevTools protocol with go-rod.
//
// Property listings come from Runtime.getProperties with own properties
// only, which reports accessors without running them. Getters, map and set
// entries, array slices and DOM children go through Runtime.callFunctionOn.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// objectGroup lets Close release everything the inspector retained
const objectGroup = "inspector"

var (
	ErrScriptFailed  = errors.New("script threw")
	ErrUnknownObject = errors.New("unknown object")
)

type getterRef struct {
	owner proto.RuntimeRemoteObjectID
	name  string
}

// Resolver implements inspector.Backend on one page
type Resolver struct {
	page    *rod.Page
	browser *rod.Browser
	logger  *zap.Logger

	mu      sync.Mutex
	kinds   map[value.ObjectID]value.Kind
	getters map[value.ObjectID]getterRef
	refs    map[getterRef]value.ObjectID
}

// Connect attaches to the browser at controlURL and opens a blank page
func Connect(ctx context.Context, controlURL string, logger *zap.Logger) (*Resolver, error) {
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	r := NewFromPage(page, logger)
	r.browser = browser
	return r, nil
}

// NewFromPage inspects an existing page
func NewFromPage(page *rod.Page, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		page:    page,
		logger:  logger,
		kinds:   make(map[value.ObjectID]value.Kind),
		getters: make(map[value.ObjectID]getterRef),
		refs:    make(map[getterRef]value.ObjectID),
	}
}

// Navigate loads url into the page and waits for it to settle
func (r *Resolver) Navigate(ctx context.Context, url string) error {
	page := r.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (r *Resolver) Evaluate(ctx context.Context, expression string) (value.RemoteValue, error) {
	res, err := proto.RuntimeEvaluate{
		Expression:  expression,
		ObjectGroup: objectGroup,
	}.Call(r.page.Context(ctx))
	if err != nil {
		return value.RemoteValue{}, err
	}
	if res.ExceptionDetails != nil {
		return value.RemoteValue{}, thrown(res.ExceptionDetails)
	}
	return r.describe(ctx, res.Result)
}

func (r *Resolver) FetchProperties(ctx context.Context, id value.ObjectID, rng *bucket.Range) ([]value.PropertyDescriptor, error) {
	r.mu.Lock()
	kind, ok := r.kinds[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}

	oid := proto.RuntimeRemoteObjectID(id)
	switch {
	case kind == value.KindMap:
		return r.entries(ctx, oid, mapEntriesFn, true)
	case kind == value.KindSet:
		return r.entries(ctx, oid, setValuesFn, false)
	case kind == value.KindHTMLElement:
		return r.entries(ctx, oid, childNodesFn, false)
	case kind == value.KindArray && rng != nil:
		return r.slice(ctx, oid, *rng)
	}

	res, err := proto.RuntimeGetProperties{ObjectID: oid, OwnProperties: true}.Call(r.page.Context(ctx))
	if err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return nil, thrown(res.ExceptionDetails)
	}

	props := make([]value.PropertyDescriptor, 0, len(res.Result))
	for _, p := range res.Result {
		if kind == value.KindArray && p.Name == "length" {
			continue
		}
		d, ok, err := r.property(ctx, oid, p, 0)
		if err != nil {
			return nil, err
		}
		if ok {
			props = append(props, d)
		}
	}

	if kind == value.KindProxy {
		for _, p := range res.InternalProperties {
			if p.Name != "[[Target]]" && p.Name != "[[Handler]]" {
				continue
			}
			v, err := r.describe(ctx, p.Value)
			if err != nil {
				return nil, err
			}
			props = append(props, value.Data(value.NameKey(p.Name), v))
		}
	}
	return props, nil
}

func (r *Resolver) InvokeGetter(ctx context.Context, ref value.ObjectID) (value.RemoteValue, error) {
	r.mu.Lock()
	g, ok := r.getters[ref]
	r.mu.Unlock()
	if !ok {
		return value.RemoteValue{}, fmt.Errorf("%w: %s", ErrUnknownObject, ref)
	}

	res, err := proto.RuntimeCallFunctionOn{
		FunctionDeclaration: readPropertyFn,
		ObjectID:            g.owner,
		Arguments:           []*proto.RuntimeCallArgument{{Value: gson.New(g.name)}},
		ObjectGroup:         objectGroup,
	}.Call(r.page.Context(ctx))
	if err != nil {
		return value.RemoteValue{}, err
	}
	if res.ExceptionDetails != nil {
		return value.RemoteValue{}, thrown(res.ExceptionDetails)
	}
	return r.describe(ctx, res.Result)
}

// Close releases retained objects and, when Connect opened it, the browser
func (r *Resolver) Close() error {
	_ = proto.RuntimeReleaseObjectGroup{ObjectGroup: objectGroup}.Call(r.page)
	if r.browser != nil {
		return r.browser.Close()
	}
	return nil
}

// property converts one CDP descriptor; offset shifts index keys of slices
func (r *Resolver) property(ctx context.Context, owner proto.RuntimeRemoteObjectID, p *proto.RuntimePropertyDescriptor, offset int) (value.PropertyDescriptor, bool, error) {
	if p.WasThrown {
		return value.PropertyDescriptor{}, false, nil
	}

	key := value.NameKey(p.Name)
	if i, err := strconv.Atoi(p.Name); err == nil && i >= 0 && p.Symbol == nil {
		key = value.IndexKey(i + offset)
	}

	switch {
	case p.Get != nil && p.Get.Type != proto.RuntimeRemoteObjectTypeUndefined:
		return value.Accessor(key, r.getterRef(owner, p.Name)), true, nil
	case p.Set != nil && p.Set.Type != proto.RuntimeRemoteObjectTypeUndefined:
		return value.SetterOnly(key), true, nil
	case p.Value == nil:
		return value.Data(key, value.Undefined()), true, nil
	}

	v, err := r.describe(ctx, p.Value)
	if err != nil {
		return value.PropertyDescriptor{}, false, err
	}
	return value.Data(key, v), true, nil
}

func (r *Resolver) getterRef(owner proto.RuntimeRemoteObjectID, name string) value.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := getterRef{owner: owner, name: name}
	if ref, ok := r.refs[g]; ok {
		return ref
	}
	ref := value.ObjectID(fmt.Sprintf("getter-%d", len(r.getters)+1))
	r.getters[ref] = g
	r.refs[g] = ref
	return ref
}

// thrown wraps an exception raised by page code
func thrown(d *proto.RuntimeExceptionDetails) error {
	msg := d.Text
	if d.Exception != nil && d.Exception.Description != "" {
		msg = firstLine(d.Exception.Description)
	}
	return fmt.Errorf("%w: %s", ErrScriptFailed, msg)
}
