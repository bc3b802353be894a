package sandbox

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// injectDOM installs a read-only document object
func (r *Runtime) injectDOM() error {
	document := r.vm.NewObject()

	set := func(name string, v interface{}) error {
		return document.Set(name, v)
	}
	if err := set("querySelector", r.makeQuery(nil, true)); err != nil {
		return err
	}
	if err := set("querySelectorAll", r.makeQuery(nil, false)); err != nil {
		return err
	}
	if err := set("getElementById", r.getElementByID); err != nil {
		return err
	}
	if body := r.dom.Body(); body != nil {
		if err := set("body", r.wrap(body)); err != nil {
			return err
		}
	}
	if root := r.dom.DocumentElement(); root != nil {
		if err := set("documentElement", r.wrap(root)); err != nil {
			return err
		}
	}

	return r.vm.Set("document", document)
}

// makeQuery creates querySelector (first) or querySelectorAll scoped to
// an element, or to the document when scope is nil
func (r *Runtime) makeQuery(scope *html.Node, first bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(r.vm.NewTypeError("selector required"))
		}

		nodes, err := r.dom.Query(scope, call.Argument(0).String())
		if err != nil {
			panic(r.vm.NewTypeError(err.Error()))
		}

		if first {
			if len(nodes) == 0 {
				return goja.Null()
			}
			return r.wrap(nodes[0])
		}

		items := make([]interface{}, len(nodes))
		for i, n := range nodes {
			items[i] = r.wrap(n)
		}
		return r.vm.NewArray(items...)
	}
}

func (r *Runtime) getElementByID(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).String()
	match := r.dom.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("id", "") == id
	})
	if len(match.Nodes) == 0 {
		return goja.Null()
	}
	return r.wrap(match.Nodes[0])
}

// wrap returns the single JS object standing for an element
func (r *Runtime) wrap(n *html.Node) *goja.Object {
	if obj, ok := r.table.wrappers[n]; ok {
		return obj
	}

	obj := r.vm.NewObject()
	r.table.wrappers[n] = obj
	r.table.elements[obj] = n

	id, _ := Attr(n, "id")
	className, _ := Attr(n, "class")
	_ = obj.Set("tagName", strings.ToUpper(n.Data))
	_ = obj.Set("id", id)
	_ = obj.Set("className", className)
	_ = obj.Set("textContent", TextContent(n))
	_ = obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		if v, ok := Attr(n, call.Argument(0).String()); ok {
			return r.vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = obj.Set("querySelector", r.makeQuery(n, true))
	_ = obj.Set("querySelectorAll", r.makeQuery(n, false))
	return obj
}
