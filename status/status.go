// Package status tracks a short human-readable status string for each
// long-running goroutine in the client (the endpoints' I/O workers), so
// that a caller debugging a stuck connection can see what each one is doing.
//
// Inspired heavily by Google "/statsuz" - one public example is at:
// https://github.com/youtube/doorman/blob/master/go/status/status.go
package status

import (
	"context"
	"maps"
	"sync"
)

type item interface {
	addSubItem(string, item)
	delSubItem(string)
	Items() map[string]item
}

type itemCtxKey struct{}

var rootItem = &simpleItem{
	baseItem: baseItem{items: make(map[string]item)},
}

func parentItem(ctx context.Context) item {
	v := ctx.Value(itemCtxKey{})
	if v == nil {
		return rootItem
	}
	return v.(item)
}

type baseItem struct {
	mu    sync.RWMutex
	items map[string]item
}

func (i *baseItem) addSubItem(title string, sub item) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items[title] = sub
}

func (i *baseItem) delSubItem(title string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.items, title)
}

func (i *baseItem) Items() map[string]item {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return maps.Clone(i.items)
}

// simpleItem is an untemplated status item that only reports a plain string.
type simpleItem struct {
	baseItem
	stat string
}

func (i *simpleItem) setStatus(s string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stat = s
}

func (i *simpleItem) String() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.stat
}

// AddSimpleItem adds a simple status item. Set the value shown by the item by
// calling the returned setStatus func. Call done when the goroutine the item
// represents has exited.
func AddSimpleItem(parent context.Context, title string) (ctx context.Context, setStatus func(string), done func()) {
	it := &simpleItem{
		baseItem: baseItem{items: make(map[string]item)},
		stat:     "Unknown status",
	}
	pitem := parentItem(parent)
	pitem.addSubItem(title, it)

	return context.WithValue(parent, itemCtxKey{}, it), it.setStatus, func() { pitem.delSubItem(title) }
}

// Snapshot returns a flat title -> status-string map of every item currently
// registered under the root, for tests and ad-hoc debugging.
func Snapshot() map[string]string {
	out := map[string]string{}
	for title, it := range rootItem.Items() {
		if si, ok := it.(*simpleItem); ok {
			out[title] = si.String()
		}
	}
	return out
}
