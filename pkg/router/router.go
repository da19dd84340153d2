// Package router implements a shallow+deep event-attribute dispatch
// table: callbacks can match on an event's kind alone, or additionally
// on a nested attribute value, so one inbound event can fan out to
// every interested handler.
package router

import (
	"context"
	"fmt"
)

// Callback handles a dispatched event. ObjectAttributes may be nil for
// events that carry none.
type Callback func(ctx context.Context, event Event) error

// Event is the minimal shape the router needs: a kind to dispatch on,
// and an optional nested attribute map for deep routing.
type Event struct {
	Kind             string
	ObjectAttributes map[string]any
	Payload          any
}

// ErrorHandler is invoked for a callback panic or error; it must not
// re-panic. When New is given a nil handler it uses a no-op that logs
// nothing; callers supply their own as New's onError argument.
type ErrorHandler func(ctx context.Context, kind string, err error)

// Table is the shallow+deep dispatch registry.
type Table struct {
	shallow map[string][]Callback
	// deep[kind][attr][value] -> callbacks
	deep map[string]map[string]map[string][]Callback

	onError ErrorHandler
}

// New creates an empty Table. onError, if non-nil, is invoked whenever
// a callback returns an error or panics; dispatch always continues to
// the next callback regardless.
func New(onError ErrorHandler) *Table {
	if onError == nil {
		onError = func(ctx context.Context, kind string, err error) {}
	}
	return &Table{
		shallow: make(map[string][]Callback),
		deep:    make(map[string]map[string]map[string][]Callback),
		onError: onError,
	}
}

// On registers cb to run for every event of the given kind.
func (t *Table) On(kind string, cb Callback) {
	t.shallow[kind] = append(t.shallow[kind], cb)
}

// OnAttribute registers cb to run for events of the given kind whose
// ObjectAttributes[attr] == value.
func (t *Table) OnAttribute(kind, attr, value string, cb Callback) {
	byAttr, ok := t.deep[kind]
	if !ok {
		byAttr = make(map[string]map[string][]Callback)
		t.deep[kind] = byAttr
	}
	byValue, ok := byAttr[attr]
	if !ok {
		byValue = make(map[string][]Callback)
		byAttr[attr] = byValue
	}
	byValue[value] = append(byValue[value], cb)
}

// Dispatch runs every callback registered for event.Kind: shallow
// callbacks first, in registration order, then deep callbacks matched
// against ObjectAttributes. Deep callbacks bound to the same attribute
// run in registration order; the order between callbacks bound to
// different attributes is not defined. A callback that errors or panics
// is reported to onError and does not prevent subsequent callbacks
// from running.
func (t *Table) Dispatch(ctx context.Context, event Event) {
	var callbacks []Callback
	callbacks = append(callbacks, t.shallow[event.Kind]...)

	if byAttr, ok := t.deep[event.Kind]; ok && event.ObjectAttributes != nil {
		for attr, byValue := range byAttr {
			raw, present := event.ObjectAttributes[attr]
			if !present {
				continue
			}
			value, ok := raw.(string)
			if !ok {
				continue
			}
			if cbs, ok := byValue[value]; ok {
				callbacks = append(callbacks, cbs...)
			}
		}
	}

	for _, cb := range callbacks {
		t.invoke(ctx, event, cb)
	}
}

func (t *Table) invoke(ctx context.Context, event Event, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			t.onError(ctx, event.Kind, fmt.Errorf("callback panicked: %v", r))
		}
	}()

	if err := cb(ctx, event); err != nil {
		t.onError(ctx, event.Kind, err)
	}
}
