// Package router collects event handlers and validates them at registration.
//
// A handler is any function of the form
//
//	func(ctx context.Context, a A, b B, ...) error
//
// Each parameter after the context names a type the dispatcher must supply
// from the per-message container. Parameter types are resolved once here, so
// dispatch only performs exact lookups.
package router

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"lunabot/internal/domain"
)

var (
	ErrNotHandler   = errors.New("handler is not a function")
	ErrNotAsync     = errors.New("handler must have the form func(context.Context, ...) error")
	ErrUntypedParam = errors.New("handler parameter has no explicit type")
	ErrUnknownEvent = errors.New("unknown event name")
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// HandlerDescriptor is a validated handler. It is immutable after creation.
type HandlerDescriptor struct {
	Event  domain.EventName
	Params []reflect.Type

	Name string
	File string
	Line int

	fn reflect.Value
}

// Describe validates handler and computes its required parameter types.
func Describe(event domain.EventName, handler any) (*HandlerDescriptor, error) {
	if !event.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}

	v := reflect.ValueOf(handler)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("%w: %T", ErrNotHandler, handler)
	}

	d := &HandlerDescriptor{Event: event, fn: v}
	if fn := runtime.FuncForPC(v.Pointer()); fn != nil {
		d.Name = fn.Name()
		d.File, d.Line = fn.FileLine(fn.Entry())
	}

	t := v.Type()
	if t.IsVariadic() || t.NumIn() == 0 || t.In(0) != contextType ||
		t.NumOut() != 1 || t.Out(0) != errorType {
		return nil, fmt.Errorf("%w: %s has type %s", ErrNotAsync, d.Name, t)
	}

	d.Params = make([]reflect.Type, 0, t.NumIn()-1)
	for i := 1; i < t.NumIn(); i++ {
		p := t.In(i)
		if p.Kind() == reflect.Interface && p.NumMethod() == 0 {
			return nil, fmt.Errorf("%w: %s parameter %d is %s", ErrUntypedParam, d.Name, i, p)
		}
		d.Params = append(d.Params, p)
	}
	return d, nil
}

// Invoke calls the handler with ctx followed by args, which must match Params.
func (d *HandlerDescriptor) Invoke(ctx context.Context, args []reflect.Value) error {
	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(ctx))
	in = append(in, args...)

	out := d.fn.Call(in)
	if err, ok := out[0].Interface().(error); ok && err != nil {
		return err
	}
	return nil
}

func (d *HandlerDescriptor) String() string {
	return fmt.Sprintf("%s (%s:%d)", d.Name, d.File, d.Line)
}

// Router collects handlers in registration order. Routers built by separate
// feature modules can be merged with Include.
type Router struct {
	mu       sync.Mutex
	handlers []*HandlerDescriptor
}

func New() *Router {
	return &Router{}
}

// On registers handler under event. Invalid handlers are rejected immediately.
func (r *Router) On(event domain.EventName, handler any) error {
	d, err := Describe(event, handler)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, d)
	return nil
}

// MustOn is like On but panics on an invalid handler. It is meant for
// package-level route tables.
func (r *Router) MustOn(event domain.EventName, handler any) *Router {
	if err := r.On(event, handler); err != nil {
		panic(err)
	}
	return r
}

// Include appends the handlers of others, keeping their order.
func (r *Router) Include(others ...*Router) {
	for _, o := range others {
		if o == nil || o == r {
			continue
		}
		hs := o.Handlers()
		r.mu.Lock()
		r.handlers = append(r.handlers, hs...)
		r.mu.Unlock()
	}
}

// Handlers returns a copy of the registered descriptors.
func (r *Router) Handlers() []*HandlerDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*HandlerDescriptor, len(r.handlers))
	copy(out, r.handlers)
	return out
}

// Len returns the number of registered handlers.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
