package dispatch

import (
	"fmt"
	"reflect"
	"strings"
)

// Container maps a type to exactly one value. It is built per dispatched
// message and discarded afterwards.
type Container struct {
	values map[reflect.Type]reflect.Value
}

func NewContainer() *Container {
	return &Container{values: make(map[reflect.Type]reflect.Value)}
}

// Provide stores v under its dynamic type, replacing any previous value of
// that type. A nil v is ignored.
func (c *Container) Provide(v any) {
	if v == nil {
		return
	}
	c.values[reflect.TypeOf(v)] = reflect.ValueOf(v)
}

// ProvideAs stores v under the static type T, which lets a value be
// injected through an interface type.
func ProvideAs[T any](c *Container, v T) {
	c.values[reflect.TypeOf((*T)(nil)).Elem()] = reflect.ValueOf(&v).Elem()
}

// Lookup returns the value stored under exactly t.
func (c *Container) Lookup(t reflect.Type) (reflect.Value, bool) {
	v, ok := c.values[t]
	return v, ok
}

// Len returns the number of stored types.
func (c *Container) Len() int { return len(c.values) }

func (c *Container) String() string {
	names := make([]string, 0, len(c.values))
	for t := range c.values {
		names = append(names, t.String())
	}
	return fmt.Sprintf("Container[%s]", strings.Join(names, ", "))
}
