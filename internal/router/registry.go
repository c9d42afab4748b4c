package router

import "lunabot/internal/domain"

// Registry is a read-only snapshot of routers, indexed by event name.
// Later registrations on the source routers do not affect it.
type Registry struct {
	byEvent map[domain.EventName][]*HandlerDescriptor
	total   int
}

// Build snapshots routers in the given order.
func Build(routers ...*Router) *Registry {
	reg := &Registry{byEvent: make(map[domain.EventName][]*HandlerDescriptor)}
	for _, r := range routers {
		if r == nil {
			continue
		}
		for _, d := range r.Handlers() {
			reg.byEvent[d.Event] = append(reg.byEvent[d.Event], d)
			reg.total++
		}
	}
	return reg
}

// Handlers returns the descriptors registered under event, in registration order.
// The returned slice must not be modified.
func (r *Registry) Handlers(event domain.EventName) []*HandlerDescriptor {
	if r == nil {
		return nil
	}
	return r.byEvent[event]
}

// Len returns the total number of handlers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return r.total
}
