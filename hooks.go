package relate

import "context"

// LifecycleEvent names a point in an entity's lifecycle that handlers can
// observe. Bulk UpdateAll/DeleteAll bypass these on purpose.
type LifecycleEvent string

const (
	EventPrePersist      LifecycleEvent = "pre_persist"
	EventPostPersist     LifecycleEvent = "post_persist"
	EventPreDelete       LifecycleEvent = "pre_delete"
	EventPostMaterialize LifecycleEvent = "post_materialize"
)

// Hook observes one entity at a lifecycle event. Returning an error aborts
// the operation that triggered the event.
type Hook func(ctx context.Context, e *Entity) error

// RegisterHook appends a handler for the event. Handlers run in
// registration order. Register during setup, before the engine is shared
// across goroutines.
func (e *Engine) RegisterHook(event LifecycleEvent, h Hook) {
	if e.hooks == nil {
		e.hooks = make(map[LifecycleEvent][]Hook)
	}
	e.hooks[event] = append(e.hooks[event], h)
}

func (e *Engine) dispatch(ctx context.Context, event LifecycleEvent, entities ...*Entity) error {
	for _, h := range e.hooks[event] {
		for _, ent := range entities {
			if err := h(ctx, ent); err != nil {
				return err
			}
		}
	}
	return nil
}
