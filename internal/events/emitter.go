package events

// Dispatcher forwards an event to the user's workflow webhooks.
// *webhooks.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(userID, event string, data interface{})
}

// Emitter sends a domain event to both the live websocket hub and the
// user's webhooks. A nil Emitter drops everything.
type Emitter struct {
	hub        *Hub
	dispatcher Dispatcher
}

// NewEmitter creates an Emitter. Either side may be nil.
func NewEmitter(hub *Hub, dispatcher Dispatcher) *Emitter {
	return &Emitter{hub: hub, dispatcher: dispatcher}
}

// Emit publishes event for userID. It never blocks on delivery.
func (e *Emitter) Emit(userID, event string, data interface{}) {
	if e == nil {
		return
	}
	e.hub.Publish(userID, event, data)
	if e.dispatcher != nil {
		e.dispatcher.Dispatch(userID, event, data)
	}
}
