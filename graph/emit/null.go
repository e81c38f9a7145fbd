package emit

// NullEmitter discards every event. Use it where observability is not
// wanted, instead of passing a nil Emitter around.
type NullEmitter struct{}

// NewNullEmitter returns an emitter that drops all events.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(event Event) {}
