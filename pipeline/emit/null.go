package emit

// NullEmitter discards all events. Useful as an explicit default and in
// benchmarks where emission overhead must be excluded.
type NullEmitter struct{}

// NewNullEmitter creates a NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit drops the event.
func (*NullEmitter) Emit(Event) {}
