package core

// Frame is a raw binary payload.
type Frame []byte

// SignalConnection abstracts the session channel used as signaling relay.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
