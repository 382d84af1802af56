package contracts

// BodyWriter receives relayed body bytes. A successful Flush means the bytes
// were handed to the caller's connection.
type BodyWriter interface {
	Write([]byte) error
	Flush() error
	Close() error
}

// Downstream reports whether the caller is still attached
type Downstream interface {
	Connected() bool
}
