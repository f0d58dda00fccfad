package ioengine

import "runtime"

// IoKind tags the operation an IoContext was last submitted for, so a
// completion callback keyed on a bare user pointer can tell what it's
// looking at.
type IoKind uint8

const (
	KindNop IoKind = iota
	KindAccept
	KindRead
	KindWrite
	KindClose
	KindRecv
)

func (k IoKind) String() string {
	switch k {
	case KindNop:
		return "nop"
	case KindAccept:
		return "accept"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindClose:
		return "close"
	case KindRecv:
		return "recv"
	default:
		return "unknown"
	}
}

// IoResult is the completion record handed to a Callback.
type IoResult struct {
	// Res is the kernel's signed result: negative is -errno, otherwise a
	// byte count (read/write/recv) or an accepted handle (accept).
	Res int32
	// Flags carries kernel completion flags (e.g. whether a provided
	// buffer was selected).
	Flags uint32
	// Buffer is the provided-buffer slice selected by the kernel for a
	// recv completion. Only valid for the duration of the callback that
	// receives it; callers must copy anything they need to keep.
	Buffer []byte
}

// Callback is invoked once per completion for the IoContext it was
// registered against. Returning a non-nil error unwinds out of Engine.Enter.
type Callback func(kind IoKind, userData any, result IoResult) error

// IoContext is a per-operation descriptor submitted with a request and
// returned on its completion. It is not owned by the Engine: callers embed
// it in longer-lived objects (Server, Connection) and must guarantee it
// outlives the submission it describes. Re-arming an operation just means
// overwriting Kind and resubmitting with the same context.
type IoContext struct {
	Kind     IoKind
	Callback Callback
	UserData any

	// pinner holds the Read/Write buffer pin for this context's
	// currently in-flight op, if any. It's unpinned by the engine the
	// moment that op's completion is observed, mirroring TCPConn.Send's
	// pin/unpin discipline in the teacher.
	pinner runtime.Pinner
}
