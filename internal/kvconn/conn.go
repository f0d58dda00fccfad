// Package kvconn holds the per-client Connection record: enough state for
// the server's single dispatch callback to recover a client's identity and
// in-flight operation slots from a completion. Grounded on the teacher's
// TCPConn, reshaped around the spec's two-IoContext-slot discipline
// instead of a closure-per-send design.
package kvconn

import (
	"log/slog"

	"github.com/rs/xid"

	"github.com/cleanbaja/kvcache/internal/ioengine"
)

// Slot indices into Connection.Ctx. Slot 0 is used only for recv
// submissions; slot 1 only for write and close. Two slots suffice because
// at most one recv and at most one write/close are ever in flight per
// connection at once.
const (
	SlotRecv = 0
	SlotSend = 1
)

const scratchSize = 512

// Owner is the narrow slice of Server a Connection needs: a way to remove
// itself once its close completion lands. Defined here rather than
// importing internal/server to avoid a dependency cycle (server owns
// connections, connections don't own servers).
type Owner interface {
	Remove(*Connection)
}

// Connection is a live client's state. Handle is the accepted socket.
// Ctx[SlotRecv] and Ctx[SlotSend] are reused across every recv and
// write/close this connection submits — the spec requires exactly this
// two-slot discipline so a context is never reused while still referenced
// by a pending op.
type Connection struct {
	ID     xid.ID
	Handle int
	Ctx    [2]ioengine.IoContext
	Scratch []byte

	// ClientName/ClientVersion are neither set nor read by the current
	// command set (CLIENT replies +OK without recording its arguments); kept
	// per the spec's data model for forward compatibility.
	ClientName    string
	ClientVersion string

	// WriteInFlight and PendingClose enforce the one-op-at-a-time rule on
	// Ctx[SlotSend]: a close requested while a reply write is still
	// outstanding on that slot can't be submitted immediately without
	// racing the write for the slot's Kind field, so it's deferred until
	// the write's own completion is observed.
	WriteInFlight bool
	PendingClose  bool

	owner Owner
	log   *slog.Logger
}

// New allocates a Connection for an accepted handle, wiring both context
// slots to cb with this connection as their UserData, and links it with
// owner for later removal.
func New(handle int, owner Owner, cb ioengine.Callback) *Connection {
	id := xid.New()
	c := &Connection{
		ID:      id,
		Handle:  handle,
		Scratch: make([]byte, scratchSize),
		owner:   owner,
		log:     slog.Default().With("conn", id.String(), "fd", handle),
	}
	c.Ctx[SlotRecv] = ioengine.IoContext{Callback: cb, UserData: c}
	c.Ctx[SlotSend] = ioengine.IoContext{Callback: cb, UserData: c}
	return c
}

// Log returns this connection's logger, pre-bound with its id and handle
// so every call site doesn't have to repeat them.
func (c *Connection) Log() *slog.Logger { return c.log }

// Close unlinks the connection from its owner. Called once the close
// completion for this connection's handle has been observed.
func (c *Connection) Close() {
	c.owner.Remove(c)
}
