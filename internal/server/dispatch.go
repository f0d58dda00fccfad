package server

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/cleanbaja/kvcache/internal/ioengine"
	"github.com/cleanbaja/kvcache/internal/kvconn"
	"github.com/cleanbaja/kvcache/internal/resp"
)

// dispatch is the server's single completion callback, registered against
// every IoContext the server submits (the accept context and both slots of
// every Connection). It's keyed on IoKind exactly as §4.4 describes, with
// userData's concrete type varying per kind — the *Server for accept (set
// on the accept context, unused here since the server is the receiver),
// *kvconn.Connection for everything else.
func (s *Server) dispatch(kind ioengine.IoKind, userData any, result ioengine.IoResult) error {
	switch kind {
	case ioengine.KindAccept:
		return s.onAccept(result)
	case ioengine.KindRecv:
		return s.onRecv(userData.(*kvconn.Connection), result)
	case ioengine.KindClose:
		s.onClose(userData.(*kvconn.Connection))
		return nil
	case ioengine.KindWrite:
		s.onWriteComplete(userData, result)
		return nil
	default:
		return nil
	}
}

func (s *Server) onAccept(result ioengine.IoResult) error {
	// Always re-arm: exactly one accept must be outstanding at all times
	// while the server runs.
	defer s.engine.Accept(s.listenHandle, &s.acceptCtx)

	if result.Res < 0 {
		s.log.Warn("accept failed", "errno", -result.Res)
		return nil
	}
	fd := int(result.Res)
	c := kvconn.New(fd, s, s.dispatch)
	s.connections[fd] = c
	s.metrics.connectionsAccepted.Inc()
	s.metrics.connectionsActive.Inc()
	c.Log().Debug("accepted")

	s.engine.Recv(fd, &c.Ctx[kvconn.SlotRecv])
	return nil
}

func (s *Server) onRecv(c *kvconn.Connection, result ioengine.IoResult) error {
	if result.Res < 0 {
		c.Log().Debug("recv error, abandoning connection", "errno", -result.Res)
		return nil
	}
	if result.Res == 0 {
		s.closeHandle(c)
		return nil
	}

	s.metrics.bytesReceived.Add(float64(len(result.Buffer)))
	if err := s.process(c, result.Buffer); err != nil {
		s.closeOnProtocolError(c, errors.Wrapf(err, "conn %s", c.ID))
		return nil
	}
	s.engine.Recv(c.Handle, &c.Ctx[kvconn.SlotRecv])
	return nil
}

func (s *Server) onClose(c *kvconn.Connection) {
	c.Log().Debug("closed")
	s.metrics.connectionsActive.Dec()
	c.Close()
}

// onWriteComplete clears the in-flight marker Ctx[SlotSend] was occupied
// under and, if a close was requested while the write was outstanding,
// submits it now that the slot is free.
func (s *Server) onWriteComplete(userData any, result ioengine.IoResult) {
	c, ok := userData.(*kvconn.Connection)
	if !ok {
		return
	}
	c.WriteInFlight = false
	if result.Res < 0 {
		c.Log().Warn("write failed", "errno", -result.Res)
	}
	if c.PendingClose {
		c.PendingClose = false
		s.engine.CloseHandle(c.Handle, &c.Ctx[kvconn.SlotSend])
	}
}

// closeOnProtocolError confines a parser failure to the connection that
// produced it (§7/§9 REDESIGN): it replies with a RESP error and shuts the
// connection down instead of propagating the error out of Enter.
func (s *Server) closeOnProtocolError(c *kvconn.Connection, err error) {
	s.metrics.parseErrors.Inc()
	c.Log().Warn("protocol error", "error", err)
	s.reply(c, encodeError("protocol error"))
	s.closeHandle(c)
}

// closeHandle requests a close of c's handle, deferring the submission
// until Ctx[SlotSend] is free if a reply write is still in flight on it —
// the slot can only carry one op's Kind at a time.
func (s *Server) closeHandle(c *kvconn.Connection) {
	if c.WriteInFlight {
		c.PendingClose = true
		return
	}
	s.engine.CloseHandle(c.Handle, &c.Ctx[kvconn.SlotSend])
}

func (s *Server) reply(c *kvconn.Connection, data []byte) {
	c.WriteInFlight = true
	s.engine.Write(c.Handle, data, 0, &c.Ctx[kvconn.SlotSend])
}

// Remove implements kvconn.Owner. Called once a connection's close
// completion has been observed.
func (s *Server) Remove(c *kvconn.Connection) {
	delete(s.connections, c.Handle)
}

// process parses one recv'd slice and dispatches the resulting command,
// per the table in §4.4.
func (s *Server) process(c *kvconn.Connection, buf []byte) error {
	var p resp.Parser
	item, err := p.Decode(buf)
	if err != nil {
		return err
	}

	switch item.Kind {
	case resp.KindString:
		if len(item.Str) >= 4 && bytes.EqualFold(item.Str[:4], []byte("PING")) {
			s.metrics.commandsTotal.WithLabelValues("PING").Inc()
			s.reply(c, encodeSimpleString("PONG"))
		}
		return nil
	case resp.KindList:
		s.dispatchCommand(c, item.List)
		return nil
	default:
		return nil
	}
}

// dispatchCommand matches the command name case-insensitively (§9 open
// question, resolved: real clients send mixed case).
func (s *Server) dispatchCommand(c *kvconn.Connection, args []resp.Item) {
	if len(args) == 0 || args[0].Kind != resp.KindString {
		return
	}
	name := args[0].Str

	switch {
	case isCommand(name, "PING"):
		s.metrics.commandsTotal.WithLabelValues("PING").Inc()
		s.reply(c, encodeSimpleString("PONG"))
	case isCommand(name, "CLIENT"):
		s.metrics.commandsTotal.WithLabelValues("CLIENT").Inc()
		s.reply(c, encodeSimpleString("OK"))
	case isCommand(name, "SET"):
		s.metrics.commandsTotal.WithLabelValues("SET").Inc()
		s.cmdSet(c, args)
	case isCommand(name, "GET"):
		s.metrics.commandsTotal.WithLabelValues("GET").Inc()
		s.cmdGet(c, args)
	default:
		s.metrics.unknownCommands.Inc()
		s.reply(c, encodeSimpleString("OK"))
	}
}

func (s *Server) cmdSet(c *kvconn.Connection, args []resp.Item) {
	if len(args) != 3 || args[1].Kind != resp.KindString || args[2].Kind != resp.KindString {
		s.reply(c, encodeSimpleString("OK"))
		return
	}
	s.store.Set(args[1].Str, args[2].Str)
	s.reply(c, encodeSimpleString("OK"))
}

func (s *Server) cmdGet(c *kvconn.Connection, args []resp.Item) {
	if len(args) != 2 || args[1].Kind != resp.KindString {
		s.reply(c, replyNilBulk)
		return
	}
	v, ok := s.store.Get(args[1].Str)
	if !ok {
		s.reply(c, replyNilBulk)
		return
	}
	s.reply(c, encodeBulkString(v))
}

func isCommand(name []byte, want string) bool {
	return bytes.EqualFold(name, []byte(want))
}
