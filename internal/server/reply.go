package server

import (
	"strconv"

	"github.com/valyala/bytebufferpool"
)

var replyPool bytebufferpool.Pool

// replyNilBulk is the fixed nil-bulk-string reply ("$-1\r\n") GET returns
// for a missing key. It's small and constant, so it skips the pool.
var replyNilBulk = []byte("$-1\r\n")

// encodeSimpleString renders a simple-string reply ("+<s>\r\n") through a
// pooled scratch buffer and returns an owned copy of the bytes, safe to
// hand straight to engine.Write.
func encodeSimpleString(s string) []byte {
	b := replyPool.Get()
	defer replyPool.Put(b)
	b.Reset()
	b.WriteByte('+')
	b.WriteString(s)
	b.WriteString("\r\n")
	return append([]byte(nil), b.Bytes()...)
}

// encodeBulkString renders a bulk-string reply ("$<len>\r\n<bytes>\r\n").
func encodeBulkString(v []byte) []byte {
	b := replyPool.Get()
	defer replyPool.Put(b)
	b.Reset()
	b.WriteByte('$')
	b.WriteString(strconv.Itoa(len(v)))
	b.WriteString("\r\n")
	b.Write(v)
	b.WriteString("\r\n")
	return append([]byte(nil), b.Bytes()...)
}

// encodeError renders a RESP error reply ("-ERR <msg>\r\n"). The server
// only emits these when confining a protocol error to the connection that
// produced it (§7 REDESIGN) — it never sends RESP errors for ordinary
// command handling.
func encodeError(msg string) []byte {
	b := replyPool.Get()
	defer replyPool.Put(b)
	b.Reset()
	b.WriteByte('-')
	b.WriteString("ERR ")
	b.WriteString(msg)
	b.WriteString("\r\n")
	return append([]byte(nil), b.Bytes()...)
}
