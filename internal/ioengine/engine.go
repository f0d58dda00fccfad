// Package ioengine implements the completion-based asynchronous I/O core:
// a submission/completion ring, a pool of kernel-provided receive buffers,
// and the event loop that drains completions into per-operation callbacks.
// It knows nothing about RESP, keys, or values — see internal/server for
// that.
package ioengine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

const (
	// ringEntries bounds in-flight submissions, per the construction
	// contract: at most 64 entries outstanding at once.
	ringEntries = 64
	// recvBufferCount and recvBufferLen size the provided-buffer pool:
	// 1024 slots of 512 bytes, 512 KiB total.
	recvBufferCount = 1024
	recvBufferLen   = 512
	// completionBatch bounds how many CQEs are peeked per drain pass.
	completionBatch = 128
)

// Engine owns the ring, the provided-buffer pool, and the set of
// operations that couldn't be submitted immediately because the
// submission queue was full.
type Engine struct {
	ring    *giouring.Ring
	buffers providedBuffers
	pending []func(*giouring.SubmissionQueueEntry)
	running atomic.Bool
}

// New verifies the kernel is new enough, creates a ring sized for 64
// in-flight submissions with deferred task-run and single-issuer hints,
// and registers the provided-buffer pool. Any failure releases whatever
// was already acquired.
func New() (*Engine, error) {
	if err := checkKernelVersion(); err != nil {
		return nil, err
	}

	ring, err := giouring.CreateRingParams(ringEntries, giouring.IOUringParams{
		Flags: giouring.SetupSingleIssuer | giouring.SetupDeferTaskrun,
	})
	if err != nil {
		return nil, fmt.Errorf("ioengine: create ring: %w", err)
	}

	e := &Engine{ring: ring}
	if err := e.buffers.init(ring, recvBufferCount, recvBufferLen); err != nil {
		ring.QueueExit()
		return nil, err
	}
	e.running.Store(true)
	return e, nil
}

// Stop clears the running flag; Enter observes it after the next
// completion drain and returns.
func (e *Engine) Stop() { e.running.Store(false) }

// Close releases the ring and the recv buffer backing store. It does not
// touch any outstanding connections — that's the server's job.
func (e *Engine) Close() error {
	e.ring.QueueExit()
	return e.buffers.close()
}

// Enter runs the event loop until Stop is called or a callback returns an
// error.
func (e *Engine) Enter() error {
	for e.running.Load() {
		if err := e.flush(true); err != nil {
			return err
		}
		if err := e.drain(); err != nil {
			return err
		}
	}
	return nil
}

// flush submits queued entries to the kernel. If wait is true it blocks
// until at least one completion is available.
func (e *Engine) flush(wait bool) error {
	if len(e.pending) > 0 {
		e.submitPending()
	}
	var waitNr uint32
	if wait {
		waitNr = 1
	}
	for {
		_, err := e.ring.SubmitAndWait(waitNr)
		if err == nil {
			return nil
		}
		var errno syscall.Errno
		if errors.As(err, &errno) && (&Error{Op: "submit", Errno: errno}).Temporary() {
			continue
		}
		return fmt.Errorf("ioengine: submit: %w", err)
	}
}

func (e *Engine) submitPending() {
	done := 0
	for _, op := range e.pending {
		sqe := e.ring.GetSQE()
		if sqe == nil {
			break
		}
		op(sqe)
		done++
	}
	if done == len(e.pending) {
		e.pending = nil
	} else {
		e.pending = e.pending[done:]
	}
}

// drain pulls every ready completion and dispatches it to its context's
// callback.
func (e *Engine) drain() error {
	var cqes [completionBatch]*giouring.CompletionQueueEvent
	for {
		n := e.ring.PeekBatchCQE(cqes[:])
		for _, cqe := range cqes[:n] {
			if err := e.dispatch(cqe); err != nil {
				e.ring.CQAdvance(n)
				return err
			}
		}
		e.ring.CQAdvance(n)
		if n < completionBatch {
			return nil
		}
	}
}

func (e *Engine) dispatch(cqe *giouring.CompletionQueueEvent) error {
	if cqe.UserData == 0 {
		// A suppressed op that still produced a CQE path (failure); with
		// no context there's nothing to dispatch to.
		return nil
	}
	ctx := (*IoContext)(unsafe.Pointer(uintptr(cqe.UserData)))
	result := IoResult{Res: cqe.Res, Flags: cqe.Flags}
	switch ctx.Kind {
	case KindRecv:
		if buf, id, ok := e.buffers.selected(cqe.Res, cqe.Flags); ok {
			result.Buffer = buf
			defer e.buffers.release(id)
		}
	case KindRead, KindWrite:
		// The buffer passed to Read/Write was pinned for exactly this
		// op's async window; this completion, success or failure, is
		// the only signal that window has closed.
		ctx.pinner.Unpin()
	}
	return ctx.Callback(ctx.Kind, ctx.UserData, result)
}

// prepare gets a submission queue entry for op, flushing and retrying once
// if the queue is momentarily full, and finally queuing op for the next
// flush if it's still full.
func (e *Engine) prepare(op func(*giouring.SubmissionQueueEntry)) {
	sqe := e.ring.GetSQE()
	if sqe == nil {
		_ = e.flush(false)
		sqe = e.ring.GetSQE()
	}
	if sqe == nil {
		e.pending = append(e.pending, op)
		return
	}
	op(sqe)
}

func ctxUserData(ctx *IoContext) uint64 {
	if ctx == nil {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(ctx)))
}

// Nop submits a no-op. With ctx nil the completion is suppressed
// unconditionally; the op never delivers a callback on success.
func (e *Engine) Nop(ctx *IoContext) {
	e.prepare(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareNop()
		sqe.Flags |= giouring.SqeCqeSkipSuccess
		if ctx != nil {
			ctx.Kind = KindNop
		}
		sqe.UserData = ctxUserData(ctx)
	})
}

// Accept submits an accept on the listening handle. The CQE is always
// delivered; ctx must be non-nil.
func (e *Engine) Accept(handle int, ctx *IoContext) {
	e.prepare(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareAccept(handle, 0, 0, 0)
		ctx.Kind = KindAccept
		sqe.UserData = ctxUserData(ctx)
	})
}

// Recv submits a single-shot recv that selects a buffer from the engine's
// provided-buffer group. ctx must be non-nil.
func (e *Engine) Recv(handle int, ctx *IoContext) {
	e.prepare(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareRecv(handle, 0, 0, 0)
		sqe.Flags |= giouring.SqeBufferSelect
		sqe.BufIG = bufferGroupID
		ctx.Kind = KindRecv
		sqe.UserData = ctxUserData(ctx)
	})
}

// Read submits a read at offset into buf. ctx must be non-nil. buf is
// pinned via ctx's runtime.Pinner for the duration of the async op — the
// kernel reads this memory at an arbitrary point between submission and
// completion, so it must neither move nor be collected in the meantime —
// and unpinned by the engine the moment the completion is observed (see
// dispatch), the same discipline TCPConn.Send uses for writes.
func (e *Engine) Read(handle int, buf []byte, offset uint64, ctx *IoContext) {
	e.prepare(func(sqe *giouring.SubmissionQueueEntry) {
		var addr uintptr
		if len(buf) > 0 {
			ctx.pinner.Pin(&buf[0])
			addr = uintptr(unsafe.Pointer(&buf[0]))
		}
		sqe.PrepareRead(handle, addr, uint32(len(buf)), offset)
		ctx.Kind = KindRead
		sqe.UserData = ctxUserData(ctx)
	})
}

// Write submits a write of buf at offset. ctx must be non-nil: buf is
// pinned via ctx's runtime.Pinner for the duration of the async op (same
// rationale as Read) and unpinned on completion. Like Read/Recv, and unlike
// Nop/CloseHandle, this op always delivers a CQE — CQE-skip-on-success
// would suppress the only
// signal that tells the engine it's safe to unpin.
func (e *Engine) Write(handle int, buf []byte, offset uint64, ctx *IoContext) {
	e.prepare(func(sqe *giouring.SubmissionQueueEntry) {
		var addr uintptr
		if len(buf) > 0 {
			ctx.pinner.Pin(&buf[0])
			addr = uintptr(unsafe.Pointer(&buf[0]))
		}
		sqe.PrepareWrite(handle, addr, uint32(len(buf)), offset)
		ctx.Kind = KindWrite
		sqe.UserData = ctxUserData(ctx)
	})
}

// CloseHandle submits a close of handle. Suppress-on-success: a close
// carries no caller buffer, so there's nothing a completion needs to
// unblock, unlike Write/Read.
func (e *Engine) CloseHandle(handle int, ctx *IoContext) {
	e.prepare(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareClose(handle)
		sqe.Flags |= giouring.SqeCqeSkipSuccess
		if ctx != nil {
			ctx.Kind = KindClose
		}
		sqe.UserData = ctxUserData(ctx)
	})
}
