package ioengine

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
)

// Error wraps a syscall.Errno with the operation that produced it, in the
// style of go-ublk's errors.go: enough context to log usefully and enough
// structure for errors.Is/As against the plain errno.
type Error struct {
	Op    string
	Errno syscall.Errno
}

func (e *Error) Error() string {
	return fmt.Sprintf("ioengine: %s: %s", e.Op, e.Errno.Error())
}

func (e *Error) Unwrap() error { return e.Errno }

// Temporary reports whether the engine should retry the submission that
// produced this error rather than treat it as fatal.
func (e *Error) Temporary() bool {
	switch e.Errno {
	case syscall.EINTR, syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.EAGAIN:
		return true
	default:
		return false
	}
}

// ErrSystemOutdated is returned from New when the running kernel predates
// the minimum version the engine requires (5.19 — see checkKernelVersion).
type ErrSystemOutdated struct {
	Have    string
	Want    string
}

func (e *ErrSystemOutdated) Error() string {
	return fmt.Sprintf("ioengine: kernel %s is older than required %s", e.Have, e.Want)
}

const minKernelMajor, minKernelMinor = 5, 19

// checkKernelVersion fails initialization on kernels older than 5.19, the
// first release carrying ring-mapped provided buffers, CQE skip-on-success,
// and the single-issuer hint this engine relies on.
func checkKernelVersion() error {
	var uts syscall.Utsname
	if err := syscall.Uname(&uts); err != nil {
		return fmt.Errorf("ioengine: uname: %w", err)
	}
	release := utsToString(uts.Release[:])
	major, minor, ok := parseKernelVersion(release)
	if !ok {
		// Can't parse it; don't block startup on an unexpected format.
		return nil
	}
	if major < minKernelMajor || (major == minKernelMajor && minor < minKernelMinor) {
		return &ErrSystemOutdated{Have: release, Want: "5.19"}
	}
	return nil
}

func utsToString(b []int8) string {
	buf := make([]byte, 0, len(b))
	for _, c := range b {
		if c == 0 {
			break
		}
		buf = append(buf, byte(c))
	}
	return string(buf)
}

func parseKernelVersion(release string) (major, minor int, ok bool) {
	// e.g. "6.8.0-45-generic" or "5.19.0"
	parts := strings.SplitN(release, "-", 2)
	fields := strings.Split(parts[0], ".")
	if len(fields) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
