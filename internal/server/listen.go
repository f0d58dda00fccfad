package server

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/cleanbaja/kvcache/internal/config"
)

// listenDualStack binds a non-blocking, dual-stack IPv6 TCP socket on the
// given port with SO_REUSEPORT set and IPV6_V6ONLY cleared, so a single
// process (or several, for SO_REUSEPORT fan-out) accepts both IPv4 and
// IPv6 clients on one socket. Grounded on aio/tcp_listener.go's listen(),
// generalized from IPv4-only to dual-stack per the spec's §4.4/§6.
func listenDualStack(port int) (int, error) {
	fd, err := syscall.Socket(syscall.AF_INET6, syscall.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEPORT: %w", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_IPV6, syscall.IPV6_V6ONLY, 0); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("setsockopt IPV6_V6ONLY: %w", err)
	}
	sa := &syscall.SockaddrInet6{Port: port}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("bind :%d: %w", port, err)
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	if err := syscall.Listen(fd, 128); err != nil {
		syscall.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// listenRespSocket is the convenience entry point for the RESP listener,
// bound on config.RespPort.
func listenRespSocket() (int, error) {
	return listenDualStack(config.RespPort)
}

func respPort() int { return config.RespPort }

func closeHandle(fd int) error { return syscall.Close(fd) }
