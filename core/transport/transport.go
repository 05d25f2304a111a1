// Package transport provides the scheme-agnostic socket abstraction the
// broker, client and worker libraries bind and poll: TCP, inter-process and
// in-process endpoints behind one bind/poll/send/recv contract, built on
// ZeroMQ ROUTER/DEALER sockets.
package transport

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	rerrors "github.com/geoffjay/remus/core/errors"
	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// Endpoint is a parsed transport address: scheme plus host plus port. Port
// is meaningless for ipc/inproc schemes.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
}

// String composes the endpoint back into a connection string.
func (e Endpoint) String() string {
	switch e.Scheme {
	case "tcp":
		return fmt.Sprintf("tcp://%s:%d", e.Host, e.Port)
	default:
		return fmt.Sprintf("%s://%s", e.Scheme, e.Host)
	}
}

// ParseEndpoint parses a "scheme://host[:port]" connection string.
func ParseEndpoint(s string) (Endpoint, error) {
	parts := strings.SplitN(s, "://", 2)
	if len(parts) != 2 {
		return Endpoint{}, rerrors.NewInvalidMessage(fmt.Sprintf("malformed endpoint %q", s), nil)
	}
	scheme, rest := parts[0], parts[1]
	if scheme != "tcp" {
		return Endpoint{Scheme: scheme, Host: rest}, nil
	}
	hostParts := strings.SplitN(rest, ":", 2)
	if len(hostParts) != 2 {
		return Endpoint{}, rerrors.NewInvalidMessage(fmt.Sprintf("tcp endpoint missing port: %q", s), nil)
	}
	port, err := strconv.Atoi(hostParts[1])
	if err != nil {
		return Endpoint{}, rerrors.NewInvalidMessage(fmt.Sprintf("tcp endpoint has non-numeric port: %q", s), err)
	}
	return Endpoint{Scheme: "tcp", Host: hostParts[0], Port: port}, nil
}

// Context is the shared-ownership handle for the process-wide messaging
// context described in the design notes: it exists so the rule "the
// server's context must not be replaced after brokering begins" has
// somewhere to live, and so in-process workers can opt into the server's
// inproc namespace. ZeroMQ itself keeps one implicit process-global
// context, so Context's job is bookkeeping, not socket ownership.
type Context struct {
	ioThreads int
	sealed    bool
	inprocs   map[string]bool
}

// NewContext constructs a Context advertising ioThreads I/O threads
// (informational; goczmq manages the real thread pool itself).
func NewContext(ioThreads int) *Context {
	if ioThreads <= 0 {
		ioThreads = 1
	}
	return &Context{ioThreads: ioThreads, inprocs: make(map[string]bool)}
}

// Seal marks the context as in use by a running broker; further calls to
// RegisterInproc after sealing still succeed (new inproc workers may join
// at any time) but the context itself must not be swapped out by the
// caller once sealed.
func (c *Context) Seal() { c.sealed = true }

// Sealed reports whether brokering has begun on this context.
func (c *Context) Sealed() bool { return c.sealed }

// RegisterInproc records that name is bound for inproc addressing.
func (c *Context) RegisterInproc(name string) {
	c.inprocs[name] = true
}

// HasInproc reports whether name has been registered on this context.
func (c *Context) HasInproc(name string) bool {
	return c.inprocs[name]
}

// BindResult is the outcome of a successful Bind.
type BindResult struct {
	Socket      *czmq.Sock
	BoundEndpoint string
}

// BindRouter binds a ROUTER socket at endpoint, probing successive TCP
// ports on EADDRINUSE-shaped failures up to maxAttempts times. ipc and
// inproc bind failures are always fatal, per the transport contract.
func BindRouter(endpoint string, maxAttempts int) (*BindResult, error) {
	return bindWithRetry(endpoint, maxAttempts, czmq.NewRouter)
}

// BindPub binds a PUB socket at endpoint with the same retry semantics as
// BindRouter.
func BindPub(endpoint string, maxAttempts int) (*BindResult, error) {
	return bindWithRetry(endpoint, maxAttempts, czmq.NewPub)
}

func bindWithRetry(endpoint string, maxAttempts int, ctor func(string) (*czmq.Sock, error)) (*BindResult, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	if ep.Scheme != "tcp" {
		sock, err := ctor(endpoint)
		if err != nil {
			return nil, rerrors.NewConnectionFailed(endpoint, err)
		}
		return &BindResult{Socket: sock, BoundEndpoint: endpoint}, nil
	}

	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := Endpoint{Scheme: "tcp", Host: ep.Host, Port: ep.Port + attempt}
		addr := candidate.String()
		sock, err := ctor(addr)
		if err == nil {
			if attempt > 0 {
				log.WithFields(log.Fields{
					"configured_port": ep.Port,
					"bound_port":      candidate.Port,
				}).Info("tcp port in use, bound next available port")
			}
			return &BindResult{Socket: sock, BoundEndpoint: addr}, nil
		}
		lastErr = err
		log.WithFields(log.Fields{"endpoint": addr, "err": err}).Debug("bind attempt failed, probing next port")
	}
	return nil, rerrors.NewConnectionFailed(endpoint, lastErr)
}

// ConnectDealer connects a DEALER socket to endpoint.
func ConnectDealer(endpoint string) (*czmq.Sock, error) {
	sock, err := czmq.NewDealer(endpoint)
	if err != nil {
		return nil, rerrors.NewConnectionFailed(endpoint, err)
	}
	return sock, nil
}

// ConnectSub connects a SUB socket to endpoint, subscribing to filter.
func ConnectSub(endpoint, filter string) (*czmq.Sock, error) {
	sock, err := czmq.NewSub(endpoint, filter)
	if err != nil {
		return nil, rerrors.NewConnectionFailed(endpoint, err)
	}
	return sock, nil
}

// PollResult distinguishes why Poll returned.
type PollResult int

// Poll outcomes.
const (
	PollReady PollResult = iota
	PollTimeout
	PollInterrupted
)

// Poll waits up to timeout for any of sockets to become readable. A
// negative timeout blocks indefinitely.
func Poll(poller *czmq.Poller, timeout time.Duration) (*czmq.Sock, PollResult, error) {
	millis := -1
	if timeout >= 0 {
		millis = int(timeout / time.Millisecond)
	}
	sock, err := poller.Wait(millis)
	if err != nil {
		return nil, PollInterrupted, err
	}
	if sock == nil {
		return nil, PollTimeout, nil
	}
	return sock, PollReady, nil
}

// Send writes a multipart frame sequence to sock.
func Send(sock *czmq.Sock, frames [][]byte) error {
	return sock.SendMessage(frames)
}

// Recv reads a multipart frame sequence from sock.
func Recv(sock *czmq.Sock) ([][]byte, error) {
	return sock.RecvMessage()
}
