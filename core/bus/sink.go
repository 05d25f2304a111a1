package bus

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// SinkCallback receives the payload of every message a Sink matches.
type SinkCallback interface {
	Handle(data []byte) error
}

// SinkHandler wraps a SinkCallback so a Sink can be configured with one
// value rather than a bare function, matching the broker's pattern of
// passing a struct around for dependency injection.
type SinkHandler struct {
	Callback SinkCallback
}

// Sink subscribes to a bus's backend and dispatches matching messages to a
// SinkHandler, the consumer side of the status-publish fanout.
type Sink struct {
	endpoint string
	filter   string

	running bool
	handler *SinkHandler
}

// NewSink constructs a Sink bound to endpoint, subscribing to messages
// whose envelope matches filter ("" subscribes to everything).
func NewSink(endpoint, filter string) *Sink {
	return &Sink{
		endpoint: endpoint,
		filter:   filter,
	}
}

func (s *Sink) defaultFields(err error) log.Fields {
	fields := log.Fields{
		"endpoint": s.endpoint,
		"filter":   s.filter,
	}
	if err != nil {
		fields["err"] = err
	}
	return fields
}

// SetHandler installs the handler invoked for each received message.
func (s *Sink) SetHandler(handler *SinkHandler) {
	s.handler = handler
}

// Running reports whether the sink's Run loop is currently active.
func (s *Sink) Running() bool {
	return s.running
}

// Stop requests that a running Run loop exit at its next poll.
func (s *Sink) Stop() {
	s.running = false
}

// Run connects a SUB socket to the sink's endpoint and dispatches every
// matching message to the configured handler until ctx is cancelled or Stop
// is called, then calls wg.Done.
func (s *Sink) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	sub, err := czmq.NewSub(s.endpoint, s.filter)
	if err != nil {
		log.WithFields(s.defaultFields(err)).Error("failed to connect sink socket")
		return
	}
	defer sub.Destroy()

	poller, err := czmq.NewPoller(sub)
	if err != nil {
		log.WithFields(s.defaultFields(err)).Error("failed to create sink poller")
		return
	}
	defer poller.Destroy()

	s.running = true
	defer func() { s.running = false }()

	log.WithFields(s.defaultFields(nil)).Debug("sink started")

	for {
		select {
		case <-ctx.Done():
			log.WithFields(s.defaultFields(nil)).Debug("sink stopping on context cancellation")
			return
		default:
		}

		if !s.running {
			return
		}

		sock, err := poller.Wait(100)
		if err != nil || sock == nil {
			continue
		}

		msg, err := sub.RecvMessage()
		if err != nil {
			log.WithFields(s.defaultFields(err)).Warn("sink recv failed")
			continue
		}
		if len(msg) == 0 {
			continue
		}

		payload := msg[len(msg)-1]
		if s.handler == nil || s.handler.Callback == nil {
			continue
		}
		if err := s.handler.Callback.Handle(payload); err != nil {
			log.WithFields(s.defaultFields(err)).Warn("sink handler returned error")
		}
	}
}
