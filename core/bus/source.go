package bus

import (
	"bytes"
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// shutdownCommand is queued internally to make Source.Run exit its loop
// without closing the message queue out from under a concurrent sender.
var shutdownCommand = []byte{0x0D, 0x0E, 0x0A, 0x0D}

// Source publishes messages onto the bus under a fixed envelope, the
// pattern the broker's status-publish socket uses to fan out
// (job_id, new_status) notifications.
type Source struct {
	endpoint string
	envelope string

	running bool
	queue   chan []byte

	closeOnce sync.Once
}

// NewSource constructs a Source bound to endpoint, publishing every message
// under envelope.
func NewSource(endpoint, envelope string) *Source {
	return &Source{
		endpoint: endpoint,
		envelope: envelope,
		queue:    make(chan []byte, 64),
	}
}

func (s *Source) defaultFields(err error) log.Fields {
	fields := log.Fields{
		"endpoint": s.endpoint,
		"envelope": s.envelope,
	}
	if err != nil {
		fields["err"] = err
	}
	return fields
}

// Running reports whether the source's Run loop is currently active.
func (s *Source) Running() bool {
	return s.running
}

// Stop marks the source as no longer running and closes its message queue.
// Any subsequent call to QueueMessage will panic, matching the "send on
// closed channel" behavior of a torn-down publisher.
func (s *Source) Stop() {
	s.running = false
	s.closeOnce.Do(func() {
		close(s.queue)
	})
}

// QueueMessage enqueues message for publication. It panics if the source
// has been stopped.
func (s *Source) QueueMessage(message []byte) {
	s.queue <- message
}

// Shutdown requests a graceful stop of a running Run loop. It is a no-op if
// the source is not currently running.
func (s *Source) Shutdown() {
	if !s.running {
		return
	}
	s.queue <- shutdownCommand
}

// Run binds a PUB socket at the source's endpoint and publishes queued
// messages under its envelope until ctx is cancelled or Shutdown is called,
// then calls wg.Done.
func (s *Source) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	pub, err := czmq.NewPub(s.endpoint)
	if err != nil {
		log.WithFields(s.defaultFields(err)).Error("failed to bind source socket")
		return
	}
	defer pub.Destroy()

	s.running = true
	defer func() { s.running = false }()

	log.WithFields(s.defaultFields(nil)).Debug("source started")

	for {
		select {
		case <-ctx.Done():
			log.WithFields(s.defaultFields(nil)).Debug("source stopping on context cancellation")
			return
		case msg, ok := <-s.queue:
			if !ok {
				return
			}
			if bytes.Equal(msg, shutdownCommand) {
				log.WithFields(s.defaultFields(nil)).Debug("source stopping on shutdown command")
				return
			}
			if err := pub.SendMessage([][]byte{[]byte(s.envelope), msg}); err != nil {
				log.WithFields(s.defaultFields(err)).Warn("source publish failed")
			}
		}
	}
}
