// Package bus implements the status-publish fanout used to broadcast
// (job_id, new_status) pairs from the broker to any number of observers,
// built on a ZeroMQ XSUB/XPUB proxy the way a logging or metrics bus would
// bridge publishers to subscribers in a larger mesh.
package bus

import (
	"context"
	"sync"

	czmq "github.com/zeromq/goczmq/v4"

	log "github.com/sirupsen/logrus"
)

// Config describes the three sockets a Bus binds: the frontend (publishers
// connect here), the backend (subscribers connect here) and an optional
// capture socket for debugging traffic passing through the proxy.
type Config struct {
	Name     string
	Unit     string
	Backend  string
	Frontend string
	Capture  string
}

// Bus proxies messages from publishers on its frontend socket to
// subscribers on its backend socket using an XSUB/XPUB pair.
type Bus struct {
	name     string
	unit     string
	backend  string
	frontend string
	capture  string
}

// NewBus constructs a Bus from cfg. It does not bind any sockets until
// Start or Run is called.
func NewBus(cfg Config) *Bus {
	return &Bus{
		name:     cfg.Name,
		unit:     cfg.Unit,
		backend:  cfg.Backend,
		frontend: cfg.Frontend,
		capture:  cfg.Capture,
	}
}

func (b *Bus) fields() log.Fields {
	return log.Fields{
		"bus":      b.name,
		"unit":     b.unit,
		"frontend": b.frontend,
		"backend":  b.backend,
	}
}

// Start binds the proxy's sockets and pumps messages until ctx is
// cancelled, then tears the sockets down and calls wg.Done.
func (b *Bus) Start(ctx context.Context, wg *sync.WaitGroup) error {
	defer wg.Done()

	log.WithFields(b.fields()).Debug("starting bus")

	frontend, err := czmq.NewXSub(b.frontend)
	if err != nil {
		log.WithFields(b.fields()).WithError(err).Error("failed to bind bus frontend")
		return err
	}
	defer frontend.Destroy()

	backend, err := czmq.NewXPub(b.backend)
	if err != nil {
		log.WithFields(b.fields()).WithError(err).Error("failed to bind bus backend")
		return err
	}
	defer backend.Destroy()

	var capture *czmq.Sock
	if b.capture != "" {
		capture, err = czmq.NewPub(b.capture)
		if err != nil {
			log.WithFields(b.fields()).WithError(err).Warn("failed to bind bus capture socket, continuing without it")
		} else {
			defer capture.Destroy()
		}
	}

	poller, err := czmq.NewPoller(frontend, backend)
	if err != nil {
		log.WithFields(b.fields()).WithError(err).Error("failed to create bus poller")
		return err
	}
	defer poller.Destroy()

	for {
		select {
		case <-ctx.Done():
			log.WithFields(b.fields()).Debug("bus stopping on context cancellation")
			return nil
		default:
		}

		sock, err := poller.Wait(100)
		if err != nil || sock == nil {
			continue
		}

		// Subscriptions travel from the backend up to the frontend.
		if sock == backend {
			sub, err := backend.RecvMessage()
			if err == nil {
				err = frontend.SendMessage(sub)
			}
			if err != nil {
				log.WithFields(b.fields()).WithError(err).Warn("bus subscription forward failed")
			}
			continue
		}

		msg, err := frontend.RecvMessage()
		if err != nil {
			log.WithFields(b.fields()).WithError(err).Warn("bus frontend recv failed")
			continue
		}
		if err := backend.SendMessage(msg); err != nil {
			log.WithFields(b.fields()).WithError(err).Warn("bus backend send failed")
		}
		if capture != nil {
			_ = capture.SendMessage(msg)
		}
	}
}

// Run is the pre-context-aware lifecycle entry point, kept for callers that
// still drive the bus with a plain done channel.
//
// Deprecated: use Start with a context.Context instead.
func (b *Bus) Run(done chan bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		_ = b.Start(ctx, &wg)
	}()

	<-done
	cancel()
	wg.Wait()
}
