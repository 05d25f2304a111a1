package transport

import (
	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// Monitor wraps a czmq socket monitor, translating libzmq connect/
// disconnect events on a bound socket into structured log entries. The
// broker attaches it to its client/worker sockets when its log level is
// "debug".
type Monitor struct {
	monitor *czmq.Monitor
	name    string
	done    chan struct{}
}

// NewMonitor attaches a monitor to socket and starts draining its events on
// a background goroutine, tagging every log line with name (typically
// "client" or "worker").
func NewMonitor(socket *czmq.Sock, name string) (*Monitor, error) {
	mon := czmq.NewMonitor(socket)
	if err := mon.Verbose(); err != nil {
		mon.Destroy()
		return nil, err
	}

	m := &Monitor{monitor: mon, name: name, done: make(chan struct{})}
	go m.run()
	return m, nil
}

func (m *Monitor) run() {
	poller, err := czmq.NewPoller()
	if err != nil {
		log.WithField("socket", m.name).WithError(err).Warn("monitor poller creation failed")
		return
	}
	defer poller.Destroy()

	if err := poller.Add(m.monitor.Socket()); err != nil {
		log.WithField("socket", m.name).WithError(err).Warn("monitor poller add failed")
		return
	}

	for {
		select {
		case <-m.done:
			return
		default:
		}

		sock, err := poller.Wait(250)
		if err != nil || sock == nil {
			continue
		}

		event, err := m.monitor.Recv()
		if err != nil {
			continue
		}
		log.WithFields(log.Fields{
			"socket":  m.name,
			"event":   event.Event,
			"address": event.Address,
		}).Debug("socket monitor event")
	}
}

// Destroy stops the monitor's background goroutine and releases its
// socket.
func (m *Monitor) Destroy() {
	close(m.done)
	m.monitor.Destroy()
}
