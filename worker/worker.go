// Package worker is the Remus worker library: it registers capabilities
// with a broker, adaptively polls for work, and reports progress, results
// and failures back over a DEALER socket and poller loop.
package worker

import (
	"context"
	"time"

	rerrors "github.com/geoffjay/remus/core/errors"
	"github.com/geoffjay/remus/core/remus"
	"github.com/geoffjay/remus/core/transport"
	"github.com/geoffjay/remus/core/wire"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// DefaultRoundTripTimeout is how often Run sends a heartbeat while it is
// receiving empty AskForJob replies. AskForJob itself waits for the timeout
// it is given, and a reply that does not arrive in time is treated as "no
// job", not as a lost connection.
const DefaultRoundTripTimeout = 2500 * time.Millisecond

// Handler processes one dispatched job and returns its final result bytes,
// or an error if the job could not be completed. Worker invokes it
// synchronously from the poll loop, so a Handler wanting to report
// intermediate progress via w.ProgressUpdate may do so freely before
// returning.
type Handler func(ctx context.Context, w *Worker, jobID remus.JobID, job *remus.JobSubmission) ([]byte, error)

// Worker connects to a broker's worker endpoint and drives the
// register/ask/report cycle for a single advertised requirements set.
type Worker struct {
	endpoint string
	sock     *czmq.Sock
	poller   *czmq.Poller
	rates    PollingRates
	timeout  time.Duration
}

// New connects a Worker to the broker at endpoint.
func New(endpoint string, rates PollingRates) (*Worker, error) {
	sock, err := transport.ConnectDealer(endpoint)
	if err != nil {
		return nil, err
	}
	poller, err := czmq.NewPoller(sock)
	if err != nil {
		sock.Destroy()
		return nil, err
	}
	return &Worker{
		endpoint: endpoint,
		sock:     sock,
		poller:   poller,
		rates:    rates,
		timeout:  DefaultRoundTripTimeout,
	}, nil
}

// Close releases the worker's socket.
func (w *Worker) Close() error {
	w.poller.Destroy()
	w.sock.Destroy()
	return nil
}

func (w *Worker) send(tag byte, payload ...[]byte) error {
	if err := transport.Send(w.sock, wire.Encode(tag, payload...)); err != nil {
		return rerrors.New(rerrors.CodeConnectionFailed, "send to broker failed", err)
	}
	return nil
}

func (w *Worker) recv(timeout time.Duration) (*wire.Message, error) {
	sock, result, err := transport.Poll(w.poller, timeout)
	if err != nil {
		return nil, rerrors.New(rerrors.CodeConnectionFailed, "poll failed", err)
	}
	if result != transport.PollReady || sock == nil {
		return nil, nil
	}
	frames, err := transport.Recv(w.sock)
	if err != nil {
		return nil, rerrors.New(rerrors.CodeConnectionFailed, "recv failed", err)
	}
	return wire.Decode(frames)
}

// Register advertises reqs to the broker. It does not wait for an
// acknowledgement: registration is fire-and-forget, matching the protocol
// table's one-way WorkerRegister entry.
func (w *Worker) Register(reqs remus.JobRequirements) error {
	return w.send(wire.TagWorkerRegister, wire.EncodeJobRequirements(reqs))
}

// AskForJob polls the broker for work matching reqs, blocking up to timeout
// for a reply. It returns a zero JobID and a nil submission when the broker
// has no job for this worker right now.
func (w *Worker) AskForJob(reqs remus.JobRequirements, timeout time.Duration) (remus.JobID, *remus.JobSubmission, error) {
	if err := w.send(wire.TagAskForJob, wire.EncodeJobRequirements(reqs)); err != nil {
		return remus.JobID{}, nil, err
	}
	msg, err := w.recv(timeout)
	if err != nil {
		return remus.JobID{}, nil, err
	}
	if msg == nil || len(msg.Payload) < 2 {
		return remus.JobID{}, nil, nil
	}
	jobID, err := wire.DecodeJobID(msg.Payload[0])
	if err != nil {
		return remus.JobID{}, nil, err
	}
	submission, err := wire.DecodeJobSubmission(msg.Payload[1])
	if err != nil {
		return remus.JobID{}, nil, err
	}
	return jobID, submission, nil
}

// ProgressUpdate reports status and percent/message progress for jobID. An
// update whose status is remus.Finished is ignored by the broker; only
// Result finishes a job.
func (w *Worker) ProgressUpdate(jobID remus.JobID, status remus.Status, percent int, message string) error {
	payload := wire.EncodeJobStatus(wire.JobStatusPayload{Status: status, Percent: percent, Message: message})
	return w.send(wire.TagProgress, wire.EncodeJobID(jobID), payload)
}

// Result reports a finished job's output bytes.
func (w *Worker) Result(jobID remus.JobID, data []byte) error {
	return w.send(wire.TagResult, wire.EncodeJobID(jobID), wire.EncodeResult(data))
}

// Failure reports that jobID could not be completed.
func (w *Worker) Failure(jobID remus.JobID) error {
	return w.send(wire.TagFailure, wire.EncodeJobID(jobID))
}

// Heartbeat sends a liveness frame carrying no payload.
func (w *Worker) Heartbeat() error {
	return w.send(wire.TagHeartbeat)
}

// Run drives the adaptive poll loop: Register once, then repeatedly
// AskForJob, backing off from rates.Min toward rates.Max on empty replies
// and snapping back to Min the moment a job is dispatched. It blocks until
// ctx is cancelled.
func (w *Worker) Run(ctx context.Context, reqs remus.JobRequirements, handle Handler) error {
	if err := w.Register(reqs); err != nil {
		return err
	}

	interval := w.rates.Min
	heartbeatEvery := DefaultRoundTripTimeout
	lastHeartbeat := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		jobID, job, err := w.AskForJob(reqs, interval)
		if err != nil {
			log.WithError(err).Warn("ask for job failed")
			time.Sleep(interval)
			interval = w.rates.next(interval, false)
			continue
		}

		if job == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
			interval = w.rates.next(interval, false)
			if time.Since(lastHeartbeat) >= heartbeatEvery {
				if err := w.Heartbeat(); err != nil {
					log.WithError(err).Warn("heartbeat failed")
				}
				lastHeartbeat = time.Now()
			}
			continue
		}

		interval = w.rates.next(interval, true)

		result, err := handle(ctx, w, jobID, job)
		if err != nil {
			if ferr := w.Failure(jobID); ferr != nil {
				log.WithError(ferr).Warn("failed to report job failure")
			}
			continue
		}
		if err := w.Result(jobID, result); err != nil {
			log.WithError(err).Warn("failed to report job result")
		}
	}
}
