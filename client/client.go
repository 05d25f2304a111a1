// Package client is the Remus client library: it submits jobs, polls
// status, retrieves results and requests termination against a broker's
// client endpoint.
package client

import (
	"time"

	rerrors "github.com/geoffjay/remus/core/errors"
	"github.com/geoffjay/remus/core/remus"
	"github.com/geoffjay/remus/core/transport"
	"github.com/geoffjay/remus/core/wire"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

// DefaultTimeout is how long a Client waits for a broker reply before
// giving up on the request with a timeout error. The client does not
// reconnect or resend.
const DefaultTimeout = 2500 * time.Millisecond

// Client talks to a broker's client endpoint over a DEALER socket, wrapping
// each operation in a send-then-poll-then-recv round trip.
type Client struct {
	endpoint string
	sock     *czmq.Sock
	poller   *czmq.Poller
	timeout  time.Duration
}

// New connects a Client to the broker at endpoint.
func New(endpoint string) (*Client, error) {
	sock, err := transport.ConnectDealer(endpoint)
	if err != nil {
		return nil, err
	}
	poller, err := czmq.NewPoller(sock)
	if err != nil {
		sock.Destroy()
		return nil, err
	}
	return &Client{endpoint: endpoint, sock: sock, poller: poller, timeout: DefaultTimeout}, nil
}

// SetTimeout overrides the reply timeout used by every request.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Close releases the client's socket.
func (c *Client) Close() error {
	c.poller.Destroy()
	c.sock.Destroy()
	return nil
}

func (c *Client) roundTrip(tag byte, payload ...[]byte) (*wire.Message, error) {
	if err := transport.Send(c.sock, wire.Encode(tag, payload...)); err != nil {
		return nil, rerrors.New(rerrors.CodeConnectionFailed, "send failed", err)
	}

	sock, result, err := transport.Poll(c.poller, c.timeout)
	if err != nil {
		return nil, rerrors.New(rerrors.CodeConnectionFailed, "poll failed", err)
	}
	if result != transport.PollReady || sock == nil {
		return nil, rerrors.New(rerrors.CodeTimeout, "broker did not reply in time", rerrors.ErrTimeout)
	}

	frames, err := transport.Recv(c.sock)
	if err != nil {
		return nil, rerrors.New(rerrors.CodeConnectionFailed, "recv failed", err)
	}
	msg, err := wire.Decode(frames)
	if err != nil {
		return nil, err
	}
	if msg.Tag != tag {
		log.WithFields(log.Fields{"expected": tag, "got": msg.Tag}).Warn("unexpected reply tag")
	}
	return msg, nil
}

// CanMeshType reports whether any worker (current or factory-supportable)
// can handle the given mesh I/O type.
func (c *Client) CanMeshType(io remus.MeshIOType) (bool, error) {
	msg, err := c.roundTrip(wire.TagCanMeshType, wire.EncodeMeshIOType(io))
	if err != nil {
		return false, err
	}
	if len(msg.Payload) < 1 {
		return false, rerrors.NewInvalidMessage("missing CanMeshType payload", nil)
	}
	return wire.DecodeBool(msg.Payload[0])
}

// CanMeshRequirements reports whether any worker can satisfy reqs exactly.
func (c *Client) CanMeshRequirements(reqs remus.JobRequirements) (bool, error) {
	msg, err := c.roundTrip(wire.TagCanMeshReqs, wire.EncodeJobRequirements(reqs))
	if err != nil {
		return false, err
	}
	if len(msg.Payload) < 1 {
		return false, rerrors.NewInvalidMessage("missing CanMeshReqs payload", nil)
	}
	return wire.DecodeBool(msg.Payload[0])
}

// RetrieveRequirements lists the JobRequirements variants available for a
// mesh I/O type.
func (c *Client) RetrieveRequirements(io remus.MeshIOType) ([]remus.JobRequirements, error) {
	msg, err := c.roundTrip(wire.TagRetrieveReqs, wire.EncodeMeshIOType(io))
	if err != nil {
		return nil, err
	}
	if len(msg.Payload) < 1 {
		return nil, rerrors.NewInvalidMessage("missing RetrieveReqs payload", nil)
	}
	return wire.DecodeRequirementsSet(msg.Payload[0])
}

// SubmitJob submits a job, returning its newly minted ID.
func (c *Client) SubmitJob(submission *remus.JobSubmission) (remus.JobID, error) {
	msg, err := c.roundTrip(wire.TagSubmitJob, wire.EncodeJobSubmission(submission))
	if err != nil {
		return remus.JobID{}, err
	}
	if len(msg.Payload) < 1 {
		return remus.JobID{}, rerrors.NewInvalidMessage("missing SubmitJob payload", nil)
	}
	return wire.DecodeJobID(msg.Payload[0])
}

// JobStatus queries a job's current status, progress and message.
func (c *Client) JobStatus(jobID remus.JobID) (wire.JobStatusPayload, error) {
	msg, err := c.roundTrip(wire.TagQueryStatus, wire.EncodeJobID(jobID))
	if err != nil {
		return wire.JobStatusPayload{}, err
	}
	if len(msg.Payload) < 1 {
		return wire.JobStatusPayload{}, rerrors.NewInvalidMessage("missing QueryStatus payload", nil)
	}
	return wire.DecodeJobStatus(msg.Payload[0])
}

// RetrieveResults fetches a finished job's result bytes. An empty slice
// with a nil error means the broker has no result for this job.
func (c *Client) RetrieveResults(jobID remus.JobID) ([]byte, error) {
	msg, err := c.roundTrip(wire.TagRetrieve, wire.EncodeJobID(jobID))
	if err != nil {
		return nil, err
	}
	if len(msg.Payload) < 1 {
		return nil, rerrors.NewInvalidMessage("missing Retrieve payload", nil)
	}
	return wire.DecodeResult(msg.Payload[0])
}

// TerminateJob requests cancellation of a job.
func (c *Client) TerminateJob(jobID remus.JobID) (bool, error) {
	msg, err := c.roundTrip(wire.TagTerminateJob, wire.EncodeJobID(jobID))
	if err != nil {
		return false, err
	}
	if len(msg.Payload) < 1 {
		return false, rerrors.NewInvalidMessage("missing TerminateJob payload", nil)
	}
	return wire.DecodeBool(msg.Payload[0])
}
