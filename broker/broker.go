package broker

import (
	"context"
	"sync"
	"time"

	"github.com/geoffjay/remus/core/bus"
	"github.com/geoffjay/remus/core/config"
	rerrors "github.com/geoffjay/remus/core/errors"
	"github.com/geoffjay/remus/core/factory"
	"github.com/geoffjay/remus/core/jobstore"
	"github.com/geoffjay/remus/core/registry"
	"github.com/geoffjay/remus/core/remus"
	"github.com/geoffjay/remus/core/transport"
	"github.com/geoffjay/remus/core/wire"

	log "github.com/sirupsen/logrus"
	czmq "github.com/zeromq/goczmq/v4"
)

const maxLoopTick = 250 * time.Millisecond

// Broker drives the single cooperative event loop described in the
// component design: it multiplexes the client and worker sockets, consumes
// decoded messages, advances the job state machine, consults a pluggable
// WorkerFactory and publishes status deltas.
type Broker struct {
	cfg     *config.BrokerConfig
	factory factory.WorkerFactory

	clientSock *czmq.Sock
	workerSock *czmq.Sock
	poller     *czmq.Poller

	clientMonitor *transport.Monitor
	workerMonitor *transport.Monitor

	status *bus.Source

	clientEndpoint string
	workerEndpoint string
	statusEndpoint string

	registry *registry.Registry
	store    *jobstore.Store

	shutdown chan struct{}
}

// New constructs a Broker from cfg, consulting wf for admission control.
func New(cfg *config.BrokerConfig, wf factory.WorkerFactory) *Broker {
	if wf == nil {
		wf = factory.NewNullFactory()
	}
	return &Broker{
		cfg:      cfg,
		factory:  wf,
		registry: registry.New(),
		store:    jobstore.New(),
		shutdown: make(chan struct{}),
	}
}

// Bind binds the client, worker and status-publish sockets, applying TCP
// port-probe fallback to the client and worker endpoints, and records the
// endpoints actually bound.
func (b *Broker) Bind() error {
	clientBind, err := transport.BindRouter(b.cfg.ClientEndpoint, b.cfg.BindRetries)
	if err != nil {
		SetLastError(err)
		return err
	}
	b.clientSock = clientBind.Socket
	b.clientEndpoint = clientBind.BoundEndpoint

	workerBind, err := transport.BindRouter(b.cfg.WorkerEndpoint, b.cfg.BindRetries)
	if err != nil {
		SetLastError(err)
		return err
	}
	b.workerSock = workerBind.Socket
	b.workerEndpoint = workerBind.BoundEndpoint

	poller, err := czmq.NewPoller(b.clientSock, b.workerSock)
	if err != nil {
		SetLastError(err)
		return err
	}
	b.poller = poller

	if b.cfg.Log.Level == "debug" {
		if mon, err := transport.NewMonitor(b.clientSock, "client"); err == nil {
			b.clientMonitor = mon
		} else {
			log.WithError(err).Warn("client socket monitor unavailable")
		}
		if mon, err := transport.NewMonitor(b.workerSock, "worker"); err == nil {
			b.workerMonitor = mon
		} else {
			log.WithError(err).Warn("worker socket monitor unavailable")
		}
	}

	b.statusEndpoint = b.cfg.StatusEndpoint
	b.status = bus.NewSource(b.statusEndpoint, "status")

	log.WithFields(log.Fields{
		"client_endpoint": b.clientEndpoint,
		"worker_endpoint": b.workerEndpoint,
		"status_endpoint": b.statusEndpoint,
	}).Info("broker bound")

	SetStatus("bound")
	return nil
}

// ClientEndpoint returns the actually-bound client endpoint (may differ
// from the configured one after a TCP port-probe fallback).
func (b *Broker) ClientEndpoint() string { return b.clientEndpoint }

// WorkerEndpoint returns the actually-bound worker endpoint.
func (b *Broker) WorkerEndpoint() string { return b.workerEndpoint }

// StatusEndpoint returns the bound status-publish endpoint.
func (b *Broker) StatusEndpoint() string { return b.statusEndpoint }

// Run drives the broker loop until stop is closed or a fatal transport
// error occurs. It publishes status deltas via the status bus, which it
// starts and stops internally.
func (b *Broker) Run(stop <-chan struct{}) error {
	statusCtx, cancelStatus := context.WithCancel(context.Background())
	var statusWg sync.WaitGroup
	statusWg.Add(1)
	go b.status.Run(statusCtx, &statusWg)

	SetStatus("running")
	lastMaintenance := time.Now()
	defer func() {
		cancelStatus()
		statusWg.Wait()
		if b.clientMonitor != nil {
			b.clientMonitor.Destroy()
		}
		if b.workerMonitor != nil {
			b.workerMonitor.Destroy()
		}
		b.clientSock.Destroy()
		b.workerSock.Destroy()
		b.poller.Destroy()
		SetStatus("stopped")
	}()

	for {
		select {
		case <-stop:
			log.Info("broker shutting down on stop signal")
			return nil
		default:
		}

		tick := maxLoopTick
		if since := time.Since(lastMaintenance); since < maxLoopTick {
			tick = maxLoopTick - since
		}

		sock, result, err := transport.Poll(b.poller, tick)
		if err != nil {
			SetLastError(err)
			log.WithError(err).Error("broker poll failed")
			return err
		}

		switch result {
		case transport.PollReady:
			switch sock {
			case b.clientSock:
				b.drainClient()
			case b.workerSock:
				b.drainWorker()
			}
		case transport.PollTimeout:
			// fall through to maintenance below
		case transport.PollInterrupted:
			continue
		}

		if time.Since(lastMaintenance) >= maxLoopTick {
			b.runMaintenance()
			b.dispatchPass()
			lastMaintenance = time.Now()
		}
	}
}

func (b *Broker) drainClient() {
	for {
		frames, err := transport.Recv(b.clientSock)
		if err != nil {
			return
		}
		if len(frames) < 2 {
			return
		}
		routingPrefix, body := frames[0], frames[1:]
		b.handleClientFrames(string(routingPrefix), body)
		if !hasMore(b.clientSock) {
			return
		}
	}
}

func (b *Broker) drainWorker() {
	for {
		frames, err := transport.Recv(b.workerSock)
		if err != nil {
			return
		}
		if len(frames) < 2 {
			return
		}
		routingPrefix, body := frames[0], frames[1:]
		b.handleWorkerFrames(string(routingPrefix), body)
		if !hasMore(b.workerSock) {
			return
		}
	}
}

// hasMore always returns false: goczmq's RecvMessage already drains one
// full logical message (ZeroMQ frame boundaries are message boundaries),
// so a single Recv call per drain pass is sufficient; the poller's ready
// set is re-checked on the next loop iteration if more arrived meanwhile.
func hasMore(*czmq.Sock) bool { return false }

func (b *Broker) handleClientFrames(clientID string, frames [][]byte) {
	msg, err := wire.Decode(frames)
	if err != nil {
		log.WithFields(log.Fields{"client": clientID, "err": err}).Debug("dropping malformed client message")
		return
	}

	now := time.Now()
	b.registry.TouchClient(clientID, now, remus.JobID{})

	switch msg.Tag {
	case wire.TagCanMeshType:
		b.handleCanMeshType(clientID, msg)
	case wire.TagCanMeshReqs:
		b.handleCanMeshReqs(clientID, msg)
	case wire.TagRetrieveReqs:
		b.handleRetrieveReqs(clientID, msg)
	case wire.TagSubmitJob:
		b.handleSubmitJob(clientID, msg)
	case wire.TagQueryStatus:
		b.handleQueryStatus(clientID, msg)
	case wire.TagRetrieve:
		b.handleRetrieve(clientID, msg)
	case wire.TagTerminateJob:
		b.handleTerminateJob(clientID, msg)
	default:
		log.WithFields(log.Fields{"client": clientID, "tag": msg.Tag}).Debug("unexpected tag on client socket")
	}
}

func (b *Broker) reply(sock *czmq.Sock, peerID string, tag byte, payload ...[]byte) {
	frames := append([][]byte{[]byte(peerID)}, wire.Encode(tag, payload...)...)
	if err := transport.Send(sock, frames); err != nil {
		log.WithFields(log.Fields{"peer": peerID, "err": err}).Warn("send failed, treating peer as gone")
	}
}

func (b *Broker) handleCanMeshType(clientID string, msg *wire.Message) {
	if len(msg.Payload) < 1 {
		return
	}
	io, err := wire.DecodeMeshIOType(msg.Payload[0])
	if err != nil {
		return
	}
	supported := b.ioTypeSupported(io)
	b.reply(b.clientSock, clientID, wire.TagCanMeshType, wire.EncodeBool(supported))
}

func (b *Broker) ioTypeSupported(io remus.MeshIOType) bool {
	for _, w := range b.registry.Workers() {
		for _, req := range w.Requirements {
			if req.IOType == io {
				return true
			}
		}
	}
	for _, t := range b.factory.SupportedIOTypes() {
		if t == io {
			return true
		}
	}
	return false
}

func (b *Broker) handleCanMeshReqs(clientID string, msg *wire.Message) {
	if len(msg.Payload) < 1 {
		return
	}
	reqs, err := wire.DecodeJobRequirements(msg.Payload[0])
	if err != nil {
		return
	}
	supported := b.reqsSupported(reqs)
	b.reply(b.clientSock, clientID, wire.TagCanMeshReqs, wire.EncodeBool(supported))
}

func (b *Broker) reqsSupported(reqs remus.JobRequirements) bool {
	for _, w := range b.registry.Workers() {
		for _, advertised := range w.Requirements {
			if reqs.Matches(advertised) {
				return true
			}
		}
	}
	return b.factory.HaveSupport(reqs)
}

func (b *Broker) handleRetrieveReqs(clientID string, msg *wire.Message) {
	if len(msg.Payload) < 1 {
		return
	}
	io, err := wire.DecodeMeshIOType(msg.Payload[0])
	if err != nil {
		return
	}

	var out []remus.JobRequirements
	contains := func(req remus.JobRequirements) bool {
		for _, existing := range out {
			if existing.IOType == req.IOType && existing.WorkerName == req.WorkerName && string(existing.Requirements) == string(req.Requirements) {
				return true
			}
		}
		return false
	}
	for _, w := range b.registry.Workers() {
		for _, req := range w.Requirements {
			if req.IOType == io && !contains(req) {
				out = append(out, req)
			}
		}
	}
	for _, req := range b.factory.WorkerRequirements(io) {
		if !contains(req) {
			out = append(out, req)
		}
	}

	b.reply(b.clientSock, clientID, wire.TagRetrieveReqs, wire.EncodeRequirementsSet(out))
}

func (b *Broker) handleSubmitJob(clientID string, msg *wire.Message) {
	if len(msg.Payload) < 1 {
		return
	}
	submission, err := wire.DecodeJobSubmission(msg.Payload[0])
	if err != nil {
		log.WithFields(log.Fields{"client": clientID, "err": err}).Debug("dropping malformed submission")
		return
	}

	job := &remus.Job{
		ID:           remus.NewJobID(),
		Submitter:    clientID,
		Requirements: submission.Requirements,
		Submission:   submission,
	}
	b.store.Enqueue(job)
	b.registry.TouchClient(clientID, time.Now(), job.ID)
	b.publishStatus(job.ID, remus.Queued)

	b.reply(b.clientSock, clientID, wire.TagSubmitJob, wire.EncodeJobID(job.ID))
}

func (b *Broker) handleQueryStatus(clientID string, msg *wire.Message) {
	if len(msg.Payload) < 1 {
		return
	}
	jobID, err := wire.DecodeJobID(msg.Payload[0])
	if err != nil {
		return
	}
	job, ok := b.store.Get(jobID)
	status := wire.JobStatusPayload{Status: remus.InvalidStatus}
	if ok {
		status = wire.JobStatusPayload{
			Status:  job.Status,
			Percent: job.Progress.Percent,
			Message: job.Progress.Message,
		}
	}
	b.reply(b.clientSock, clientID, wire.TagQueryStatus, wire.EncodeJobStatus(status))
}

func (b *Broker) handleRetrieve(clientID string, msg *wire.Message) {
	if len(msg.Payload) < 1 {
		return
	}
	jobID, err := wire.DecodeJobID(msg.Payload[0])
	if err != nil {
		return
	}
	job, ok := b.store.Get(jobID)
	if !ok || job.Status != remus.Finished || job.Result == nil {
		b.reply(b.clientSock, clientID, wire.TagRetrieve, wire.EncodeResult(nil))
		return
	}
	data := job.Result.Data
	// The first successful retrieval removes the job from the store at once,
	// so a repeat retrieval or status query sees INVALID_STATUS.
	b.store.Drop(jobID)
	b.reply(b.clientSock, clientID, wire.TagRetrieve, wire.EncodeResult(data))
}

func (b *Broker) handleTerminateJob(clientID string, msg *wire.Message) {
	if len(msg.Payload) < 1 {
		return
	}
	jobID, err := wire.DecodeJobID(msg.Payload[0])
	if err != nil {
		return
	}

	job, ok := b.store.Get(jobID)
	if !ok {
		b.reply(b.clientSock, clientID, wire.TagTerminateJob, wire.EncodeBool(false))
		return
	}

	switch job.Status {
	case remus.Queued:
		_ = b.store.UpdateStatus(jobID, remus.Failed)
		b.publishStatus(jobID, remus.Failed)
	case remus.InProgress:
		if job.AssignedWorker != "" {
			b.reply(b.workerSock, job.AssignedWorker, wire.TagTerminate, wire.EncodeJobID(jobID))
		}
		// Final state is determined by the worker's subsequent message or
		// a reap-driven failure; we do not transition it here.
	}

	b.reply(b.clientSock, clientID, wire.TagTerminateJob, wire.EncodeBool(true))
}

func (b *Broker) handleWorkerFrames(workerID string, frames [][]byte) {
	msg, err := wire.Decode(frames)
	if err != nil {
		log.WithFields(log.Fields{"worker": workerID, "err": err}).Debug("dropping malformed worker message")
		return
	}

	now := time.Now()
	b.registry.TouchWorker(workerID, now)

	switch msg.Tag {
	case wire.TagWorkerRegister:
		b.handleWorkerRegister(workerID, msg, now)
	case wire.TagAskForJob:
		b.handleAskForJob(workerID, msg)
	case wire.TagProgress:
		b.handleProgress(workerID, msg)
	case wire.TagResult:
		b.handleResult(workerID, msg)
	case wire.TagFailure:
		b.handleFailure(workerID, msg)
	case wire.TagHeartbeat:
		// TouchWorker above already recorded liveness.
	default:
		log.WithFields(log.Fields{"worker": workerID, "tag": msg.Tag}).Debug("unexpected tag on worker socket")
	}
}

func (b *Broker) handleWorkerRegister(workerID string, msg *wire.Message, now time.Time) {
	if len(msg.Payload) < 1 {
		return
	}
	reqs, err := wire.DecodeJobRequirements(msg.Payload[0])
	if err != nil {
		return
	}
	existing, _ := b.registry.Worker(workerID)
	var all []remus.JobRequirements
	if existing != nil {
		all = existing.Requirements
	}
	all = append(all, reqs)
	b.registry.RegisterWorker(workerID, all, now)
	log.WithFields(log.Fields{"worker": workerID, "io_type": reqs.IOType}).Info("worker registered")
}

func (b *Broker) handleAskForJob(workerID string, msg *wire.Message) {
	w, ok := b.registry.Worker(workerID)
	if !ok || !w.HasAssignedJob {
		b.reply(b.workerSock, workerID, wire.TagAskForJob)
		return
	}
	job, ok := b.store.Get(w.AssignedJob)
	if !ok || job.Submission == nil {
		b.reply(b.workerSock, workerID, wire.TagAskForJob)
		return
	}
	b.reply(b.workerSock, workerID, wire.TagAskForJob, wire.EncodeJobID(job.ID), wire.EncodeJobSubmission(job.Submission))
	job.Submission = nil
}

func (b *Broker) handleProgress(workerID string, msg *wire.Message) {
	if len(msg.Payload) < 2 {
		return
	}
	status, err := wire.DecodeJobStatus(msg.Payload[1])
	if err != nil {
		return
	}
	w, ok := b.registry.Worker(workerID)
	if !ok || !w.HasAssignedJob {
		return
	}
	jobID := w.AssignedJob

	// A progress message declaring FINISHED without a result is dropped:
	// only a JobResult finishes a job.
	if status.Status == remus.Finished {
		log.WithFields(log.Fields{"worker": workerID, "job": jobID}).Debug("dropping FINISHED progress without result")
		return
	}

	job, ok := b.store.Get(jobID)
	if !ok {
		return
	}
	wasQueued := job.Status == remus.Queued
	if err := b.store.UpdateProgress(jobID, remus.Progress{Percent: status.Percent, Message: status.Message}); err != nil {
		return
	}
	if wasQueued {
		b.registry.MarkExecuting(workerID)
		b.publishStatus(jobID, remus.InProgress)
	}
}

func (b *Broker) handleResult(workerID string, msg *wire.Message) {
	if len(msg.Payload) < 2 {
		return
	}
	data, err := wire.DecodeResult(msg.Payload[1])
	if err != nil {
		return
	}
	w, ok := b.registry.Worker(workerID)
	if !ok || !w.HasAssignedJob {
		return
	}
	jobID := w.AssignedJob

	if err := b.store.SetResult(jobID, &remus.Result{Data: data}); err != nil {
		if rerrors.IsPermanent(err) {
			log.WithFields(log.Fields{"worker": workerID, "job": jobID, "err": err}).Debug("dropping result for job not assigned to it")
		}
		return
	}
	b.registry.ReleaseWorker(workerID)
	b.publishStatus(jobID, remus.Finished)
}

func (b *Broker) handleFailure(workerID string, msg *wire.Message) {
	if len(msg.Payload) < 1 {
		return
	}
	jobID, err := wire.DecodeJobID(msg.Payload[0])
	if err != nil {
		return
	}
	w, ok := b.registry.Worker(workerID)
	if ok && w.HasAssignedJob && w.AssignedJob == jobID {
		b.registry.ReleaseWorker(workerID)
	}
	_ = b.store.UpdateStatus(jobID, remus.Failed)
	b.publishStatus(jobID, remus.Failed)
}

func (b *Broker) runMaintenance() {
	now := time.Now()
	threshold := time.Duration(b.cfg.HeartbeatLiveness) * b.cfg.HeartbeatInterval

	failedJobs, departedClients := b.registry.ReapDead(now, threshold)
	for _, jobID := range failedJobs {
		log.WithField("job", jobID).Info("failing job assigned to a reaped worker")
		_ = b.store.UpdateStatus(jobID, remus.Failed)
		b.publishStatus(jobID, remus.Failed)
	}

	var departed map[string]bool
	if len(departedClients) > 0 {
		departed = make(map[string]bool, len(departedClients))
		for _, clientID := range departedClients {
			departed[clientID] = true
		}
	}

	cutoff := now.Add(-b.cfg.RetentionWindow)
	expired := b.store.ExpireBefore(cutoff, departed)
	for _, jobID := range expired {
		b.publishStatus(jobID, remus.Expired)
	}
}

func (b *Broker) dispatchPass() {
	for _, jobID := range b.store.QueuedIDs() {
		job, ok := b.store.Get(jobID)
		if !ok {
			continue
		}

		worker, found := b.registry.FindIdleWorker(job.Requirements)
		if found {
			if err := b.store.Assign(jobID, worker.ID); err != nil {
				continue
			}
			b.registry.AssignWorker(worker.ID, jobID)
			continue
		}

		if b.factory.CurrentWorkerCount() < b.factory.MaxWorkerCount() {
			b.factory.CreateWorker(job.Requirements)
		}
	}
}

func (b *Broker) publishStatus(jobID remus.JobID, status remus.Status) {
	if b.status == nil {
		return
	}
	payload := wire.EncodeJobStatus(wire.JobStatusPayload{Status: status})
	b.status.QueueMessage(append(wire.EncodeJobID(jobID), payload...))
}
