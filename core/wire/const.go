// Package wire implements the Remus wire protocol: a multipart frame
// sequence of [routing_prefix?, version_byte, service_tag_byte,
// *payload_frames], encoding and decoding the typed messages exchanged
// between clients, the broker and workers.
package wire

import "time"

// ProtocolVersion is the single supported wire version byte.
const ProtocolVersion byte = 1

// Service tags, one per message kind in the client/worker protocol.
const (
	TagCanMeshType    byte = 0x01
	TagCanMeshReqs    byte = 0x02
	TagRetrieveReqs   byte = 0x03
	TagSubmitJob      byte = 0x04
	TagQueryStatus    byte = 0x05
	TagRetrieve       byte = 0x06
	TagTerminateJob   byte = 0x07
	TagWorkerRegister byte = 0x10
	TagAskForJob      byte = 0x11
	TagProgress       byte = 0x12
	TagResult         byte = 0x13
	TagFailure        byte = 0x14
	TagHeartbeat      byte = 0x15
	TagTerminate      byte = 0x16
)

// ServiceTagNames maps each tag to a human-readable name, for logging.
var ServiceTagNames = map[byte]string{
	TagCanMeshType:    "CanMeshType",
	TagCanMeshReqs:    "CanMeshReqs",
	TagRetrieveReqs:   "RetrieveReqs",
	TagSubmitJob:      "SubmitJob",
	TagQueryStatus:    "QueryStatus",
	TagRetrieve:       "Retrieve",
	TagTerminateJob:   "TerminateJob",
	TagWorkerRegister: "WorkerRegister",
	TagAskForJob:      "AskForJob",
	TagProgress:       "Progress",
	TagResult:         "Result",
	TagFailure:        "Failure",
	TagHeartbeat:      "Heartbeat",
	TagTerminate:      "Terminate",
}

// Default heartbeat and retention tunables (see core/config for the
// service-level overrides of these).
const (
	DefaultHeartbeatInterval = 1 * time.Second
	DefaultHeartbeatMisses   = 5
	DefaultRetentionWindow   = 30 * time.Second
)
