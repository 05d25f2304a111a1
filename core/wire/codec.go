package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	rerrors "github.com/geoffjay/remus/core/errors"
	"github.com/geoffjay/remus/core/remus"
)

// --- primitive encoders/decoders -------------------------------------------------

func putUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, rerrors.NewInvalidMessage("short read for length prefix", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func putString(buf *bytes.Buffer, s string) {
	putUint64(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint64(r)
	if err != nil {
		return "", err
	}
	if n > uint64(r.Len()) {
		return "", rerrors.NewInvalidMessage("short read for string payload", nil)
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return "", rerrors.NewInvalidMessage("short read for string payload", err)
		}
	}
	return string(b), nil
}

func putBytes(buf *bytes.Buffer, b []byte) {
	putUint64(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, rerrors.NewInvalidMessage("short read for byte payload", nil)
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return nil, rerrors.NewInvalidMessage("short read for byte payload", err)
		}
	}
	return b, nil
}

func putJobID(buf *bytes.Buffer, id remus.JobID) {
	buf.Write(id[:])
}

func readJobID(r *bytes.Reader) (remus.JobID, error) {
	var id remus.JobID
	b := make([]byte, 16)
	if _, err := io.ReadFull(r, b); err != nil {
		return id, rerrors.NewInvalidMessage("short read for job id", err)
	}
	copy(id[:], b)
	return id, nil
}

func putBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, rerrors.NewInvalidMessage("short read for bool", err)
	}
	return b != 0, nil
}

// --- MeshIOType -------------------------------------------------------------------

// EncodeMeshIOType writes a MeshIOType payload.
func EncodeMeshIOType(io remus.MeshIOType) []byte {
	var buf bytes.Buffer
	putString(&buf, io.InputKind)
	putString(&buf, io.OutputKind)
	return buf.Bytes()
}

// DecodeMeshIOType parses a MeshIOType payload.
func DecodeMeshIOType(data []byte) (remus.MeshIOType, error) {
	r := bytes.NewReader(data)
	input, err := readString(r)
	if err != nil {
		return remus.MeshIOType{}, err
	}
	output, err := readString(r)
	if err != nil {
		return remus.MeshIOType{}, err
	}
	return remus.MeshIOType{InputKind: input, OutputKind: output}, nil
}

// --- JobRequirements ----------------------------------------------------------------

// EncodeJobRequirements writes a JobRequirements payload.
func EncodeJobRequirements(req remus.JobRequirements) []byte {
	var buf bytes.Buffer
	buf.Write(EncodeMeshIOType(req.IOType))
	putString(&buf, req.WorkerName)
	putBytes(&buf, req.Requirements)
	return buf.Bytes()
}

// DecodeJobRequirements parses a JobRequirements payload.
func DecodeJobRequirements(data []byte) (remus.JobRequirements, error) {
	r := bytes.NewReader(data)
	input, err := readString(r)
	if err != nil {
		return remus.JobRequirements{}, err
	}
	output, err := readString(r)
	if err != nil {
		return remus.JobRequirements{}, err
	}
	name, err := readString(r)
	if err != nil {
		return remus.JobRequirements{}, err
	}
	blob, err := readBytes(r)
	if err != nil {
		return remus.JobRequirements{}, err
	}
	return remus.JobRequirements{
		IOType:       remus.MeshIOType{InputKind: input, OutputKind: output},
		WorkerName:   name,
		Requirements: blob,
	}, nil
}

// --- JobContent ---------------------------------------------------------------------

// EncodeJobContent writes a JobContent payload:
// {flag: u8, format_tag: u8, name_len, name_bytes, payload_len, payload_bytes}.
func EncodeJobContent(c remus.JobContent) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(c.Source))
	buf.WriteByte(byte(c.Encoding))
	putString(&buf, c.Format)
	putBytes(&buf, c.Payload)
	return buf.Bytes()
}

func decodeJobContentFrom(r *bytes.Reader) (remus.JobContent, error) {
	sourceByte, err := r.ReadByte()
	if err != nil {
		return remus.JobContent{}, rerrors.NewInvalidMessage("short read for content source flag", err)
	}
	encodingByte, err := r.ReadByte()
	if err != nil {
		return remus.JobContent{}, rerrors.NewInvalidMessage("short read for content encoding flag", err)
	}
	format, err := readString(r)
	if err != nil {
		return remus.JobContent{}, err
	}
	payload, err := readBytes(r)
	if err != nil {
		return remus.JobContent{}, err
	}
	return remus.JobContent{
		Payload:  payload,
		Source:   remus.ContentSource(sourceByte),
		Format:   format,
		Encoding: remus.ContentEncoding(encodingByte),
	}, nil
}

// DecodeJobContent parses a standalone JobContent payload.
func DecodeJobContent(data []byte) (remus.JobContent, error) {
	return decodeJobContentFrom(bytes.NewReader(data))
}

// --- JobSubmission --------------------------------------------------------------------

// EncodeJobSubmission writes a JobSubmission payload: requirements, then a
// count, then that many (key, content) pairs in insertion order.
func EncodeJobSubmission(s *remus.JobSubmission) []byte {
	var buf bytes.Buffer
	buf.Write(EncodeJobRequirements(s.Requirements))
	keys := s.Keys()
	putUint64(&buf, uint64(len(keys)))
	for _, key := range keys {
		putString(&buf, key)
		content, _ := s.Get(key)
		buf.Write(EncodeJobContent(content))
	}
	return buf.Bytes()
}

// DecodeJobSubmission parses a JobSubmission payload.
func DecodeJobSubmission(data []byte) (*remus.JobSubmission, error) {
	r := bytes.NewReader(data)
	input, err := readString(r)
	if err != nil {
		return nil, err
	}
	output, err := readString(r)
	if err != nil {
		return nil, err
	}
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	blob, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	req := remus.JobRequirements{
		IOType:       remus.MeshIOType{InputKind: input, OutputKind: output},
		WorkerName:   name,
		Requirements: blob,
	}
	count, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	sub := remus.NewJobSubmission(req)
	for i := uint64(0); i < count; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, err
		}
		content, err := decodeJobContentFrom(r)
		if err != nil {
			return nil, err
		}
		sub.Set(key, content)
	}
	return sub, nil
}

// --- job id, status, result -------------------------------------------------------------

// EncodeJobID writes a bare job ID payload.
func EncodeJobID(id remus.JobID) []byte {
	var buf bytes.Buffer
	putJobID(&buf, id)
	return buf.Bytes()
}

// DecodeJobID parses a bare job ID payload.
func DecodeJobID(data []byte) (remus.JobID, error) {
	return readJobID(bytes.NewReader(data))
}

// EncodeBool writes a bare boolean payload.
func EncodeBool(v bool) []byte {
	var buf bytes.Buffer
	putBool(&buf, v)
	return buf.Bytes()
}

// DecodeBool parses a bare boolean payload.
func DecodeBool(data []byte) (bool, error) {
	return readBool(bytes.NewReader(data))
}

// JobStatusPayload is the wire representation of a QueryStatus/Progress
// reply: status, progress percent, and free-form message.
type JobStatusPayload struct {
	Status  remus.Status
	Percent int
	Message string
}

// EncodeJobStatus writes a JobStatusPayload.
func EncodeJobStatus(p JobStatusPayload) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(p.Status))
	putUint64(&buf, uint64(int64(p.Percent)))
	putString(&buf, p.Message)
	return buf.Bytes()
}

// DecodeJobStatus parses a JobStatusPayload.
func DecodeJobStatus(data []byte) (JobStatusPayload, error) {
	r := bytes.NewReader(data)
	statusByte, err := r.ReadByte()
	if err != nil {
		return JobStatusPayload{}, rerrors.NewInvalidMessage("short read for status byte", err)
	}
	percent, err := readUint64(r)
	if err != nil {
		return JobStatusPayload{}, err
	}
	msg, err := readString(r)
	if err != nil {
		return JobStatusPayload{}, err
	}
	return JobStatusPayload{
		Status:  remus.Status(statusByte),
		Percent: int(int64(percent)),
		Message: msg,
	}, nil
}

// EncodeResult writes a JobResult payload (a bare byte blob). An empty
// result is valid wire for "no result available".
func EncodeResult(data []byte) []byte {
	var buf bytes.Buffer
	putBytes(&buf, data)
	return buf.Bytes()
}

// DecodeResult parses a JobResult payload.
func DecodeResult(data []byte) ([]byte, error) {
	return readBytes(bytes.NewReader(data))
}

// EncodeRequirementsSet writes a RetrieveReqs reply: count + that many
// JobRequirements.
func EncodeRequirementsSet(reqs []remus.JobRequirements) []byte {
	var buf bytes.Buffer
	putUint64(&buf, uint64(len(reqs)))
	for _, req := range reqs {
		buf.Write(EncodeJobRequirements(req))
	}
	return buf.Bytes()
}

// DecodeRequirementsSet parses a RetrieveReqs reply.
func DecodeRequirementsSet(data []byte) ([]remus.JobRequirements, error) {
	r := bytes.NewReader(data)
	count, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	out := make([]remus.JobRequirements, 0, count)
	for i := uint64(0); i < count; i++ {
		// Each entry is self-delimiting; decode in place by re-reading the
		// remaining bytes through the shared helpers.
		input, err := readString(r)
		if err != nil {
			return nil, err
		}
		output, err := readString(r)
		if err != nil {
			return nil, err
		}
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		blob, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		out = append(out, remus.JobRequirements{
			IOType:       remus.MeshIOType{InputKind: input, OutputKind: output},
			WorkerName:   name,
			Requirements: blob,
		})
	}
	return out, nil
}

// --- frame-level envelope -----------------------------------------------------------

// Message is a decoded frame: the service tag plus its raw payload frames
// (everything after the version and tag bytes).
type Message struct {
	Tag     byte
	Payload [][]byte
}

// Encode composes the version byte, tag byte and payload frames into a
// multipart frame sequence, not including any routing prefix (the
// transport layer is responsible for that frame on routed sockets).
func Encode(tag byte, payload ...[]byte) [][]byte {
	header := []byte{ProtocolVersion, tag}
	frames := make([][]byte, 0, len(payload)+1)
	frames = append(frames, header)
	frames = append(frames, payload...)
	return frames
}

// Decode parses a multipart frame sequence (with any routing prefix
// already stripped by the caller) into a Message. It never panics:
// malformed input yields a typed error.
func Decode(frames [][]byte) (*Message, error) {
	if len(frames) == 0 {
		return nil, rerrors.NewInvalidMessage("empty frame sequence", nil)
	}
	header := frames[0]
	if len(header) < 2 {
		return nil, rerrors.NewInvalidMessage(fmt.Sprintf("header frame too short: %d bytes", len(header)), nil)
	}
	if header[0] != ProtocolVersion {
		return nil, rerrors.NewInvalidMessage(fmt.Sprintf("unsupported protocol version %d", header[0]), nil)
	}
	tag := header[1]
	if _, known := ServiceTagNames[tag]; !known {
		return nil, rerrors.NewInvalidMessage(fmt.Sprintf("unknown service tag 0x%02x", tag), nil)
	}
	return &Message{Tag: tag, Payload: frames[1:]}, nil
}
