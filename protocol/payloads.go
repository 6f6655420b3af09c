package protocol

import (
	"encoding/binary"
	"math"
)

// LoadPluginPathSize is the fixed width, in bytes, of the path field in a
// LoadPlugin request.
const LoadPluginPathSize = 1024

// LoadPluginPayloadSize is the total encoded size of a LoadPlugin payload.
const LoadPluginPayloadSize = LoadPluginPathSize + 4

// LoadPluginRequest asks the worker to load the plug-in at Path using the
// class at ClassIndex within the container (0 for the common case of a
// single-class .vst3 bundle).
type LoadPluginRequest struct {
	Path       string
	ClassIndex uint32
}

// Encode produces a fixed 1028-byte payload: a 1024-byte NUL-padded path
// followed by the little-endian class index.
func (r LoadPluginRequest) Encode() []byte {
	var buf = make([]byte, LoadPluginPayloadSize)
	putFixedString(buf[0:LoadPluginPathSize], r.Path)
	binary.LittleEndian.PutUint32(buf[LoadPluginPathSize:], r.ClassIndex)
	return buf
}

// DecodeLoadPluginRequest parses a LoadPlugin payload. ok is false when buf
// is shorter than LoadPluginPayloadSize.
func DecodeLoadPluginRequest(buf []byte) (r LoadPluginRequest, ok bool) {
	if len(buf) < LoadPluginPayloadSize {
		return LoadPluginRequest{}, false
	}

	r.Path = getFixedString(buf[0:LoadPluginPathSize])
	r.ClassIndex = binary.LittleEndian.Uint32(buf[LoadPluginPathSize:])

	return r, true
}

// InitAudioRegionIDSize is the fixed width, in bytes, of the shared-region
// identifier field in an InitAudio request.
const InitAudioRegionIDSize = 64

// InitAudioRequest names the shared-memory region the worker should open;
// geometry (channel counts, block size, sample rate) is read by the
// worker from the region's own header, already stamped by the host.
type InitAudioRequest struct {
	RegionID string
}

// Encode produces a fixed 64-byte NUL-padded payload.
func (r InitAudioRequest) Encode() []byte {
	var buf = make([]byte, InitAudioRegionIDSize)
	putFixedString(buf, r.RegionID)
	return buf
}

// DecodeInitAudioRequest parses an InitAudio payload.
func DecodeInitAudioRequest(buf []byte) (r InitAudioRequest, ok bool) {
	if len(buf) < InitAudioRegionIDSize {
		return InitAudioRequest{}, false
	}

	r.RegionID = getFixedString(buf[0:InitAudioRegionIDSize])
	return r, true
}

// ProcessAudioPayloadSize is the encoded size of a ProcessAudio request.
const ProcessAudioPayloadSize = 4

// ProcessAudioRequest asks the worker to process NumFrames samples already
// staged in the shared audio plane.
type ProcessAudioRequest struct {
	NumFrames uint32
}

func (r ProcessAudioRequest) Encode() []byte {
	var buf = make([]byte, ProcessAudioPayloadSize)
	binary.LittleEndian.PutUint32(buf, r.NumFrames)
	return buf
}

func DecodeProcessAudioRequest(buf []byte) (r ProcessAudioRequest, ok bool) {
	if len(buf) < ProcessAudioPayloadSize {
		return ProcessAudioRequest{}, false
	}

	r.NumFrames = binary.LittleEndian.Uint32(buf)
	return r, true
}

// GetParamInfoPayloadSize is the encoded size of a GetParamInfo request.
const GetParamInfoPayloadSize = 4

// GetParamInfoRequest asks for the descriptor of the parameter at Index,
// the position in the plug-in's advertised parameter list.
type GetParamInfoRequest struct {
	Index uint32
}

func (r GetParamInfoRequest) Encode() []byte {
	var buf = make([]byte, GetParamInfoPayloadSize)
	binary.LittleEndian.PutUint32(buf, r.Index)
	return buf
}

func DecodeGetParamInfoRequest(buf []byte) (r GetParamInfoRequest, ok bool) {
	if len(buf) < GetParamInfoPayloadSize {
		return GetParamInfoRequest{}, false
	}

	r.Index = binary.LittleEndian.Uint32(buf)
	return r, true
}

// GetParamPayloadSize is the encoded size of a GetParam request.
const GetParamPayloadSize = 4

// GetParamRequest asks for the current value of the parameter identified
// by its stable ParamID.
type GetParamRequest struct {
	ParamID uint32
}

func (r GetParamRequest) Encode() []byte {
	var buf = make([]byte, GetParamPayloadSize)
	binary.LittleEndian.PutUint32(buf, r.ParamID)
	return buf
}

func DecodeGetParamRequest(buf []byte) (r GetParamRequest, ok bool) {
	if len(buf) < GetParamPayloadSize {
		return GetParamRequest{}, false
	}

	r.ParamID = binary.LittleEndian.Uint32(buf)
	return r, true
}

// GetParamResponsePayloadSize is the encoded size of a GetParam response.
const GetParamResponsePayloadSize = 8

// GetParamResponse carries the current value of a requested parameter.
type GetParamResponse struct {
	Value float64
}

func (r GetParamResponse) Encode() []byte {
	var buf = make([]byte, GetParamResponsePayloadSize)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(r.Value))
	return buf
}

func DecodeGetParamResponse(buf []byte) (r GetParamResponse, ok bool) {
	if len(buf) < GetParamResponsePayloadSize {
		return GetParamResponse{}, false
	}

	r.Value = math.Float64frombits(binary.LittleEndian.Uint64(buf))
	return r, true
}

// SetParamPayloadSize is the encoded size of a SetParam request.
const SetParamPayloadSize = 12

// SetParamRequest sets the parameter identified by its stable ParamID to
// Value.
type SetParamRequest struct {
	ParamID uint32
	Value   float64
}

func (r SetParamRequest) Encode() []byte {
	var buf = make([]byte, SetParamPayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.ParamID)
	binary.LittleEndian.PutUint64(buf[4:12], math.Float64bits(r.Value))
	return buf
}

func DecodeSetParamRequest(buf []byte) (r SetParamRequest, ok bool) {
	if len(buf) < SetParamPayloadSize {
		return SetParamRequest{}, false
	}

	r.ParamID = binary.LittleEndian.Uint32(buf[0:4])
	r.Value = math.Float64frombits(binary.LittleEndian.Uint64(buf[4:12]))
	return r, true
}

// GetParamCountResponsePayloadSize is the encoded size of a GetParamCount
// response.
const GetParamCountResponsePayloadSize = 4

type GetParamCountResponse struct {
	NumParams uint32
}

func (r GetParamCountResponse) Encode() []byte {
	var buf = make([]byte, GetParamCountResponsePayloadSize)
	binary.LittleEndian.PutUint32(buf, r.NumParams)
	return buf
}

func DecodeGetParamCountResponse(buf []byte) (r GetParamCountResponse, ok bool) {
	if len(buf) < GetParamCountResponsePayloadSize {
		return GetParamCountResponse{}, false
	}

	r.NumParams = binary.LittleEndian.Uint32(buf)
	return r, true
}
