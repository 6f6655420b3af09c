// Package bridge drives the out-of-process plug-in lifecycle: spawning
// the compatibility-runtime worker, performing the handshake, arming the
// shared audio plane, and running the per-block process/parameter/MIDI/
// editor request-reply exchanges described by the protocol package.
package bridge

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rack-wine/bridge/discovery"
	"github.com/rack-wine/bridge/midi"
	"github.com/rack-wine/bridge/protocol"
	"github.com/rack-wine/bridge/shm"
)

// Session is a connected, per-plug-in bridge instance: a worker process,
// a socket, a cached plug-in descriptor and parameter id table, and an
// optional armed audio plane. It is movable across goroutines but must
// never be used concurrently from more than one: the socket and the
// shared region are not safe for concurrent access.
type Session struct {
	cfg    RuntimeConfig
	logger *log.Logger

	worker *worker
	conn   net.Conn

	info       protocol.PluginInfo
	paramInfos []protocol.ParamInfo

	region *shm.Region
	armed  bool
}

// Load spawns a worker for the plug-in at path, connects, performs the
// handshake, and returns a connected, unarmed Session. Any failure tears
// down every resource acquired so far, in reverse order, before
// returning.
func Load(ctx context.Context, cfg RuntimeConfig, path string, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.Default()
	}
	cfg = cfg.withDefaults()

	var w, spawnErr = spawnWorker(cfg, logger)
	if spawnErr != nil {
		return nil, spawnErr
	}

	var conn, connErr = connectWithWarmUp(ctx, cfg, logger)
	if connErr != nil {
		w.kill()
		return nil, connErr
	}

	var s = &Session{cfg: cfg, logger: logger, worker: w, conn: conn}

	if err := s.handshake(path); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// LoadDiscovered is a convenience wrapper for Load that takes a stub
// descriptor produced by the discovery package.
func LoadDiscovered(ctx context.Context, cfg RuntimeConfig, d discovery.Descriptor, logger *log.Logger) (*Session, error) {
	return Load(ctx, cfg, d.Path, logger)
}

func (s *Session) handshake(pluginPath string) error {
	if err := s.conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %v", ErrSetup, err)
	}

	var _, pingErr = s.request(protocol.CmdPing, nil)
	if pingErr != nil {
		return fmt.Errorf("%w: ping: %v", ErrSetup, pingErr)
	}

	var workerPath, translateErr = translatePath(pluginPath)
	if translateErr != nil {
		return fmt.Errorf("%w: translate path: %v", ErrSetup, translateErr)
	}

	var loadReq = protocol.LoadPluginRequest{Path: workerPath, ClassIndex: 0}

	var _, loadErr = s.request(protocol.CmdLoadPlugin, loadReq.Encode())
	if loadErr != nil {
		return fmt.Errorf("%w: load plugin: %v", ErrSetup, loadErr)
	}

	var infoPayload, infoErr = s.request(protocol.CmdGetInfo, nil)
	if infoErr != nil {
		return fmt.Errorf("%w: get info: %v", ErrSetup, infoErr)
	}

	var info, infoOk = protocol.DecodePluginInfo(infoPayload)
	if !infoOk {
		return fmt.Errorf("%w: get info: short payload (%d bytes)", ErrSetup, len(infoPayload))
	}
	s.info = info

	s.paramInfos = make([]protocol.ParamInfo, 0, info.NumParams)
	for i := uint32(0); i < info.NumParams; i++ {
		var req = protocol.GetParamInfoRequest{Index: i}

		var payload, err = s.request(protocol.CmdGetParamInfo, req.Encode())
		if err != nil {
			return fmt.Errorf("%w: get param info %d: %v", ErrSetup, i, err)
		}

		var pi, ok = protocol.DecodeParamInfo(payload)
		if !ok {
			return fmt.Errorf("%w: get param info %d: short payload (%d bytes)", ErrSetup, i, len(payload))
		}

		s.paramInfos = append(s.paramInfos, pi)
	}

	s.logger.Debug("loaded plugin", "name", info.Name, "vendor", info.Vendor, "params", info.NumParams)

	return nil
}

// request writes a single request and reads its reply. Exactly one
// exchange is ever in flight per session. A wrong magic or I/O failure is
// a transport fault: the caller should treat the session as unusable
// afterward.
func (s *Session) request(cmd protocol.Command, payload []byte) ([]byte, error) {
	if err := s.conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout)); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %v", ErrTransport, err)
	}

	var header = protocol.NewRequestHeader(cmd, uint32(len(payload)))

	if _, err := s.conn.Write(header.Encode()); err != nil {
		return nil, fmt.Errorf("%w: write header: %v", ErrTransport, err)
	}

	if len(payload) > 0 {
		if _, err := s.conn.Write(payload); err != nil {
			return nil, fmt.Errorf("%w: write payload: %v", ErrTransport, err)
		}
	}

	var respHeaderBuf = make([]byte, protocol.ResponseHeaderSize)
	if _, err := io.ReadFull(s.conn, respHeaderBuf); err != nil {
		return nil, fmt.Errorf("%w: read response header: %v", ErrTransport, err)
	}

	var respHeader, ok = protocol.DecodeResponseHeader(respHeaderBuf)
	if !ok || respHeader.Magic != protocol.ResponseMagic {
		return nil, fmt.Errorf("%w: bad response magic", ErrTransport)
	}

	var respPayload = make([]byte, respHeader.PayloadSize)
	if respHeader.PayloadSize > 0 {
		if _, err := io.ReadFull(s.conn, respPayload); err != nil {
			return nil, fmt.Errorf("%w: read response payload: %v", ErrTransport, err)
		}
	}

	if err := statusError(respHeader.Status); err != nil {
		return respPayload, err
	}

	return respPayload, nil
}

// Descriptor returns the plug-in descriptor captured at Load.
func (s *Session) Descriptor() protocol.PluginInfo {
	return s.info
}

// Armed reports whether Initialize has successfully run.
func (s *Session) Armed() bool {
	return s.armed
}

// ParamCount returns the cached number of parameters.
func (s *Session) ParamCount() int {
	return len(s.paramInfos)
}

// ParamInfo returns the cached descriptor for the parameter at index.
func (s *Session) ParamInfo(index int) (protocol.ParamInfo, error) {
	if index < 0 || index >= len(s.paramInfos) {
		return protocol.ParamInfo{}, ErrInvalidParameter
	}

	return s.paramInfos[index], nil
}

// Initialize allocates the shared audio plane for sampleRate and
// maxBlockSize, using the channel counts learned at Load, stamps its
// header, and sends InitAudio. From this point Process may be called.
// Audio plane parameters are immutable for the rest of the session's
// life; there is no re-arming in this version.
func (s *Session) Initialize(sampleRate, maxBlockSize uint32) error {
	if s.armed {
		return fmt.Errorf("%w: session already armed", ErrSetup)
	}

	var geometry = shm.Geometry{
		NumInputs:  s.info.NumAudioInputs,
		NumOutputs: s.info.NumAudioOutputs,
		BlockSize:  maxBlockSize,
		SampleRate: sampleRate,
	}

	var region, createErr = shm.Create(geometry)
	if createErr != nil {
		return fmt.Errorf("%w: create shared region: %v", ErrSetup, createErr)
	}

	var regionID = regionIDFromPath(region.Path)
	var req = protocol.InitAudioRequest{RegionID: regionID}

	var _, err = s.request(protocol.CmdInitAudio, req.Encode())
	if err != nil {
		region.Close()
		return fmt.Errorf("%w: init audio: %v", ErrSetup, err)
	}

	s.region = region
	s.armed = true

	s.logger.Debug("armed session", "sampleRate", sampleRate, "blockSize", maxBlockSize, "region", region.Path)

	return nil
}

// regionIDFromPath derives the 64-byte-fitting identifier the worker uses
// to open the same shared region; the backing path itself fits the
// budget and is mutually understood by both sides.
func regionIDFromPath(path string) string {
	if len(path) > protocol.InitAudioRegionIDSize-1 {
		path = path[:protocol.InitAudioRegionIDSize-1]
	}
	return path
}

// Reset is a no-op in this version of the wire protocol: there is no
// reset command. It exists on the host-facing API for interface
// compatibility with callers that expect one.
func (s *Session) Reset() error {
	return nil
}

// Process copies up to numFrames samples from inputs into the shared
// audio plane, asks the worker to process them, and copies the result
// back into outputs. numFrames must not exceed the block size Initialize
// armed with. Channels beyond the plug-in's declared count are ignored;
// channels missing from the host's slices are left untouched.
func (s *Session) Process(inputs, outputs [][]float32, numFrames int) error {
	if !s.armed {
		return ErrNotInitialized
	}

	var header = s.region.Header()

	for c := 0; c < int(header.NumInputs) && c < len(inputs); c++ {
		writeChannel(s.region.InputBuffer(c), inputs[c], numFrames)
	}

	var req = protocol.ProcessAudioRequest{NumFrames: uint32(numFrames)}

	var _, err = s.request(protocol.CmdProcessAudio, req.Encode())
	if err != nil {
		return err
	}

	for c := 0; c < int(header.NumOutputs) && c < len(outputs); c++ {
		readChannel(s.region.OutputBuffer(c), outputs[c], numFrames)
	}

	return nil
}

func writeChannel(dst []byte, src []float32, numFrames int) {
	var n = numFrames
	if n > len(src) {
		n = len(src)
	}
	if n > len(dst)/4 {
		n = len(dst) / 4
	}

	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(src[i]))
	}
}

func readChannel(src []byte, dst []float32, numFrames int) {
	var n = numFrames
	if n > len(dst) {
		n = len(dst)
	}
	if n > len(src)/4 {
		n = len(src) / 4
	}

	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}

// SetParameter sets the parameter at index (its position in the plug-in's
// advertised list) to value.
func (s *Session) SetParameter(index int, value float64) error {
	var id, err = s.paramID(index)
	if err != nil {
		return err
	}

	var req = protocol.SetParamRequest{ParamID: id, Value: value}
	var _, reqErr = s.request(protocol.CmdSetParam, req.Encode())

	return reqErr
}

// GetParameter reads the current value of the parameter at index. Because
// every reply consumes and writes socket bytes, this takes the same
// exclusive *Session receiver as every other mutator: a read-only
// signature could not satisfy the protocol. See DESIGN.md for the
// rejected shared-access alternative.
func (s *Session) GetParameter(index int) (float64, error) {
	var id, err = s.paramID(index)
	if err != nil {
		return 0, err
	}

	var req = protocol.GetParamRequest{ParamID: id}

	var payload, reqErr = s.request(protocol.CmdGetParam, req.Encode())
	if reqErr != nil {
		return 0, reqErr
	}

	var resp, ok = protocol.DecodeGetParamResponse(payload)
	if !ok {
		return 0, fmt.Errorf("%w: get param: short payload (%d bytes)", ErrTransport, len(payload))
	}

	return resp.Value, nil
}

func (s *Session) paramID(index int) (uint32, error) {
	if index < 0 || index >= len(s.paramInfos) {
		return 0, ErrInvalidParameter
	}

	return s.paramInfos[index].ParamID, nil
}

// SendMidi serializes events and issues SendMidi in a single message.
func (s *Session) SendMidi(events []midi.Event) error {
	var _, err = s.request(protocol.CmdSendMidi, midi.EncodeBatch(events))
	return err
}

// EditorHandle is the native window surfaced by OpenEditor: an opaque
// window identifier for whichever windowing system the worker's runtime
// interoperates with, plus its size. The handle is not valid after
// CloseEditor or session teardown.
type EditorHandle struct {
	WindowID uint32
	Width    uint32
	Height   uint32
}

// OpenEditor asks the worker to open the plug-in's editor and returns its
// window handle and size.
func (s *Session) OpenEditor() (EditorHandle, error) {
	var payload, err = s.request(protocol.CmdOpenEditor, nil)
	if err != nil {
		return EditorHandle{}, err
	}

	var info, ok = protocol.DecodeEditorInfo(payload)
	if !ok {
		return EditorHandle{}, fmt.Errorf("%w: open editor: short payload (%d bytes)", ErrTransport, len(payload))
	}

	return EditorHandle{WindowID: info.WindowID, Width: info.Width, Height: info.Height}, nil
}

// CloseEditor asks the worker to close the plug-in's editor. The handle
// returned by the matching OpenEditor must not be used afterward.
func (s *Session) CloseEditor() error {
	var _, err = s.request(protocol.CmdCloseEditor, nil)
	return err
}

// GetParamChanges polls for parameters the plug-in's own UI has moved
// since the last poll. Callers should call this on a user-visible cadence
// to reflect knob moves made inside the plug-in editor.
func (s *Session) GetParamChanges() ([]protocol.ParamChange, error) {
	var payload, err = s.request(protocol.CmdGetParamChanges, nil)
	if err != nil {
		return nil, err
	}

	var changes, ok = protocol.DecodeParamChanges(payload)
	if !ok {
		return nil, fmt.Errorf("%w: get param changes: short payload (%d bytes)", ErrTransport, len(payload))
	}

	return changes, nil
}

// Close tears the session down: best-effort Shutdown, unmap and unlink
// the shared region (if armed), release the socket, reap the worker
// process. Every step runs even if an earlier one fails; Close never
// fails visibly.
func (s *Session) Close() error {
	if s.conn != nil {
		_ = s.conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout))
		_, _ = s.request(protocol.CmdShutdown, nil)
	}

	if s.region != nil {
		_ = s.region.Close()
		s.region = nil
	}
	s.armed = false

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	s.worker.kill()

	return nil
}
