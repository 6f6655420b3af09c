package bridge

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rack-wine/bridge/midi"
	"github.com/rack-wine/bridge/protocol"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeWorker stands in for the compatibility-runtime worker process: a
// bare net.Listener speaking the wire protocol directly, grounded in the
// same net.Listen("tcp", ...) pattern the teacher's AGW and KISS TCP
// servers use. Unlike the real worker it never touches Wine; Session
// itself still spawns a real (harmless) child process, exercising the
// actual spawnWorker/kill path.
type fakeWorker struct {
	listener net.Listener

	mu          sync.Mutex
	regionPath  string
	lastSetID   uint32
	lastSetVal  float64
	midiCount   int
	sawLoadPath string
}

func newFakeWorker(t *testing.T) (*fakeWorker, int) {
	t.Helper()

	var l, err = net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var fw = &fakeWorker{listener: l}
	var port = l.Addr().(*net.TCPAddr).Port

	go fw.serve(t)

	return fw, port
}

func (fw *fakeWorker) paramInfos() []protocol.ParamInfo {
	return []protocol.ParamInfo{
		{ParamID: 1, Name: "Gain", Units: "dB", Default: 0, Min: -60, Max: 12, Flags: 0},
		{ParamID: 2, Name: "Mix", Units: "%", Default: 100, Min: 0, Max: 100, Flags: 0},
	}
}

func (fw *fakeWorker) pluginInfo() protocol.PluginInfo {
	return protocol.PluginInfo{
		Name:            "Fake Plugin",
		Vendor:          "Rack Wine",
		Category:        "Effect",
		UID:             "fake-uid",
		NumParams:       2,
		NumAudioInputs:  2,
		NumAudioOutputs: 2,
	}
}

func (fw *fakeWorker) serve(t *testing.T) {
	var conn, err = fw.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var headerBuf = make([]byte, protocol.RequestHeaderSize)
		if _, err := io.ReadFull(conn, headerBuf); err != nil {
			return
		}

		var header, ok = protocol.DecodeRequestHeader(headerBuf)
		if !ok || header.Magic != protocol.RequestMagic {
			return
		}

		var payload = make([]byte, header.PayloadSize)
		if header.PayloadSize > 0 {
			if _, err := io.ReadFull(conn, payload); err != nil {
				return
			}
		}

		var status, respPayload = fw.handle(header.Command, payload)

		var respHeader = protocol.NewResponseHeader(status, uint32(len(respPayload)))
		if _, err := conn.Write(respHeader.Encode()); err != nil {
			return
		}
		if len(respPayload) > 0 {
			if _, err := conn.Write(respPayload); err != nil {
				return
			}
		}

		if header.Command == protocol.CmdShutdown {
			return
		}
	}
}

func (fw *fakeWorker) handle(cmd protocol.Command, payload []byte) (protocol.Status, []byte) {
	switch cmd {
	case protocol.CmdPing:
		return protocol.StatusOk, nil

	case protocol.CmdLoadPlugin:
		var req, ok = protocol.DecodeLoadPluginRequest(payload)
		if !ok {
			return protocol.StatusError, nil
		}
		fw.mu.Lock()
		fw.sawLoadPath = req.Path
		fw.mu.Unlock()
		return protocol.StatusOk, nil

	case protocol.CmdGetInfo:
		return protocol.StatusOk, fw.pluginInfo().Encode()

	case protocol.CmdGetParamInfo:
		var req, ok = protocol.DecodeGetParamInfoRequest(payload)
		if !ok || int(req.Index) >= len(fw.paramInfos()) {
			return protocol.StatusInvalidParam, nil
		}
		return protocol.StatusOk, fw.paramInfos()[req.Index].Encode()

	case protocol.CmdInitAudio:
		var req, ok = protocol.DecodeInitAudioRequest(payload)
		if !ok {
			return protocol.StatusError, nil
		}
		fw.mu.Lock()
		fw.regionPath = req.RegionID
		fw.mu.Unlock()
		return protocol.StatusOk, nil

	case protocol.CmdProcessAudio:
		fw.mu.Lock()
		var path = fw.regionPath
		fw.mu.Unlock()
		if err := doubleRegion(path); err != nil {
			return protocol.StatusError, nil
		}
		return protocol.StatusOk, nil

	case protocol.CmdSetParam:
		var req, ok = protocol.DecodeSetParamRequest(payload)
		if !ok {
			return protocol.StatusError, nil
		}
		fw.mu.Lock()
		fw.lastSetID = req.ParamID
		fw.lastSetVal = req.Value
		fw.mu.Unlock()
		return protocol.StatusOk, nil

	case protocol.CmdGetParam:
		var req, ok = protocol.DecodeGetParamRequest(payload)
		if !ok {
			return protocol.StatusError, nil
		}
		fw.mu.Lock()
		var val = fw.lastSetVal
		var id = fw.lastSetID
		fw.mu.Unlock()
		if req.ParamID != id {
			val = 0
		}
		return protocol.StatusOk, protocol.GetParamResponse{Value: val}.Encode()

	case protocol.CmdSendMidi:
		var events, ok = protocol.DecodeMidiEvents(payload)
		if !ok {
			return protocol.StatusError, nil
		}
		fw.mu.Lock()
		fw.midiCount += len(events)
		fw.mu.Unlock()
		return protocol.StatusOk, nil

	case protocol.CmdOpenEditor:
		return protocol.StatusOk, protocol.EditorInfo{WindowID: 7, Width: 400, Height: 300}.Encode()

	case protocol.CmdCloseEditor:
		return protocol.StatusOk, nil

	case protocol.CmdGetParamChanges:
		return protocol.StatusOk, protocol.EncodeParamChanges([]protocol.ParamChange{{ParamID: 1, Value: 0.5}})

	case protocol.CmdShutdown:
		return protocol.StatusOk, nil

	default:
		return protocol.StatusError, nil
	}
}

// doubleRegion opens the shared region the host armed, copies every input
// channel into the matching output channel with its samples doubled, and
// unmaps. It duplicates just enough of shm's header layout to play the
// worker's side of the handshake without exporting an Open function that
// no production worker code (all of which lives outside this module) would
// ever call.
func doubleRegion(path string) error {
	var f, err = os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	var stat, statErr = f.Stat()
	if statErr != nil {
		return statErr
	}

	var data, mmapErr = unix.Mmap(int(f.Fd()), 0, int(stat.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if mmapErr != nil {
		return mmapErr
	}
	defer unix.Munmap(data)

	var numInputs = binary.LittleEndian.Uint32(data[8:12])
	var numOutputs = binary.LittleEndian.Uint32(data[12:16])
	var blockSize = binary.LittleEndian.Uint32(data[16:20])
	var inputOffset = binary.LittleEndian.Uint32(data[32:36])
	var outputOffset = binary.LittleEndian.Uint32(data[36:40])

	var stride = int(blockSize) * 4
	var n = numInputs
	if numOutputs < n {
		n = numOutputs
	}

	for c := uint32(0); c < n; c++ {
		var in = data[int(inputOffset)+int(c)*stride : int(inputOffset)+int(c)*stride+stride]
		var out = data[int(outputOffset)+int(c)*stride : int(outputOffset)+int(c)*stride+stride]

		for i := 0; i < stride/4; i++ {
			var sample = math.Float32frombits(binary.LittleEndian.Uint32(in[i*4:]))
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(sample*2))
		}
	}

	return nil
}

func testConfig(port int) RuntimeConfig {
	return RuntimeConfig{
		Runtime:        "sleep",
		WorkerPath:     "5",
		PortRangeStart: port,
		PortRangeEnd:   port,
		WarmUp:         0,
		IOTimeout:      2 * time.Second,
	}
}

func TestSessionFullLifecycle(t *testing.T) {
	var fw, port = newFakeWorker(t)
	defer fw.listener.Close()

	var cfg = testConfig(port)

	var s, err = Load(context.Background(), cfg, "/tmp/plugins/fake.vst3", nil)
	require.NoError(t, err)
	require.NotNil(t, s)

	var info = s.Descriptor()
	require.Equal(t, "Fake Plugin", info.Name)
	require.Equal(t, "Rack Wine", info.Vendor)
	require.Equal(t, 2, s.ParamCount())

	fw.mu.Lock()
	var sawPath = fw.sawLoadPath
	fw.mu.Unlock()
	require.Equal(t, `Z:\tmp\plugins\fake.vst3`, sawPath)

	require.False(t, s.Armed())
	require.NoError(t, s.Initialize(48000, 64))
	require.True(t, s.Armed())

	// Zero-input round trip: the host supplies no input channels at all,
	// so the region's input half stays at its freshly mapped zero value
	// and the doubled output must come back zero too.
	var outputs = [][]float32{make([]float32, 64), make([]float32, 64)}
	require.NoError(t, s.Process(nil, outputs, 64))
	for _, ch := range outputs {
		for _, v := range ch {
			require.Equal(t, float32(0), v)
		}
	}

	var inputs = [][]float32{make([]float32, 64), make([]float32, 64)}
	for i := range inputs[0] {
		inputs[0][i] = 1.0
		inputs[1][i] = 2.0
	}
	require.NoError(t, s.Process(inputs, outputs, 64))
	for _, v := range outputs[0] {
		require.Equal(t, float32(2.0), v)
	}
	for _, v := range outputs[1] {
		require.Equal(t, float32(4.0), v)
	}

	require.NoError(t, s.SetParameter(0, 0.75))
	var val, getErr = s.GetParameter(0)
	require.NoError(t, getErr)
	require.Equal(t, 0.75, val)

	require.NoError(t, s.SendMidi([]midi.Event{
		midi.NewNoteOn(0, 60, 100, 0),
		midi.NewNoteOff(0, 60, 0, 32),
	}))
	fw.mu.Lock()
	require.Equal(t, 2, fw.midiCount)
	fw.mu.Unlock()

	var handle, openErr = s.OpenEditor()
	require.NoError(t, openErr)
	require.Equal(t, EditorHandle{WindowID: 7, Width: 400, Height: 300}, handle)
	require.NoError(t, s.CloseEditor())

	var changes, changesErr = s.GetParamChanges()
	require.NoError(t, changesErr)
	require.Equal(t, []protocol.ParamChange{{ParamID: 1, Value: 0.5}}, changes)

	var regionPath = s.region.Path
	require.NoError(t, s.Close())

	_, statErr := os.Stat(regionPath)
	require.True(t, os.IsNotExist(statErr))
	require.Nil(t, s.conn)
	require.Nil(t, s.region)
	require.False(t, s.armed)
}

func TestSessionInitializeTwiceFails(t *testing.T) {
	var fw, port = newFakeWorker(t)
	defer fw.listener.Close()

	var s, err = Load(context.Background(), testConfig(port), "/tmp/plugins/fake.vst3", nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Initialize(44100, 32))
	require.Error(t, s.Initialize(44100, 32))
}

func TestSessionInvalidParamIndex(t *testing.T) {
	var fw, port = newFakeWorker(t)
	defer fw.listener.Close()

	var s, err = Load(context.Background(), testConfig(port), "/tmp/plugins/fake.vst3", nil)
	require.NoError(t, err)
	defer s.Close()

	var setErr = s.SetParameter(99, 0)
	require.ErrorIs(t, setErr, ErrInvalidParameter)

	var _, getErr = s.GetParameter(-1)
	require.ErrorIs(t, getErr, ErrInvalidParameter)
}

func TestSessionProcessBeforeInitializeFails(t *testing.T) {
	var fw, port = newFakeWorker(t)
	defer fw.listener.Close()

	var s, err = Load(context.Background(), testConfig(port), "/tmp/plugins/fake.vst3", nil)
	require.NoError(t, err)
	defer s.Close()

	var outputs = [][]float32{make([]float32, 8), make([]float32, 8)}
	var procErr = s.Process(nil, outputs, 8)
	require.ErrorIs(t, procErr, ErrNotInitialized)
}

// TestSessionCloseTearsDownDespiteDeadConn exercises the always-runs
// teardown discipline: with the socket already severed from underneath
// the session, Close must still release the region, reap the worker
// process, and return nil rather than surfacing the Shutdown failure.
func TestSessionCloseTearsDownDespiteDeadConn(t *testing.T) {
	var fw, port = newFakeWorker(t)

	var s, err = Load(context.Background(), testConfig(port), "/tmp/plugins/fake.vst3", nil)
	require.NoError(t, err)

	require.NoError(t, s.Initialize(44100, 16))
	var regionPath = s.region.Path

	fw.listener.Close()
	s.conn.Close()

	require.NoError(t, s.Close())

	_, statErr := os.Stat(regionPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestLoadFailsWhenNoWorkerListening(t *testing.T) {
	var cfg = RuntimeConfig{
		Runtime:        "sleep",
		WorkerPath:     "5",
		PortRangeStart: 47180,
		PortRangeEnd:   47180,
		WarmUp:         0,
		IOTimeout:      200 * time.Millisecond,
	}

	var s, err = Load(context.Background(), cfg, "/tmp/plugins/fake.vst3", nil)
	require.Error(t, err)
	require.Nil(t, s)
	require.ErrorIs(t, err, ErrSetup)
}
