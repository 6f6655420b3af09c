// Package shm implements the shared-memory audio plane: a memory-mapped
// file carrying a fixed header followed by planar 32-bit float input and
// output buffers, copied into and out of on a per-block cadence by the
// bridge session.
package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// HeaderMagic identifies a shared audio plane header (its hex digits spell
// "RWAS"; stored little-endian, the four bytes read "SAWR").
const HeaderMagic uint32 = 0x52574153

// HeaderVersion is the only shared-memory layout version this package
// writes or reads.
const HeaderVersion uint32 = 1

// HeaderSize is the fixed size, in bytes, of the region header: ten
// 32-bit fields plus four reserved words. Reserved words keep room for
// the future lock-free host_ready/client_ready handshake described in the
// design notes without shifting the offsets of fields that exist today.
const HeaderSize = 56

const bytesPerSample = 4 // float32

// regionCounter mints unique shared-region backing file names. It is the
// one piece of process-wide global state this module carries, per the
// concurrency model: initialized lazily, never torn down.
var regionCounter uint64

// Header is the layout stamped at offset 0 of every region, exactly as
// laid out on the wire: magic, version, channel counts, block size,
// sample rate, two reserved readiness words, input/output byte offsets,
// and four reserved trailer words.
type Header struct {
	Magic        uint32
	Version      uint32
	NumInputs    uint32
	NumOutputs   uint32
	BlockSize    uint32
	SampleRate   uint32
	HostReady    uint32
	ClientReady  uint32
	InputOffset  uint32
	OutputOffset uint32
	reserved     [4]uint32
}

func (h Header) encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], h.Magic)
	binary.LittleEndian.PutUint32(dst[4:8], h.Version)
	binary.LittleEndian.PutUint32(dst[8:12], h.NumInputs)
	binary.LittleEndian.PutUint32(dst[12:16], h.NumOutputs)
	binary.LittleEndian.PutUint32(dst[16:20], h.BlockSize)
	binary.LittleEndian.PutUint32(dst[20:24], h.SampleRate)
	binary.LittleEndian.PutUint32(dst[24:28], h.HostReady)
	binary.LittleEndian.PutUint32(dst[28:32], h.ClientReady)
	binary.LittleEndian.PutUint32(dst[32:36], h.InputOffset)
	binary.LittleEndian.PutUint32(dst[36:40], h.OutputOffset)
	// remaining bytes through HeaderSize stay zero (reserved)
}

func decodeHeader(src []byte) Header {
	return Header{
		Magic:        binary.LittleEndian.Uint32(src[0:4]),
		Version:      binary.LittleEndian.Uint32(src[4:8]),
		NumInputs:    binary.LittleEndian.Uint32(src[8:12]),
		NumOutputs:   binary.LittleEndian.Uint32(src[12:16]),
		BlockSize:    binary.LittleEndian.Uint32(src[16:20]),
		SampleRate:   binary.LittleEndian.Uint32(src[20:24]),
		HostReady:    binary.LittleEndian.Uint32(src[24:28]),
		ClientReady:  binary.LittleEndian.Uint32(src[28:32]),
		InputOffset:  binary.LittleEndian.Uint32(src[32:36]),
		OutputOffset: binary.LittleEndian.Uint32(src[36:40]),
	}
}

// Region is a memory-mapped shared audio plane backed by a regular file
// under /tmp. The host writes its header once at Create and thereafter
// only touches the input half of the planar buffers and the reserved
// readiness words; the worker writes the output half.
type Region struct {
	Path string

	file *os.File
	data []byte
}

// Geometry fixes the channel counts, block size, and sample rate for a
// region's lifetime; none of it may change after Create.
type Geometry struct {
	NumInputs  uint32
	NumOutputs uint32
	BlockSize  uint32
	SampleRate uint32
}

func (g Geometry) size() int64 {
	return int64(HeaderSize) + int64(g.NumInputs+g.NumOutputs)*int64(g.BlockSize)*bytesPerSample
}

// nextPath mints the next unique backing-file path for the calling
// process, of the form /tmp/rack-wine-audio-<pid>-<counter>.
func nextPath() string {
	var n = atomic.AddUint64(&regionCounter, 1)
	return fmt.Sprintf("/tmp/rack-wine-audio-%d-%d", os.Getpid(), n)
}

// Create allocates, truncates, and maps a new shared region sized for
// geometry, stamps its header, and returns it armed and ready for
// InitAudio to be sent to the worker. On any failure no partial state is
// left behind: the backing file, if created, is removed before the error
// is returned.
func Create(g Geometry) (r *Region, err error) {
	var path = nextPath()

	var f *os.File
	f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: create %s: %w", path, err)
	}

	defer func() {
		if err != nil {
			f.Close()
			os.Remove(path)
		}
	}()

	var size = g.size()
	if err = f.Truncate(size); err != nil {
		return nil, fmt.Errorf("shm: truncate %s to %d: %w", path, size, err)
	}

	var data []byte
	data, err = unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	var inputOffset = uint32(HeaderSize)
	var outputOffset = inputOffset + g.NumInputs*g.BlockSize*bytesPerSample

	var h = Header{
		Magic:        HeaderMagic,
		Version:      HeaderVersion,
		NumInputs:    g.NumInputs,
		NumOutputs:   g.NumOutputs,
		BlockSize:    g.BlockSize,
		SampleRate:   g.SampleRate,
		InputOffset:  inputOffset,
		OutputOffset: outputOffset,
	}
	h.encode(data[0:HeaderSize])

	return &Region{Path: path, file: f, data: data}, nil
}

// Header reads the region's header back out of shared memory. The host
// never resizes or re-stamps it after Create, so every field but the two
// reserved readiness words is effectively constant for the region's
// lifetime.
func (r *Region) Header() Header {
	return decodeHeader(r.data[0:HeaderSize])
}

// InputBuffer returns the planar slice of BlockSize float32 samples for
// input channel c, as raw bytes. Callers encode/decode float32 values
// with encoding/binary or math.Float32bits themselves; this keeps Region
// free of any assumption about the caller's sample representation.
func (r *Region) InputBuffer(c int) []byte {
	var h = r.Header()
	var stride = int(h.BlockSize) * bytesPerSample
	var start = int(h.InputOffset) + c*stride
	return r.data[start : start+stride]
}

// OutputBuffer returns the planar slice of BlockSize float32 samples for
// output channel c, as raw bytes.
func (r *Region) OutputBuffer(c int) []byte {
	var h = r.Header()
	var stride = int(h.BlockSize) * bytesPerSample
	var start = int(h.OutputOffset) + c*stride
	return r.data[start : start+stride]
}

// Close unmaps the region, closes the backing file descriptor, and
// unlinks the backing file. It is safe to call on a partially
// constructed Region and safe to call twice; every step runs even if an
// earlier one fails, matching the bridge's always-tear-down discipline.
func (r *Region) Close() error {
	var errs []error

	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			errs = append(errs, fmt.Errorf("shm: munmap %s: %w", r.Path, err))
		}
		r.data = nil
	}

	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("shm: close %s: %w", r.Path, err))
		}
		r.file = nil
	}

	if r.Path != "" {
		if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("shm: unlink %s: %w", r.Path, err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}

	return nil
}
