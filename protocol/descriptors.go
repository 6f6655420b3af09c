package protocol

import (
	"encoding/binary"
	"math"
)

const (
	pluginInfoNameSize     = 256
	pluginInfoVendorSize   = 256
	pluginInfoCategorySize = 128
	pluginInfoUIDSize      = 64
)

// PluginInfoMinSize is the smallest buffer PluginInfo decoding accepts,
// covering every fixed field up to and including NumAudioOutputs but
// without the trailing optional Flags word.
const PluginInfoMinSize = pluginInfoNameSize + pluginInfoVendorSize + pluginInfoCategorySize + pluginInfoUIDSize + 4 + 4 + 4

// PluginInfoFullSize is PluginInfoMinSize plus the optional trailing Flags
// word, present when the worker is new enough to send it.
const PluginInfoFullSize = PluginInfoMinSize + 4

// PluginInfo is the immutable descriptor returned by GetInfo.
type PluginInfo struct {
	Name            string
	Vendor          string
	Category        string
	UID             string
	NumParams       uint32
	NumAudioInputs  uint32
	NumAudioOutputs uint32
	Flags           uint32
}

// Encode always emits the full 720-byte form, flags included.
func (p PluginInfo) Encode() []byte {
	var buf = make([]byte, PluginInfoFullSize)

	var off = 0
	putFixedString(buf[off:off+pluginInfoNameSize], p.Name)
	off += pluginInfoNameSize
	putFixedString(buf[off:off+pluginInfoVendorSize], p.Vendor)
	off += pluginInfoVendorSize
	putFixedString(buf[off:off+pluginInfoCategorySize], p.Category)
	off += pluginInfoCategorySize
	putFixedString(buf[off:off+pluginInfoUIDSize], p.UID)
	off += pluginInfoUIDSize

	binary.LittleEndian.PutUint32(buf[off:], p.NumParams)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.NumAudioInputs)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.NumAudioOutputs)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], p.Flags)

	return buf
}

// DecodePluginInfo returns absent (ok=false) for any buffer shorter than
// PluginInfoMinSize. Flags defaults to zero when buf is shorter than
// PluginInfoFullSize.
func DecodePluginInfo(buf []byte) (p PluginInfo, ok bool) {
	if len(buf) < PluginInfoMinSize {
		return PluginInfo{}, false
	}

	var off = 0
	p.Name = getFixedString(buf[off : off+pluginInfoNameSize])
	off += pluginInfoNameSize
	p.Vendor = getFixedString(buf[off : off+pluginInfoVendorSize])
	off += pluginInfoVendorSize
	p.Category = getFixedString(buf[off : off+pluginInfoCategorySize])
	off += pluginInfoCategorySize
	p.UID = getFixedString(buf[off : off+pluginInfoUIDSize])
	off += pluginInfoUIDSize

	p.NumParams = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	p.NumAudioInputs = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	p.NumAudioOutputs = binary.LittleEndian.Uint32(buf[off:])
	off += 4

	if len(buf) >= PluginInfoFullSize {
		p.Flags = binary.LittleEndian.Uint32(buf[off:])
	}

	return p, true
}

const (
	paramInfoNameSize  = 128
	paramInfoUnitsSize = 32
)

// ParamInfoSize is the fixed encoded size of a ParamInfo payload: id,
// name, units, default/min/max, flags, and a 4-byte reserved trailer.
const ParamInfoSize = 4 + paramInfoNameSize + paramInfoUnitsSize + 8 + 8 + 8 + 4 + 4

// ParamInfoMinSize is the smallest buffer ParamInfo decoding accepts.
const ParamInfoMinSize = 196

// ParamInfo is the cached descriptor for one parameter, returned by
// GetParamInfo and indexed by its position in the plug-in's advertised
// list. ParamID is the opaque stable identifier used on the wire for
// every later GetParam/SetParam call.
type ParamInfo struct {
	ParamID uint32
	Name    string
	Units   string
	Default float64
	Min     float64
	Max     float64
	Flags   uint32
}

func (p ParamInfo) Encode() []byte {
	var buf = make([]byte, ParamInfoSize)

	var off = 0
	binary.LittleEndian.PutUint32(buf[off:], p.ParamID)
	off += 4
	putFixedString(buf[off:off+paramInfoNameSize], p.Name)
	off += paramInfoNameSize
	putFixedString(buf[off:off+paramInfoUnitsSize], p.Units)
	off += paramInfoUnitsSize

	binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(p.Default))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(p.Min))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(p.Max))
	off += 8

	binary.LittleEndian.PutUint32(buf[off:], p.Flags)

	return buf
}

// DecodeParamInfo returns absent (ok=false) for any buffer shorter than
// ParamInfoMinSize.
func DecodeParamInfo(buf []byte) (p ParamInfo, ok bool) {
	if len(buf) < ParamInfoMinSize {
		return ParamInfo{}, false
	}

	var off = 0
	p.ParamID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	p.Name = getFixedString(buf[off : off+paramInfoNameSize])
	off += paramInfoNameSize
	p.Units = getFixedString(buf[off : off+paramInfoUnitsSize])
	off += paramInfoUnitsSize

	p.Default = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	p.Min = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	p.Max = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8

	p.Flags = binary.LittleEndian.Uint32(buf[off:])

	return p, true
}

// EditorInfoSize is the fixed encoded size of an EditorInfo payload.
const EditorInfoSize = 12

// EditorInfo describes the native window surfaced by OpenEditor (and
// re-reported by GetEditorSize).
type EditorInfo struct {
	WindowID uint32
	Width    uint32
	Height   uint32
}

func (e EditorInfo) Encode() []byte {
	var buf = make([]byte, EditorInfoSize)
	binary.LittleEndian.PutUint32(buf[0:4], e.WindowID)
	binary.LittleEndian.PutUint32(buf[4:8], e.Width)
	binary.LittleEndian.PutUint32(buf[8:12], e.Height)
	return buf
}

func DecodeEditorInfo(buf []byte) (e EditorInfo, ok bool) {
	if len(buf) < EditorInfoSize {
		return EditorInfo{}, false
	}

	e.WindowID = binary.LittleEndian.Uint32(buf[0:4])
	e.Width = binary.LittleEndian.Uint32(buf[4:8])
	e.Height = binary.LittleEndian.Uint32(buf[8:12])

	return e, true
}

// ParamChangeRecordSize is the per-entry size of a parameter change record
// in a GetParamChanges response.
const ParamChangeRecordSize = 12

// ParamChange is one entry in the array a GetParamChanges response
// decodes to: a parameter the worker-side UI moved since the last poll.
type ParamChange struct {
	ParamID uint32
	Value   float64
}

// EncodeParamChanges writes a 32-bit count followed by packed 12-byte
// records.
func EncodeParamChanges(changes []ParamChange) []byte {
	var buf = make([]byte, 4+len(changes)*ParamChangeRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(changes)))

	var off = 4
	for _, c := range changes {
		binary.LittleEndian.PutUint32(buf[off:], c.ParamID)
		binary.LittleEndian.PutUint64(buf[off+4:], math.Float64bits(c.Value))
		off += ParamChangeRecordSize
	}

	return buf
}

// DecodeParamChanges returns absent (ok=false) when buf is shorter than
// the 4-byte count prefix, or when the declared count doesn't fit in the
// remaining bytes.
func DecodeParamChanges(buf []byte) (changes []ParamChange, ok bool) {
	if len(buf) < 4 {
		return nil, false
	}

	var count = binary.LittleEndian.Uint32(buf[0:4])
	var want = 4 + int(count)*ParamChangeRecordSize
	if len(buf) < want {
		return nil, false
	}

	changes = make([]ParamChange, count)
	var off = 4
	for i := range changes {
		changes[i].ParamID = binary.LittleEndian.Uint32(buf[off:])
		changes[i].Value = math.Float64frombits(binary.LittleEndian.Uint64(buf[off+4:]))
		off += ParamChangeRecordSize
	}

	return changes, true
}
