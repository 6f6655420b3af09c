package protocol

import "encoding/binary"

// MidiEventSize is the fixed wire size of one MIDI event: a 32-bit sample
// offset followed by a 4-byte raw data record.
const MidiEventSize = 8

// MidiEvent is the wire form of one MIDI event: the sample offset within
// the current block, and the raw 3-byte status/data1/data2 record Kind
// encodes to (see midi.Event.Raw).
type MidiEvent struct {
	SampleOffset uint32
	Status       byte
	Data1        byte
	Data2        byte
	// padding byte, always zero on the wire
}

// Encode writes the 8-byte packed form: offset, status, data1, data2, pad.
func (e MidiEvent) Encode() []byte {
	var buf = make([]byte, MidiEventSize)
	binary.LittleEndian.PutUint32(buf[0:4], e.SampleOffset)
	buf[4] = e.Status
	buf[5] = e.Data1
	buf[6] = e.Data2
	buf[7] = 0
	return buf
}

func DecodeMidiEvent(buf []byte) (e MidiEvent, ok bool) {
	if len(buf) < MidiEventSize {
		return MidiEvent{}, false
	}

	e.SampleOffset = binary.LittleEndian.Uint32(buf[0:4])
	e.Status = buf[4]
	e.Data1 = buf[5]
	e.Data2 = buf[6]

	return e, true
}

// EncodeMidiEvents writes a 32-bit count followed by packed 8-byte
// records, the payload shape SendMidi expects.
func EncodeMidiEvents(events []MidiEvent) []byte {
	var buf = make([]byte, 4+len(events)*MidiEventSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(events)))

	var off = 4
	for _, e := range events {
		copy(buf[off:], e.Encode())
		off += MidiEventSize
	}

	return buf
}

// DecodeMidiEvents returns absent (ok=false) when buf is shorter than the
// 4-byte count prefix, or the declared count doesn't fit in the remaining
// bytes.
func DecodeMidiEvents(buf []byte) (events []MidiEvent, ok bool) {
	if len(buf) < 4 {
		return nil, false
	}

	var count = binary.LittleEndian.Uint32(buf[0:4])
	var want = 4 + int(count)*MidiEventSize
	if len(buf) < want {
		return nil, false
	}

	events = make([]MidiEvent, count)
	var off = 4
	for i := range events {
		events[i], _ = DecodeMidiEvent(buf[off : off+MidiEventSize])
		off += MidiEventSize
	}

	return events, true
}
