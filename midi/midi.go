// Package midi maps semantic MIDI event kinds onto the raw status/data1/
// data2 bytes the wire protocol carries. It knows nothing about sockets
// or framing; protocol.MidiEvent is the wire-level counterpart this
// package's Event.Raw feeds.
package midi

import "github.com/rack-wine/bridge/protocol"

// Kind names a semantic MIDI event the bridge can send to the worker.
type Kind int

const (
	NoteOn Kind = iota
	NoteOff
	ControlChange
	ProgramChange
	PitchBend
	PolyAftertouch
	ChannelAftertouch
	SystemRealTime
)

// statusNibble is the high nibble of the raw MIDI status byte for each
// channel-voice kind. SystemRealTime has no entry: those events carry no
// channel and are dropped before reaching the wire.
var statusNibble = map[Kind]byte{
	NoteOn:            0x9,
	NoteOff:           0x8,
	ControlChange:     0xB,
	ProgramChange:     0xC,
	PitchBend:         0xE,
	PolyAftertouch:    0xA,
	ChannelAftertouch: 0xD,
}

// Event is one semantic MIDI event the caller wants to deliver to the
// worker at SampleOffset samples into the current block. Field usage
// depends on Kind:
//
//	NoteOn / NoteOff / PolyAftertouch: Data1=note,       Data2=velocity/pressure
//	ControlChange:                     Data1=controller, Data2=value
//	ProgramChange:                     Data1=program
//	ChannelAftertouch:                 Data1=pressure
//	PitchBend:                         Value is the 14-bit bend value (0-16383)
type Event struct {
	Kind         Kind
	Channel      byte
	SampleOffset uint32
	Data1        byte
	Data2        byte
	Value        int16 // PitchBend only
}

// Raw computes the wire status/data1/data2 triple for e. ok is false for
// Kind == SystemRealTime: system real-time events are dropped rather than
// encoded, per the wire contract.
func (e Event) Raw() (status, data1, data2 byte, ok bool) {
	if e.Kind == SystemRealTime {
		return 0, 0, 0, false
	}

	var nibble = statusNibble[e.Kind]
	status = nibble<<4 | (e.Channel & 0x0F)

	switch e.Kind {
	case PitchBend:
		data1 = byte(e.Value & 0x7F)
		data2 = byte((e.Value >> 7) & 0x7F)
	case ProgramChange, ChannelAftertouch:
		data1 = e.Data1
		data2 = 0
	default:
		data1 = e.Data1
		data2 = e.Data2
	}

	return status, data1, data2, true
}

// NewNoteOn builds a NoteOn event.
func NewNoteOn(channel, note, velocity byte, sampleOffset uint32) Event {
	return Event{Kind: NoteOn, Channel: channel, SampleOffset: sampleOffset, Data1: note, Data2: velocity}
}

// NewNoteOff builds a NoteOff event.
func NewNoteOff(channel, note, velocity byte, sampleOffset uint32) Event {
	return Event{Kind: NoteOff, Channel: channel, SampleOffset: sampleOffset, Data1: note, Data2: velocity}
}

// NewControlChange builds a ControlChange event.
func NewControlChange(channel, controller, value byte, sampleOffset uint32) Event {
	return Event{Kind: ControlChange, Channel: channel, SampleOffset: sampleOffset, Data1: controller, Data2: value}
}

// NewProgramChange builds a ProgramChange event.
func NewProgramChange(channel, program byte, sampleOffset uint32) Event {
	return Event{Kind: ProgramChange, Channel: channel, SampleOffset: sampleOffset, Data1: program}
}

// NewPitchBend builds a PitchBend event. value is the 14-bit bend value,
// 8192 representing no bend.
func NewPitchBend(channel byte, value int16, sampleOffset uint32) Event {
	return Event{Kind: PitchBend, Channel: channel, SampleOffset: sampleOffset, Value: value}
}

// NewPolyAftertouch builds a PolyAftertouch event.
func NewPolyAftertouch(channel, note, pressure byte, sampleOffset uint32) Event {
	return Event{Kind: PolyAftertouch, Channel: channel, SampleOffset: sampleOffset, Data1: note, Data2: pressure}
}

// NewChannelAftertouch builds a ChannelAftertouch event.
func NewChannelAftertouch(channel, pressure byte, sampleOffset uint32) Event {
	return Event{Kind: ChannelAftertouch, Channel: channel, SampleOffset: sampleOffset, Data1: pressure}
}

// EncodeBatch converts events to their wire form and packs them the way
// SendMidi expects, dropping any SystemRealTime events along the way.
func EncodeBatch(events []Event) []byte {
	var wire = make([]protocol.MidiEvent, 0, len(events))
	for _, e := range events {
		var status, data1, data2, ok = e.Raw()
		if !ok {
			continue
		}

		wire = append(wire, protocol.MidiEvent{
			SampleOffset: e.SampleOffset,
			Status:       status,
			Data1:        data1,
			Data2:        data2,
		})
	}

	return protocol.EncodeMidiEvents(wire)
}
