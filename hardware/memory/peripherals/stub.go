package peripherals

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/hardware/memory/peripheral"
)

// Stub is the fallback peripheral for a manifest entry whose Type names a
// device this simulator does not model register-by-register: reads
// return a fixed default, or an explicitly seeded per-offset value, and
// writes are silently accepted and dropped. This keeps a manifest
// portable across simulators with different peripheral coverage without
// firmware panicking on an unmapped register.
type Stub struct {
	name       string
	values     map[uint32]uint32
	defaultVal uint32
}

// NewStub returns a Stub peripheral answering defaultVal at every
// register-aligned offset until a caller seeds one explicitly with Set.
func NewStub(name string, defaultVal uint32) *Stub {
	return &Stub{name: name, values: make(map[uint32]uint32), defaultVal: defaultVal}
}

func (s *Stub) Name() string { return s.name }

// Set seeds a fixed word value at a register-aligned offset, read back
// byte-by-byte through ReadByte.
func (s *Stub) Set(regOffset uint32, value uint32) {
	s.values[regOffset] = value
}

func (s *Stub) ReadByte(offset uint32) uint8 {
	reg := offset &^ 3
	val, ok := s.values[reg]
	if !ok {
		val = s.defaultVal
	}
	return byteLane(val, offset&3)
}

func (s *Stub) WriteByte(offset uint32, value uint8) {
	// Writes are intentionally ignored.
}

func (s *Stub) Tick() peripheral.TickResult {
	return peripheral.TickResult{}
}

type stubSnapshot struct {
	Values     map[uint32]uint32
	DefaultVal uint32
}

func (s *Stub) Snapshot() json.RawMessage {
	b, _ := json.Marshal(stubSnapshot{s.values, s.defaultVal})
	return b
}

func (s *Stub) Restore(data json.RawMessage) error {
	var snap stubSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.values, s.defaultVal = snap.Values, snap.DefaultVal
	return nil
}
