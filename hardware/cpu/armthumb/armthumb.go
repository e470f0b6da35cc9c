// Package armthumb implements a Cortex-M Thumb/Thumb-2 subset core: the
// r0-r15 register file, xPSR condition flags, a shared VTOR pointer, and
// the exception entry sequence a Cortex-M core runs on interrupt. Exception
// return is not modelled: a branch or POP to an EXC_RETURN value (such as
// the 0xFFFFFFF9 placed in LR on entry) is treated as an ordinary branch
// target, and the stacked frame is not restored.
package armthumb

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/errors"
	"github.com/opsilicon/firmsim/hardware/cpu"
	"github.com/opsilicon/firmsim/hardware/cpu/decodecache"
)

// Register indices, matching the conventional Cortex-M names.
const (
	RegSP = 13
	RegLR = 14
	RegPC = 15
)

// Core is a Cortex-M Thumb/Thumb-2 execution core.
type Core struct {
	r    [16]uint32
	xpsr uint32 // bits 31/30/29/28 = N/Z/C/V; bits 5:0 = exception number

	primask bool
	vtor    *uint32

	pendingExceptions map[uint32]bool

	cache    *decodecache.Cache
	observer cpu.Observer
}

// NewCore returns a Core sharing vtor with the Scb peripheral mounted on
// the same Machine (Design Note 9's shared-reference pattern: a firmware
// write to VTOR through the Scb is visible here on the very next
// exception entry without any polling).
func NewCore(vtor *uint32, decodeCacheEnabled bool) *Core {
	return &Core{
		vtor:              vtor,
		pendingExceptions: make(map[uint32]bool),
		cache:             decodecache.New(decodeCacheEnabled),
	}
}

func (c *Core) Reset(bus cpu.Bus, entry, vtor uint32) {
	c.r = [16]uint32{}
	c.xpsr = 0
	c.primask = false
	*c.vtor = vtor
	c.pendingExceptions = make(map[uint32]bool)
	c.cache.Invalidate()
	c.r[RegPC] = entry &^ 1 // Thumb bit of the entry address is a calling convention, not state
}

func (c *Core) GetPC() uint32        { return c.r[RegPC] }
func (c *Core) SetPC(pc uint32)      { c.r[RegPC] = pc }
func (c *Core) SetSP(sp uint32)      { c.r[RegSP] = sp }
func (c *Core) GetRegister(i int) uint32 {
	if i < 0 || i > 15 {
		return 0
	}
	return c.r[i]
}
func (c *Core) SetRegister(i int, v uint32) {
	if i < 0 || i > 15 {
		return
	}
	c.r[i] = v
}

func (c *Core) SetExceptionPending(number uint32, pending bool) {
	if pending {
		c.pendingExceptions[number] = true
	} else {
		delete(c.pendingExceptions, number)
	}
}

func (c *Core) SetObserver(obs cpu.Observer) { c.observer = obs }

// InvalidateDecodeCache drops every cached decode. Called by Machine when
// a bus write lands inside a code region -- self-modifying or freshly
// linked code must never execute a stale decode.
func (c *Core) InvalidateDecodeCache() { c.cache.Invalidate() }

func (c *Core) RegisterNames() []string {
	return []string{
		"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
		"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc",
	}
}

// flags bit positions within xpsr.
const (
	flagN = 31
	flagZ = 30
	flagC = 29
	flagV = 28
)

func (c *Core) setNZ(result uint32) {
	c.setFlag(flagZ, result == 0)
	c.setFlag(flagN, result&0x8000_0000 != 0)
}

func (c *Core) setFlag(bit uint, v bool) {
	if v {
		c.xpsr |= 1 << bit
	} else {
		c.xpsr &^= 1 << bit
	}
}

func (c *Core) flag(bit uint) bool { return c.xpsr&(1<<bit) != 0 }

// takeException pushes the exception-entry stack frame (r0-r3, r12, lr,
// pc, xpsr) and vectors through VTOR, the minimal Cortex-M exception
// sequence needed for firmware ISRs that don't rely on FP state.
func (c *Core) takeException(bus cpu.Bus, number uint32) error {
	frame := [8]uint32{c.r[0], c.r[1], c.r[2], c.r[3], c.r[12], c.r[RegLR], c.r[RegPC], c.xpsr}
	sp := c.r[RegSP] - 32
	for i, v := range frame {
		if err := bus.WriteU32(sp+uint32(i*4), v); err != nil {
			return err
		}
	}
	c.r[RegSP] = sp
	c.r[RegLR] = 0xFFFF_FFF9 // EXC_RETURN: return to Thread mode, use MSP, no FP state

	vectorAddr := *c.vtor + number*4
	handler, err := bus.ReadU32(vectorAddr)
	if err != nil {
		return err
	}
	c.r[RegPC] = handler &^ 1
	c.xpsr = (c.xpsr &^ 0x3F) | number
	c.cache.Invalidate()
	return nil
}

// pollExceptions checks for a pending, unmasked exception before fetching
// the next instruction, and vectors into it if PRIMASK is clear.
func (c *Core) pollExceptions(bus cpu.Bus) (bool, error) {
	if c.primask || len(c.pendingExceptions) == 0 {
		return false, nil
	}
	var lowest uint32 = ^uint32(0)
	for n := range c.pendingExceptions {
		if n < lowest {
			lowest = n
		}
	}
	delete(c.pendingExceptions, lowest)
	return true, c.takeException(bus, lowest)
}

func (c *Core) Step(bus cpu.Bus) (cpu.StepOutcome, error) {
	pcBefore := c.r[RegPC]

	if taken, err := c.pollExceptions(bus); err != nil {
		return cpu.StepOutcome{PCBefore: pcBefore}, err
	} else if taken {
		outcome := cpu.StepOutcome{PCBefore: pcBefore, Cycles: 12}
		if c.observer != nil {
			c.observer.OnStep(pcBefore, outcome)
		}
		return outcome, nil
	}

	var inst *decoded
	if cached, ok := c.cache.Lookup(pcBefore); ok {
		inst = cached.(*decoded)
	} else {
		word, err := bus.ReadU16(pcBefore)
		if err != nil {
			return cpu.StepOutcome{PCBefore: pcBefore}, err
		}
		var next uint16
		if isThumb32(word) {
			next, err = bus.ReadU16(pcBefore + 2)
			if err != nil {
				return cpu.StepOutcome{PCBefore: pcBefore}, err
			}
		}
		inst, err = decode(word, next)
		if err != nil {
			return cpu.StepOutcome{PCBefore: pcBefore}, errors.Errorf(errors.DecodeError, uint32(word), pcBefore)
		}
		c.cache.Store(pcBefore, inst)
	}

	c.r[RegPC] = pcBefore + inst.size
	cycles, err := inst.exec(c, bus)
	if err != nil {
		return cpu.StepOutcome{PCBefore: pcBefore}, err
	}

	outcome := cpu.StepOutcome{PCBefore: pcBefore, Cycles: cycles}
	if c.observer != nil {
		c.observer.OnStep(pcBefore, outcome)
	}
	return outcome, nil
}

func isThumb32(word uint16) bool {
	top5 := word >> 11
	return top5 == 0b11101 || top5 == 0b11110 || top5 == 0b11111
}

type coreSnapshot struct {
	Registers         []uint32
	PC                uint32
	XPSR              uint32
	PRIMASK           bool
	PendingExceptions uint32
	VTOR              uint32
}

func (c *Core) Snapshot() json.RawMessage {
	var pending uint32
	for n := range c.pendingExceptions {
		if n < 32 {
			pending |= 1 << n
		}
	}
	regs := make([]uint32, 15)
	copy(regs, c.r[:15])
	b, _ := json.Marshal(coreSnapshot{
		Registers:         regs,
		PC:                c.r[RegPC],
		XPSR:              c.xpsr,
		PRIMASK:           c.primask,
		PendingExceptions: pending,
		VTOR:              *c.vtor,
	})
	return b
}

func (c *Core) ApplyState(data json.RawMessage) error {
	var snap coreSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	copy(c.r[:15], snap.Registers)
	c.r[RegPC] = snap.PC
	c.xpsr = snap.XPSR
	c.primask = snap.PRIMASK
	*c.vtor = snap.VTOR
	c.pendingExceptions = make(map[uint32]bool)
	for n := uint32(0); n < 32; n++ {
		if snap.PendingExceptions&(1<<n) != 0 {
			c.pendingExceptions[n] = true
		}
	}
	c.cache.Invalidate()
	return nil
}
