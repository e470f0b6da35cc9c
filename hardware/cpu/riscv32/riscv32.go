// Package riscv32 implements an RV32I core: the x0-x31 integer register
// file (x0 hardwired to zero), the M-mode trap CSRs, and an mtime/mtimecmp
// timer pair, generalising the same Reset/Step/Snapshot shape
// hardware/cpu/armthumb uses for the Cortex-M core.
package riscv32

import (
	"encoding/json"

	"github.com/opsilicon/firmsim/errors"
	"github.com/opsilicon/firmsim/hardware/cpu"
	"github.com/opsilicon/firmsim/hardware/cpu/decodecache"
)

// RegSP is the calling convention's stack pointer register, x2. RISC-V has
// no architecturally special-cased SP the way Cortex-M does; Core.SetSP
// writes here purely so Machine's architecture-agnostic firmware loader
// can seed an initial stack the same way for either core.
const RegSP = 2

// Trap cause codes this core raises itself (a subset of the privileged
// spec's mcause exception codes).
const (
	causeIllegalInstruction = 2
	causeEcallFromMMode     = 11
)

// M-mode CSR addresses this core implements.
const (
	csrMstatus  = 0x300
	csrMie      = 0x304
	csrMtvec    = 0x305
	csrMscratch = 0x340
	csrMepc     = 0x341
	csrMcause   = 0x342
	csrMtval    = 0x343
	csrMip      = 0x344
)

const (
	mstatusMIE  = 1 << 3
	mstatusMPIE = 1 << 7
)

// Core is an RV32I execution core.
type Core struct {
	x [32]uint32
	pc uint32

	mstatus uint32
	mie     uint32
	mip     uint32
	mtvec   uint32
	mscratch uint32
	mepc    uint32
	mcause  uint32
	mtval   uint32

	mtime    uint64
	mtimecmp uint64

	cache    *decodecache.Cache
	observer cpu.Observer
}

// NewCore returns a Core. Unlike armthumb.Core, RISC-V has no shared
// mutable state with any peripheral -- the timer interrupt is derived
// purely from mtime/mtimecmp, both owned entirely by this core.
func NewCore(decodeCacheEnabled bool) *Core {
	return &Core{cache: decodecache.New(decodeCacheEnabled)}
}

func (c *Core) Reset(bus cpu.Bus, entry, vtor uint32) {
	c.x = [32]uint32{}
	c.pc = entry
	c.mstatus = 0
	c.mie = 0
	c.mip = 0
	c.mtvec = vtor
	c.mscratch = 0
	c.mepc = 0
	c.mcause = 0
	c.mtval = 0
	c.mtime = 0
	c.mtimecmp = 0
	c.cache.Invalidate()
}

func (c *Core) GetPC() uint32   { return c.pc }
func (c *Core) SetPC(pc uint32) { c.pc = pc }
func (c *Core) SetSP(sp uint32) { c.SetRegister(RegSP, sp) }

func (c *Core) GetRegister(i int) uint32 {
	if i <= 0 || i > 31 {
		return 0 // x0 is hardwired to zero; out-of-range indices read as zero too
	}
	return c.x[i]
}

func (c *Core) SetRegister(i int, v uint32) {
	if i <= 0 || i > 31 {
		return // x0 is hardwired to zero; out-of-range indices are ignored
	}
	c.x[i] = v
}

// SetExceptionPending sets or clears the corresponding bit of mip. number
// is the interrupt's mip/mie bit position (3 software, 7 timer, 11
// external, matching the machine-mode standard interrupt numbering).
func (c *Core) SetExceptionPending(number uint32, pending bool) {
	if number > 31 {
		return
	}
	if pending {
		c.mip |= 1 << number
	} else {
		c.mip &^= 1 << number
	}
}

func (c *Core) SetObserver(obs cpu.Observer) { c.observer = obs }

// InvalidateDecodeCache drops every cached decode. Called by Machine when
// a bus write lands inside a code region.
func (c *Core) InvalidateDecodeCache() { c.cache.Invalidate() }

func (c *Core) RegisterNames() []string {
	return []string{
		"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
		"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
		"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
		"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
	}
}

func (c *Core) csrRead(addr uint32) uint32 {
	switch addr {
	case csrMstatus:
		return c.mstatus
	case csrMie:
		return c.mie
	case csrMip:
		return c.mip
	case csrMtvec:
		return c.mtvec
	case csrMscratch:
		return c.mscratch
	case csrMepc:
		return c.mepc
	case csrMcause:
		return c.mcause
	case csrMtval:
		return c.mtval
	default:
		return 0
	}
}

func (c *Core) csrWrite(addr uint32, v uint32) {
	switch addr {
	case csrMstatus:
		c.mstatus = v
	case csrMie:
		c.mie = v
	case csrMip:
		c.mip = v
	case csrMtvec:
		c.mtvec = v
	case csrMscratch:
		c.mscratch = v
	case csrMepc:
		c.mepc = v
	case csrMcause:
		c.mcause = v
	case csrMtval:
		c.mtval = v
	}
}

// trap enters the trap handler for cause, vectoring through mtvec. isInterrupt
// sets mcause's top bit and, in vectored mode, offsets the target PC by
// 4*cause rather than landing everyone on the single base handler.
func (c *Core) trap(cause uint32, isInterrupt bool, tval uint32) {
	c.mepc = c.pc
	c.mtval = tval
	if isInterrupt {
		c.mcause = cause | 0x8000_0000
	} else {
		c.mcause = cause
	}
	if c.mstatus&mstatusMIE != 0 {
		c.mstatus |= mstatusMPIE
	} else {
		c.mstatus &^= mstatusMPIE
	}
	c.mstatus &^= mstatusMIE

	base := c.mtvec &^ 0x3
	mode := c.mtvec & 0x3
	if mode == 1 && isInterrupt {
		c.pc = base + 4*cause
	} else {
		c.pc = base
	}
	c.cache.Invalidate()
}

// pollInterrupts checks mip & mie against the global MIE enable and, if an
// interrupt is both pending and enabled, traps into it before the next
// instruction fetch. The timer interrupt (bit 7) is synthesised here from
// mtime/mtimecmp rather than requiring a caller to set it explicitly.
func (c *Core) pollInterrupts() bool {
	if c.mtimecmp != 0 && c.mtime >= c.mtimecmp {
		c.mip |= 1 << 7
	}
	if c.mstatus&mstatusMIE == 0 {
		return false
	}
	pending := c.mip & c.mie
	if pending == 0 {
		return false
	}
	for bit := uint32(0); bit < 32; bit++ {
		if pending&(1<<bit) != 0 {
			c.trap(bit, true, 0)
			return true
		}
	}
	return false
}

func (c *Core) Step(bus cpu.Bus) (cpu.StepOutcome, error) {
	pcBefore := c.pc
	c.mtime++

	if c.pollInterrupts() {
		outcome := cpu.StepOutcome{PCBefore: pcBefore, Cycles: 8}
		if c.observer != nil {
			c.observer.OnStep(pcBefore, outcome)
		}
		return outcome, nil
	}

	var inst *decoded
	if cached, ok := c.cache.Lookup(pcBefore); ok {
		inst = cached.(*decoded)
	} else {
		word, err := bus.ReadU32(pcBefore)
		if err != nil {
			return cpu.StepOutcome{PCBefore: pcBefore}, err
		}
		inst, err = decode(word)
		if err != nil {
			return cpu.StepOutcome{PCBefore: pcBefore}, errors.Errorf(errors.DecodeError, word, pcBefore)
		}
		c.cache.Store(pcBefore, inst)
	}

	c.pc = pcBefore + 4
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

type coreSnapshot struct {
	Registers []uint32
	PC        uint32
	Mstatus   uint32
	Mie       uint32
	Mip       uint32
	Mtvec     uint32
	Mscratch  uint32
	Mepc      uint32
	Mcause    uint32
	Mtval     uint32
	Mtime     uint64
	Mtimecmp  uint64
}

func (c *Core) Snapshot() json.RawMessage {
	regs := make([]uint32, 32)
	copy(regs, c.x[:])
	b, _ := json.Marshal(coreSnapshot{
		Registers: regs,
		PC:        c.pc,
		Mstatus:   c.mstatus,
		Mie:       c.mie,
		Mip:       c.mip,
		Mtvec:     c.mtvec,
		Mscratch:  c.mscratch,
		Mepc:      c.mepc,
		Mcause:    c.mcause,
		Mtval:     c.mtval,
		Mtime:     c.mtime,
		Mtimecmp:  c.mtimecmp,
	})
	return b
}

func (c *Core) ApplyState(data json.RawMessage) error {
	var snap coreSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	copy(c.x[:], snap.Registers)
	c.x[0] = 0
	c.pc = snap.PC
	c.mstatus = snap.Mstatus
	c.mie = snap.Mie
	c.mip = snap.Mip
	c.mtvec = snap.Mtvec
	c.mscratch = snap.Mscratch
	c.mepc = snap.Mepc
	c.mcause = snap.Mcause
	c.mtval = snap.Mtval
	c.mtime = snap.Mtime
	c.mtimecmp = snap.Mtimecmp
	c.cache.Invalidate()
	return nil
}
