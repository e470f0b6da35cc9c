package armthumb

import (
	"github.com/opsilicon/firmsim/errors"
	"github.com/opsilicon/firmsim/hardware/cpu"
)

// decoded is the decode cache entry: a fixed instruction length plus a
// closure capturing every operand extracted at decode time. Only the
// operands are baked in -- register contents are always read fresh at
// execution time, so a cached decode stays valid for as long as nothing
// overwrites the underlying code bytes.
type decoded struct {
	size uint32
	exec func(c *Core, bus cpu.Bus) (uint32, error)
}

func signExtend(v uint32, bits uint) uint32 {
	shift := 32 - bits
	return uint32(int32(v<<shift) >> shift)
}

func addWithFlags(c *Core, a, b uint32, carryIn uint32) uint32 {
	sum := uint64(a) + uint64(b) + uint64(carryIn)
	result := uint32(sum)
	c.setFlag(flagC, sum > 0xFFFF_FFFF)
	overflow := (a^result)&(b^result)&0x8000_0000 != 0
	c.setFlag(flagV, overflow)
	c.setNZ(result)
	return result
}

func subWithFlags(c *Core, a, b uint32) uint32 {
	result := addWithFlags(c, a, ^b, 1)
	return result
}

func cond16(cond uint16, c *Core) bool {
	n, z, cf, v := c.flag(flagN), c.flag(flagZ), c.flag(flagC), c.flag(flagV)
	switch cond {
	case 0x0:
		return z // EQ
	case 0x1:
		return !z // NE
	case 0x2:
		return cf // CS
	case 0x3:
		return !cf // CC
	case 0x4:
		return n // MI
	case 0x5:
		return !n // PL
	case 0x6:
		return v // VS
	case 0x7:
		return !v // VC
	case 0x8:
		return cf && !z // HI
	case 0x9:
		return !cf || z // LS
	case 0xA:
		return n == v // GE
	case 0xB:
		return n != v // LT
	case 0xC:
		return !z && n == v // GT
	case 0xD:
		return z || n != v // LE
	default:
		return true // AL (0xE), 0xF is reserved for SVC in this encoding
	}
}

// decode produces the executable form of one instruction. next is the
// second halfword, meaningful only for 32-bit Thumb-2 encodings.
func decode(word, next uint16) (*decoded, error) {
	switch {
	case word>>13 == 0b000 && word>>11 != 0b011:
		return decodeShiftImm(word)
	case word>>11 == 0b00011:
		return decodeAddSub(word)
	case word>>13 == 0b001:
		return decodeImm8(word)
	case word>>10 == 0b010000:
		return decodeAluOp(word)
	case word>>10 == 0b010001:
		return decodeHiReg(word)
	case word>>11 == 0b01001:
		return decodePcLoad(word)
	case word>>12 == 0b0101:
		return decodeLoadStoreReg(word)
	case word>>13 == 0b011:
		return decodeLoadStoreImm(word)
	case word>>12 == 0b1000:
		return decodeLoadStoreHalfword(word)
	case word>>12 == 0b1001:
		return decodeSpRelative(word)
	case word>>12 == 0b1010:
		return decodeLoadAddress(word)
	case word>>8 == 0b10110000:
		return decodeAdjustSp(word)
	case word>>12 == 0b1011 && (word>>9)&0x3 == 0b10:
		return decodePushPop(word)
	case word>>6 == 0b1011101000 || word>>6 == 0b1011101001 || word>>6 == 0b1011101011:
		return decodeReverse(word)
	case word>>12 == 0b1101 && (word>>8)&0xF == 0xF:
		return decodeSvc(word)
	case word>>12 == 0b1101:
		return decodeCondBranch(word)
	case word>>11 == 0b11100:
		return decodeUncondBranch(word)
	case isThumb32(word):
		return decodeThumb32(word, next)
	default:
		return nil, errors.Errorf(errors.UnsupportedInstruction, uint32(word))
	}
}

func decodeShiftImm(word uint16) (*decoded, error) {
	op := (word >> 11) & 0x3
	imm5 := uint32((word >> 6) & 0x1F)
	rm := int((word >> 3) & 0x7)
	rd := int(word & 0x7)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		v := c.GetRegister(rm)
		var result uint32
		switch op {
		case 0: // LSL
			if imm5 == 0 {
				result = v
			} else {
				c.setFlag(flagC, v&(1<<(32-imm5)) != 0)
				result = v << imm5
			}
		case 1: // LSR
			shift := imm5
			if shift == 0 {
				shift = 32
			}
			c.setFlag(flagC, v&(1<<(shift-1)) != 0)
			result = v >> (shift % 32)
			if shift == 32 {
				result = 0
			}
		case 2: // ASR
			shift := imm5
			if shift == 0 {
				shift = 32
			}
			c.setFlag(flagC, v&(1<<(shift-1)) != 0)
			if shift >= 32 {
				if v&0x8000_0000 != 0 {
					result = 0xFFFF_FFFF
				}
			} else {
				result = uint32(int32(v) >> shift)
			}
		}
		c.setNZ(result)
		c.SetRegister(rd, result)
		return 1, nil
	}}, nil
}

func decodeAddSub(word uint16) (*decoded, error) {
	isImm := word&(1<<10) != 0
	isSub := word&(1<<9) != 0
	operand := uint32((word >> 6) & 0x7)
	rn := int((word >> 3) & 0x7)
	rd := int(word & 0x7)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		a := c.GetRegister(rn)
		var b uint32
		if isImm {
			b = operand
		} else {
			b = c.GetRegister(int(operand))
		}
		var result uint32
		if isSub {
			result = subWithFlags(c, a, b)
		} else {
			result = addWithFlags(c, a, b, 0)
		}
		c.SetRegister(rd, result)
		return 1, nil
	}}, nil
}

func decodeImm8(word uint16) (*decoded, error) {
	op := (word >> 11) & 0x3
	rdn := int((word >> 8) & 0x7)
	imm8 := uint32(word & 0xFF)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		switch op {
		case 0: // MOV
			c.setNZ(imm8)
			c.SetRegister(rdn, imm8)
		case 1: // CMP
			subWithFlags(c, c.GetRegister(rdn), imm8)
		case 2: // ADD
			c.SetRegister(rdn, addWithFlags(c, c.GetRegister(rdn), imm8, 0))
		case 3: // SUB
			c.SetRegister(rdn, subWithFlags(c, c.GetRegister(rdn), imm8))
		}
		return 1, nil
	}}, nil
}

func decodeAluOp(word uint16) (*decoded, error) {
	op := (word >> 6) & 0xF
	rm := int((word >> 3) & 0x7)
	rdn := int(word & 0x7)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		a := c.GetRegister(rdn)
		b := c.GetRegister(rm)
		var result uint32
		write := true
		switch op {
		case 0x0: // AND
			result = a & b
		case 0x1: // EOR
			result = a ^ b
		case 0x2: // LSL (register)
			result = a << (b & 0xFF)
		case 0x3: // LSR (register)
			result = a >> (b & 0xFF)
		case 0x4: // ASR (register)
			result = uint32(int32(a) >> (b & 0xFF))
		case 0x5: // ADC
			carry := uint32(0)
			if c.flag(flagC) {
				carry = 1
			}
			result = addWithFlags(c, a, b, carry)
		case 0x6: // SBC
			carry := uint32(0)
			if c.flag(flagC) {
				carry = 1
			}
			result = addWithFlags(c, a, ^b, carry)
		case 0x7: // ROR
			shift := b & 0x1F
			result = (a >> shift) | (a << (32 - shift))
		case 0x8: // TST
			result = a & b
			write = false
		case 0x9: // NEG (RSB #0)
			result = subWithFlags(c, 0, b)
		case 0xA: // CMP
			subWithFlags(c, a, b)
			write = false
		case 0xB: // CMN
			addWithFlags(c, a, b, 0)
			write = false
		case 0xC: // ORR
			result = a | b
		case 0xD: // MUL
			result = a * b
		case 0xE: // BIC
			result = a &^ b
		case 0xF: // MVN
			result = ^b
		}
		if write {
			c.setNZ(result)
			c.SetRegister(rdn, result)
		} else if op == 0x0 || op == 0x8 {
			c.setNZ(result)
		}
		return 1, nil
	}}, nil
}

func decodeHiReg(word uint16) (*decoded, error) {
	op := (word >> 8) & 0x3
	h1 := (word >> 7) & 0x1
	h2 := (word >> 6) & 0x1
	rm := int(h2<<3 | (word>>3)&0x7)
	rdn := int(h1<<3 | word&0x7)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		switch op {
		case 0: // ADD
			c.SetRegister(rdn, c.GetRegister(rdn)+c.GetRegister(rm))
		case 1: // CMP
			subWithFlags(c, c.GetRegister(rdn), c.GetRegister(rm))
		case 2: // MOV
			c.SetRegister(rdn, c.GetRegister(rm))
		case 3: // BX / BLX
			target := c.GetRegister(rm)
			if h1 != 0 {
				c.SetRegister(RegLR, c.GetPC()|1)
			}
			c.SetPC(target &^ 1)
		}
		return 1, nil
	}}, nil
}

func decodePcLoad(word uint16) (*decoded, error) {
	rd := int((word >> 8) & 0x7)
	imm8 := uint32(word&0xFF) << 2

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		base := ((c.GetPC() + 2) &^ 3) + imm8 // Align(instruction address + 4, 4)
		v, err := bus.ReadU32(base)
		if err != nil {
			return 0, err
		}
		c.SetRegister(rd, v)
		return 2, nil
	}}, nil
}

func decodeLoadStoreReg(word uint16) (*decoded, error) {
	op := (word >> 9) & 0x7
	rm := int((word >> 6) & 0x7)
	rn := int((word >> 3) & 0x7)
	rt := int(word & 0x7)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		addr := c.GetRegister(rn) + c.GetRegister(rm)
		switch op {
		case 0: // STR
			return 2, bus.WriteU32(addr, c.GetRegister(rt))
		case 1: // STRH
			return 2, bus.WriteU16(addr, uint16(c.GetRegister(rt)))
		case 2: // STRB
			return 2, bus.WriteU8(addr, uint8(c.GetRegister(rt)))
		case 3: // LDRSB
			v, err := bus.ReadU8(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rt, signExtend(uint32(v), 8))
			return 2, nil
		case 4: // LDR
			v, err := bus.ReadU32(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rt, v)
			return 2, nil
		case 5: // LDRH
			v, err := bus.ReadU16(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rt, uint32(v))
			return 2, nil
		case 6: // LDRB
			v, err := bus.ReadU8(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rt, uint32(v))
			return 2, nil
		case 7: // LDRSH
			v, err := bus.ReadU16(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rt, signExtend(uint32(v), 16))
			return 2, nil
		}
		return 2, nil
	}}, nil
}

func decodeLoadStoreImm(word uint16) (*decoded, error) {
	op := (word >> 11) & 0x3 // 0=STR 1=LDR 2=STRB 3=LDRB
	imm5 := uint32((word >> 6) & 0x1F)
	rn := int((word >> 3) & 0x7)
	rt := int(word & 0x7)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		var addr uint32
		if op < 2 {
			addr = c.GetRegister(rn) + imm5*4
		} else {
			addr = c.GetRegister(rn) + imm5
		}
		switch op {
		case 0:
			return 2, bus.WriteU32(addr, c.GetRegister(rt))
		case 1:
			v, err := bus.ReadU32(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rt, v)
			return 2, nil
		case 2:
			return 2, bus.WriteU8(addr, uint8(c.GetRegister(rt)))
		default:
			v, err := bus.ReadU8(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rt, uint32(v))
			return 2, nil
		}
	}}, nil
}

func decodeLoadStoreHalfword(word uint16) (*decoded, error) {
	isLoad := word&(1<<11) != 0
	imm5 := uint32((word>>6)&0x1F) * 2
	rn := int((word >> 3) & 0x7)
	rt := int(word & 0x7)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		addr := c.GetRegister(rn) + imm5
		if isLoad {
			v, err := bus.ReadU16(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rt, uint32(v))
			return 2, nil
		}
		return 2, bus.WriteU16(addr, uint16(c.GetRegister(rt)))
	}}, nil
}

func decodeSpRelative(word uint16) (*decoded, error) {
	isLoad := word&(1<<11) != 0
	rt := int((word >> 8) & 0x7)
	imm8 := uint32(word&0xFF) << 2

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		addr := c.GetRegister(RegSP) + imm8
		if isLoad {
			v, err := bus.ReadU32(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rt, v)
			return 2, nil
		}
		return 2, bus.WriteU32(addr, c.GetRegister(rt))
	}}, nil
}

func decodeLoadAddress(word uint16) (*decoded, error) {
	fromSP := word&(1<<11) != 0
	rd := int((word >> 8) & 0x7)
	imm8 := uint32(word&0xFF) << 2

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		var base uint32
		if fromSP {
			base = c.GetRegister(RegSP)
		} else {
			base = (c.GetPC() + 2) &^ 3 // Align(instruction address + 4, 4)
		}
		c.SetRegister(rd, base+imm8)
		return 1, nil
	}}, nil
}

func decodeAdjustSp(word uint16) (*decoded, error) {
	isSub := word&(1<<7) != 0
	imm7 := uint32(word&0x7F) << 2

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		sp := c.GetRegister(RegSP)
		if isSub {
			sp -= imm7
		} else {
			sp += imm7
		}
		c.SetRegister(RegSP, sp)
		return 1, nil
	}}, nil
}

func decodePushPop(word uint16) (*decoded, error) {
	isPop := word&(1<<11) != 0
	includeExtra := word&(1<<8) != 0 // LR for PUSH, PC for POP
	regList := uint8(word & 0xFF)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		sp := c.GetRegister(RegSP)
		cycles := uint32(1)
		if isPop {
			for i := 0; i < 8; i++ {
				if regList&(1<<i) == 0 {
					continue
				}
				v, err := bus.ReadU32(sp)
				if err != nil {
					return 0, err
				}
				c.SetRegister(i, v)
				sp += 4
				cycles++
			}
			if includeExtra {
				v, err := bus.ReadU32(sp)
				if err != nil {
					return 0, err
				}
				c.SetPC(v &^ 1)
				sp += 4
			}
			c.SetRegister(RegSP, sp)
			return cycles, nil
		}

		count := 0
		for i := 0; i < 8; i++ {
			if regList&(1<<i) != 0 {
				count++
			}
		}
		if includeExtra {
			count++
		}
		sp -= uint32(count) * 4
		addr := sp
		for i := 0; i < 8; i++ {
			if regList&(1<<i) == 0 {
				continue
			}
			if err := bus.WriteU32(addr, c.GetRegister(i)); err != nil {
				return 0, err
			}
			addr += 4
			cycles++
		}
		if includeExtra {
			if err := bus.WriteU32(addr, c.GetRegister(RegLR)); err != nil {
				return 0, err
			}
		}
		c.SetRegister(RegSP, sp)
		return cycles, nil
	}}, nil
}

func decodeReverse(word uint16) (*decoded, error) {
	variant := word >> 6
	rm := int((word >> 3) & 0x7)
	rd := int(word & 0x7)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		v := c.GetRegister(rm)
		var result uint32
		switch variant {
		case 0b1011101000: // REV
			result = v<<24 | (v&0xFF00)<<8 | (v>>8)&0xFF00 | v>>24
		case 0b1011101001: // REV16
			result = (v&0xFF)<<8 | (v>>8)&0xFF | (v&0xFF00_0000)>>8 | (v&0x00FF_0000)<<8
		case 0b1011101011: // REVSH
			lo := v & 0xFF
			hi := (v >> 8) & 0xFF
			result = signExtend(lo<<8|hi, 16)
		}
		c.SetRegister(rd, result)
		return 1, nil
	}}, nil
}

func decodeSvc(word uint16) (*decoded, error) {
	imm8 := uint32(word & 0xFF)
	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		_ = imm8
		return 1, c.takeException(bus, 11) // SVCall exception number
	}}, nil
}

func decodeCondBranch(word uint16) (*decoded, error) {
	cond := (word >> 8) & 0xF
	imm8 := uint32(word & 0xFF)
	offset := signExtend(imm8<<1, 9)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		if cond16(cond, c) {
			c.SetPC(c.GetPC() + 2 + offset) // PC reads as instruction address + 4
		}
		return 1, nil
	}}, nil
}

func decodeUncondBranch(word uint16) (*decoded, error) {
	imm11 := uint32(word & 0x7FF)
	offset := signExtend(imm11<<1, 12)

	return &decoded{size: 2, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		c.SetPC(c.GetPC() + 2 + offset) // PC reads as instruction address + 4
		return 1, nil
	}}, nil
}

// decodeThumb32 covers BL/BLX (format 19) and the bitfield
// extract/insert/clear family (UBFX, BFI, BFC). Every other 32-bit
// Thumb-2 encoding is out of scope for this core's subset.
func decodeThumb32(word, next uint16) (*decoded, error) {
	switch {
	case word>>11 == 0b11110 && next>>14 == 0b11:
		return decodeBL(word, next)
	case word>>4 == 0b111100110110 || word>>4 == 0b111100111100:
		return decodeBitfield(word, next)
	default:
		return nil, errors.Errorf(errors.UnsupportedInstruction, uint32(word)<<16|uint32(next))
	}
}

func decodeBL(word, next uint16) (*decoded, error) {
	s := uint32((word >> 10) & 0x1)
	imm10 := uint32(word & 0x3FF)
	j1 := uint32((next >> 13) & 0x1)
	j2 := uint32((next >> 11) & 0x1)
	imm11 := uint32(next & 0x7FF)

	i1 := 1 - (j1 ^ s)
	i2 := 1 - (j2 ^ s)
	offset := signExtend(s<<24|i1<<23|i2<<22|imm10<<12|imm11<<1, 25)

	return &decoded{size: 4, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		retAddr := c.GetPC() | 1
		c.SetRegister(RegLR, retAddr)
		c.SetPC(c.GetPC() + offset)
		return 4, nil
	}}, nil
}

// decodeBitfield handles UBFX Rd,Rn,#lsb,#width and BFI/BFC Rd,Rn,#lsb,#width
// (Thumb-2 T1 encodings, coprocessor-free data-processing group).
func decodeBitfield(word, next uint16) (*decoded, error) {
	isUbfx := word>>4 == 0b111100111100
	rn := int(word & 0xF)
	rd := int((next >> 8) & 0xF)
	imm3 := uint32((next >> 12) & 0x7)
	imm2 := uint32((next >> 6) & 0x3)
	lsb := imm3<<2 | imm2
	field := uint32(next & 0x1F) // widthm1 for UBFX, msb for BFI/BFC
	width := field + 1
	if !isUbfx {
		width = field - lsb + 1
	}

	return &decoded{size: 4, exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		mask := uint32(0)
		if width < 32 {
			mask = (uint32(1)<<width - 1) << lsb
		} else {
			mask = 0xFFFF_FFFF
		}
		if isUbfx {
			v := c.GetRegister(rn)
			c.SetRegister(rd, (v&mask)>>lsb)
			return 1, nil
		}
		if rn == 0xF { // BFC: Rn omitted, clear only
			c.SetRegister(rd, c.GetRegister(rd)&^mask)
			return 1, nil
		}
		dst := c.GetRegister(rd) &^ mask
		src := (c.GetRegister(rn) << lsb) & mask
		c.SetRegister(rd, dst|src)
		return 1, nil
	}}, nil
}
