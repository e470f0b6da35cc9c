package riscv32

import (
	"github.com/opsilicon/firmsim/errors"
	"github.com/opsilicon/firmsim/hardware/cpu"
)

// decoded is the decode cache entry: every RV32I encoding is a fixed 4
// bytes, so only the exec closure over the operands needs to be cached.
type decoded struct {
	exec func(c *Core, bus cpu.Bus) (uint32, error)
}

func signExtend(v uint32, bits uint) uint32 {
	shift := 32 - bits
	return uint32(int32(v<<shift) >> shift)
}

const (
	opLoad    = 0b0000011
	opOpImm   = 0b0010011
	opAuipc   = 0b0010111
	opStore   = 0b0100011
	opOp      = 0b0110011
	opLui     = 0b0110111
	opBranch  = 0b1100011
	opJalr    = 0b1100111
	opJal     = 0b1101111
	opSystem  = 0b1110011
	opMiscMem = 0b0001111
)

func decode(word uint32) (*decoded, error) {
	opcode := word & 0x7F
	rd := int((word >> 7) & 0x1F)
	funct3 := (word >> 12) & 0x7
	rs1 := int((word >> 15) & 0x1F)
	rs2 := int((word >> 20) & 0x1F)
	funct7 := (word >> 25) & 0x7F

	switch opcode {
	case opLui:
		imm := word & 0xFFFFF000
		return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
			c.SetRegister(rd, imm)
			return 1, nil
		}}, nil

	case opAuipc:
		imm := word & 0xFFFFF000
		return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
			c.SetRegister(rd, c.GetPC()-4+imm)
			return 1, nil
		}}, nil

	case opJal:
		imm := decodeJImm(word)
		return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
			link := c.GetPC()
			c.SetRegister(rd, link)
			c.SetPC(link - 4 + imm)
			return 3, nil
		}}, nil

	case opJalr:
		imm := signExtend(word>>20, 12)
		return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
			link := c.GetPC()
			target := (c.GetRegister(rs1) + imm) &^ 1
			c.SetRegister(rd, link)
			c.SetPC(target)
			return 3, nil
		}}, nil

	case opBranch:
		imm := decodeBImm(word)
		return decodeBranchOp(funct3, rs1, rs2, imm)

	case opLoad:
		imm := signExtend(word>>20, 12)
		return decodeLoadOp(funct3, rd, rs1, imm)

	case opStore:
		imm := decodeSImm(word)
		return decodeStoreOp(funct3, rs1, rs2, imm)

	case opOpImm:
		imm := signExtend(word>>20, 12)
		shamt := (word >> 20) & 0x1F
		return decodeOpImm(funct3, funct7, rd, rs1, imm, shamt)

	case opOp:
		return decodeOp(funct3, funct7, rd, rs1, rs2)

	case opMiscMem:
		return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) { return 1, nil }}, nil

	case opSystem:
		return decodeSystem(word, funct3, rd, rs1)

	default:
		return nil, errors.Errorf(errors.UnsupportedInstruction, word)
	}
}

func decodeJImm(word uint32) uint32 {
	imm20 := (word >> 31) & 0x1
	imm10_1 := (word >> 21) & 0x3FF
	imm11 := (word >> 20) & 0x1
	imm19_12 := (word >> 12) & 0xFF
	raw := imm20<<20 | imm19_12<<12 | imm11<<11 | imm10_1<<1
	return signExtend(raw, 21)
}

func decodeBImm(word uint32) uint32 {
	imm12 := (word >> 31) & 0x1
	imm10_5 := (word >> 25) & 0x3F
	imm4_1 := (word >> 8) & 0xF
	imm11 := (word >> 7) & 0x1
	raw := imm12<<12 | imm11<<11 | imm10_5<<5 | imm4_1<<1
	return signExtend(raw, 13)
}

func decodeSImm(word uint32) uint32 {
	hi := (word >> 25) & 0x7F
	lo := (word >> 7) & 0x1F
	return signExtend(hi<<5|lo, 12)
}

func decodeBranchOp(funct3 uint32, rs1, rs2 int, imm uint32) (*decoded, error) {
	return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		a := c.GetRegister(rs1)
		b := c.GetRegister(rs2)
		var taken bool
		switch funct3 {
		case 0b000: // BEQ
			taken = a == b
		case 0b001: // BNE
			taken = a != b
		case 0b100: // BLT
			taken = int32(a) < int32(b)
		case 0b101: // BGE
			taken = int32(a) >= int32(b)
		case 0b110: // BLTU
			taken = a < b
		case 0b111: // BGEU
			taken = a >= b
		}
		if taken {
			c.SetPC(c.GetPC() - 4 + imm)
		}
		return 1, nil
	}}, nil
}

func decodeLoadOp(funct3 uint32, rd, rs1 int, imm uint32) (*decoded, error) {
	return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		addr := c.GetRegister(rs1) + imm
		switch funct3 {
		case 0b000: // LB
			v, err := bus.ReadU8(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rd, signExtend(uint32(v), 8))
		case 0b001: // LH
			v, err := bus.ReadU16(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rd, signExtend(uint32(v), 16))
		case 0b010: // LW
			v, err := bus.ReadU32(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rd, v)
		case 0b100: // LBU
			v, err := bus.ReadU8(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rd, uint32(v))
		case 0b101: // LHU
			v, err := bus.ReadU16(addr)
			if err != nil {
				return 0, err
			}
			c.SetRegister(rd, uint32(v))
		}
		return 2, nil
	}}, nil
}

func decodeStoreOp(funct3 uint32, rs1, rs2 int, imm uint32) (*decoded, error) {
	return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		addr := c.GetRegister(rs1) + imm
		v := c.GetRegister(rs2)
		switch funct3 {
		case 0b000: // SB
			return 2, bus.WriteU8(addr, uint8(v))
		case 0b001: // SH
			return 2, bus.WriteU16(addr, uint16(v))
		case 0b010: // SW
			return 2, bus.WriteU32(addr, v)
		}
		return 2, nil
	}}, nil
}

func decodeOpImm(funct3, funct7 uint32, rd, rs1 int, imm uint32, shamt uint32) (*decoded, error) {
	return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		a := c.GetRegister(rs1)
		var result uint32
		switch funct3 {
		case 0b000: // ADDI
			result = a + imm
		case 0b010: // SLTI
			result = boolToWord(int32(a) < int32(imm))
		case 0b011: // SLTIU
			result = boolToWord(a < imm)
		case 0b100: // XORI
			result = a ^ imm
		case 0b110: // ORI
			result = a | imm
		case 0b111: // ANDI
			result = a & imm
		case 0b001: // SLLI
			result = a << shamt
		case 0b101:
			if funct7&0x20 != 0 { // SRAI
				result = uint32(int32(a) >> shamt)
			} else { // SRLI
				result = a >> shamt
			}
		}
		c.SetRegister(rd, result)
		return 1, nil
	}}, nil
}

func decodeOp(funct3, funct7 uint32, rd, rs1, rs2 int) (*decoded, error) {
	return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		a := c.GetRegister(rs1)
		b := c.GetRegister(rs2)
		var result uint32
		switch funct3 {
		case 0b000:
			if funct7&0x20 != 0 {
				result = a - b // SUB
			} else {
				result = a + b // ADD
			}
		case 0b001: // SLL
			result = a << (b & 0x1F)
		case 0b010: // SLT
			result = boolToWord(int32(a) < int32(b))
		case 0b011: // SLTU
			result = boolToWord(a < b)
		case 0b100: // XOR
			result = a ^ b
		case 0b101:
			if funct7&0x20 != 0 { // SRA
				result = uint32(int32(a) >> (b & 0x1F))
			} else { // SRL
				result = a >> (b & 0x1F)
			}
		case 0b110: // OR
			result = a | b
		case 0b111: // AND
			result = a & b
		}
		c.SetRegister(rd, result)
		return 1, nil
	}}, nil
}

func boolToWord(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

func decodeSystem(word, funct3 uint32, rd, rs1 int) (*decoded, error) {
	if funct3 == 0 {
		switch word {
		case 0x0000_0073: // ECALL
			return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
				c.trap(causeEcallFromMMode, false, 0)
				return 1, nil
			}}, nil
		case 0x0010_0073: // EBREAK
			return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
				c.trap(causeIllegalInstruction, false, word)
				return 1, nil
			}}, nil
		}
		return nil, errors.Errorf(errors.UnsupportedInstruction, word)
	}

	csr := word >> 20
	uimm := uint32(rs1)
	return &decoded{exec: func(c *Core, bus cpu.Bus) (uint32, error) {
		old := c.csrRead(csr)
		var operand uint32
		if funct3 >= 0b101 {
			operand = uimm
		} else {
			operand = c.GetRegister(rs1)
		}
		switch funct3 & 0x3 {
		case 0b01: // CSRRW / CSRRWI
			c.csrWrite(csr, operand)
		case 0b10: // CSRRS / CSRRSI
			c.csrWrite(csr, old|operand)
		case 0b11: // CSRRC / CSRRCI
			c.csrWrite(csr, old&^operand)
		}
		c.SetRegister(rd, old)
		return 1, nil
	}}, nil
}
