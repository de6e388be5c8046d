package cpu

// executeCB decodes and runs one CB-prefixed opcode, returning its
// machine-cycle cost. The three 2-bit/3-bit fields follow the standard
// bit-pattern layout: bits 7-6 select the group (rotate/shift, BIT, RES,
// SET), bits 5-3 select the bit index (for BIT/RES/SET) or the rotate/
// shift operation, and bits 2-0 select the operand register.
func (c *CPU) executeCB(op byte) (int, error) {
	r := reg8(op & 0x07)
	v := c.get8(r)

	group := op >> 6
	switch group {
	case 0: // rotate/shift/swap
		fn := (op >> 3) & 0x07
		var res byte
		switch fn {
		case 0:
			res = rlc(&c.Registers, v, false)
		case 1:
			res = rrc(&c.Registers, v, false)
		case 2:
			res = rl(&c.Registers, v, false)
		case 3:
			res = rrOp(&c.Registers, v, false)
		case 4:
			res = sla(&c.Registers, v)
		case 5:
			res = sra(&c.Registers, v)
		case 6:
			res = swap(&c.Registers, v)
		case 7:
			res = srl(&c.Registers, v)
		}
		c.set8(r, res)
		if r == regHLInd {
			return 4, nil
		}
		return 2, nil

	case 1: // BIT b,r
		b := uint((op >> 3) & 0x07)
		bitTest(&c.Registers, b, v)
		if r == regHLInd {
			return 3, nil
		}
		return 2, nil

	case 2: // RES b,r
		b := uint((op >> 3) & 0x07)
		c.set8(r, resBit(b, v))
		if r == regHLInd {
			return 4, nil
		}
		return 2, nil

	default: // SET b,r
		b := uint((op >> 3) & 0x07)
		c.set8(r, setBit(b, v))
		if r == regHLInd {
			return 4, nil
		}
		return 2, nil
	}
}
