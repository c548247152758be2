// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

// fetch reads the little-endian opcode word at a flash byte address.
func (cpu *Cpu) fetch(addr uint32) uint16 {
	if int(addr)+1 >= len(cpu.flash) {
		return 0xffff
	}
	return uint16(cpu.flash[addr]) | uint16(cpu.flash[addr+1])<<8
}

// twoWord reports whether op is followed by a 16-bit operand.
func twoWord(op uint16) bool {
	return op&0xfe0c == 0x940c || op&0xfc0f == 0x9000
}

func (cpu *Cpu) flag(bit int) bool {
	return cpu.Data[REG_SREG]&(1<<bit) != 0
}

func (cpu *Cpu) setFlag(bit int, on bool) {
	if on {
		cpu.Data[REG_SREG] |= 1 << bit
	} else {
		cpu.Data[REG_SREG] &^= 1 << bit
	}
}

// flagsZNS sets Z, N and S from a result. V must already be set.
func (cpu *Cpu) flagsZNS(res byte) {
	cpu.setFlag(SREG_Z, res == 0)
	cpu.setFlag(SREG_N, res&0x80 != 0)
	cpu.setFlag(SREG_S, cpu.flag(SREG_N) != cpu.flag(SREG_V))
}

func (cpu *Cpu) flagsLogic(res byte) {
	cpu.setFlag(SREG_V, false)
	cpu.flagsZNS(res)
}

func (cpu *Cpu) flagsAdd(d, r, res byte) {
	carries := (d & r) | (r &^ res) | (^res & d)
	cpu.setFlag(SREG_H, carries&0x08 != 0)
	cpu.setFlag(SREG_C, carries&0x80 != 0)
	cpu.setFlag(SREG_V, ((d&r&^res)|(^d&^r&res))&0x80 != 0)
	cpu.flagsZNS(res)
}

func (cpu *Cpu) flagsSub(d, r, res byte) {
	borrows := (^d & r) | (r & res) | (res &^ d)
	cpu.setFlag(SREG_H, borrows&0x08 != 0)
	cpu.setFlag(SREG_C, borrows&0x80 != 0)
	cpu.setFlag(SREG_V, ((d&^r&^res)|(^d&r&res))&0x80 != 0)
	cpu.flagsZNS(res)
}

// flagsSubCarry is flagsSub for CPC/SBC/SBCI, where Z is only ever cleared.
func (cpu *Cpu) flagsSubCarry(d, r, res byte) {
	z := cpu.flag(SREG_Z)
	cpu.flagsSub(d, r, res)
	cpu.setFlag(SREG_Z, z && res == 0)
}

func (cpu *Cpu) carry() byte {
	if cpu.flag(SREG_C) {
		return 1
	}
	return 0
}

func (cpu *Cpu) sp() uint16 {
	return uint16(cpu.Data[REG_SPL]) | uint16(cpu.Data[REG_SPH])<<8
}

func (cpu *Cpu) setSp(sp uint16) {
	cpu.Data[REG_SPL] = byte(sp)
	cpu.Data[REG_SPH] = byte(sp >> 8)
}

func (cpu *Cpu) push(value byte) (ok bool) {
	sp := cpu.sp()
	if sp < cpu.variant.RamStart || int(sp) >= len(cpu.Data) {
		cpu.crash(ErrStackFull)
		return
	}
	cpu.Data[sp] = value
	cpu.setSp(sp - 1)
	return true
}

func (cpu *Cpu) pop() (value byte, ok bool) {
	sp := cpu.sp()
	if sp >= cpu.variant.RamEnd {
		cpu.crash(ErrStackEmpty)
		return
	}
	sp++
	cpu.setSp(sp)
	return cpu.Data[sp], true
}

// pushPc pushes a return address, low byte first.
func (cpu *Cpu) pushPc(addr uint32) (ok bool) {
	word := addr >> 1
	for n := range cpu.variant.PcBytes() {
		if !cpu.push(byte(word >> (8 * n))) {
			return
		}
	}
	return true
}

func (cpu *Cpu) popPc() (addr uint32, ok bool) {
	var word uint32
	for range cpu.variant.PcBytes() {
		var b byte
		b, ok = cpu.pop()
		if !ok {
			return
		}
		word = word<<8 | uint32(b)
	}
	addr = word << 1
	return
}

// read loads a byte from data space.
func (cpu *Cpu) read(addr uint16) (value byte, ok bool) {
	if int(addr) >= len(cpu.Data) {
		cpu.crash(ErrDataRange)
		return
	}
	return cpu.Data[addr], true
}

// write stores a byte to data space, applying I/O port side effects.
func (cpu *Cpu) write(addr uint16, value byte) (ok bool) {
	if int(addr) >= len(cpu.Data) {
		cpu.crash(ErrDataRange)
		return
	}

	for _, port := range cpu.variant.Ports {
		switch addr {
		case port.Pin:
			// Writing ones to PINx toggles PORTx.
			cpu.writePort(port.Port, cpu.Data[port.Port]^value)
			return true
		case port.Port:
			cpu.writePort(port.Port, value)
			return true
		}
	}

	cpu.Data[addr] = value
	return true
}

// writePort updates PORTx and raises the IRQ of every pin that changed.
func (cpu *Cpu) writePort(addr uint16, value byte) {
	changed := cpu.Data[addr] ^ value
	cpu.Data[addr] = value

	pins := cpu.irq[addr]
	for n := range PORT_PINS {
		if changed&(1<<n) != 0 {
			pins[n].Raise(uint32(value>>n) & 1)
		}
	}
}

// skip steps over the instruction at next.
func (cpu *Cpu) skip(next uint32, cycles uint64) (uint32, uint64) {
	if twoWord(cpu.fetch(next)) {
		return next + 4, cycles + 2
	}
	return next + 2, cycles + 1
}

// step executes one instruction.
func (cpu *Cpu) step() {
	if cpu.Pc > cpu.CodeEnd {
		cpu.crash(ErrPcRange)
		return
	}

	op := cpu.fetch(cpu.Pc)
	next := cpu.Pc + 2
	cycles := uint64(1)

	// Common operand fields.
	d := (op >> 4) & 0x1f
	r := (op & 0x0f) | ((op >> 5) & 0x10)
	dImm := 16 + ((op >> 4) & 0x0f)
	kImm := byte((op & 0x0f) | ((op >> 4) & 0xf0))
	ioA := (op & 0x0f) | ((op >> 5) & 0x30)
	bitA := IO_BASE + ((op >> 3) & 0x1f)
	bit := op & 0x07

	reg := cpu.Data

	switch op & 0xf000 {
	case 0x0000:
		switch {
		case op == 0x0000: // NOP
		case op&0xff00 == 0x0100: // MOVW
			dw, rw := ((op>>4)&0x0f)*2, (op&0x0f)*2
			reg[dw], reg[dw+1] = reg[rw], reg[rw+1]
		case op&0xfc00 == 0x0400: // CPC
			res := reg[d] - reg[r] - cpu.carry()
			cpu.flagsSubCarry(reg[d], reg[r], res)
		case op&0xfc00 == 0x0800: // SBC
			res := reg[d] - reg[r] - cpu.carry()
			cpu.flagsSubCarry(reg[d], reg[r], res)
			reg[d] = res
		case op&0xfc00 == 0x0c00: // ADD
			res := reg[d] + reg[r]
			cpu.flagsAdd(reg[d], reg[r], res)
			reg[d] = res
		default:
			cpu.crash(ErrOpcode(op))
			return
		}
	case 0x1000:
		switch op & 0xfc00 {
		case 0x1000: // CPSE
			if reg[d] == reg[r] {
				next, cycles = cpu.skip(next, cycles)
			}
		case 0x1400: // CP
			cpu.flagsSub(reg[d], reg[r], reg[d]-reg[r])
		case 0x1800: // SUB
			res := reg[d] - reg[r]
			cpu.flagsSub(reg[d], reg[r], res)
			reg[d] = res
		case 0x1c00: // ADC
			res := reg[d] + reg[r] + cpu.carry()
			cpu.flagsAdd(reg[d], reg[r], res)
			reg[d] = res
		}
	case 0x2000:
		switch op & 0xfc00 {
		case 0x2000: // AND
			reg[d] &= reg[r]
			cpu.flagsLogic(reg[d])
		case 0x2400: // EOR
			reg[d] ^= reg[r]
			cpu.flagsLogic(reg[d])
		case 0x2800: // OR
			reg[d] |= reg[r]
			cpu.flagsLogic(reg[d])
		case 0x2c00: // MOV
			reg[d] = reg[r]
		}
	case 0x3000: // CPI
		cpu.flagsSub(reg[dImm], kImm, reg[dImm]-kImm)
	case 0x4000: // SBCI
		res := reg[dImm] - kImm - cpu.carry()
		cpu.flagsSubCarry(reg[dImm], kImm, res)
		reg[dImm] = res
	case 0x5000: // SUBI
		res := reg[dImm] - kImm
		cpu.flagsSub(reg[dImm], kImm, res)
		reg[dImm] = res
	case 0x6000: // ORI
		reg[dImm] |= kImm
		cpu.flagsLogic(reg[dImm])
	case 0x7000: // ANDI
		reg[dImm] &= kImm
		cpu.flagsLogic(reg[dImm])
	case 0x9000:
		var ok bool
		next, cycles, ok = cpu.step9(op, next, cycles, d, bitA, bit)
		if !ok {
			return
		}
	case 0xb000:
		if op&0x0800 == 0 { // IN
			var ok bool
			reg[d], ok = cpu.read(IO_BASE + ioA)
			if !ok {
				return
			}
		} else if !cpu.write(IO_BASE+ioA, reg[d]) { // OUT
			return
		}
	case 0xc000: // RJMP
		next = uint32(int32(next) + int32(int16(op<<4)>>4)*2)
		cycles = 2
	case 0xd000: // RCALL
		if !cpu.pushPc(next) {
			return
		}
		next = uint32(int32(next) + int32(int16(op<<4)>>4)*2)
		cycles = 3
	case 0xe000: // LDI
		reg[dImm] = kImm
	case 0xf000:
		if op&0x0800 != 0 {
			cpu.crash(ErrOpcode(op))
			return
		}
		// BRBS, BRBC
		set := cpu.flag(int(bit))
		if set == (op&0x0400 == 0) {
			next = uint32(int32(next) + int32(int8(byte(op>>3)<<1)>>1)*2)
			cycles = 2
		}
	default:
		cpu.crash(ErrOpcode(op))
		return
	}

	if cpu.State == StateCrashed {
		return
	}

	cpu.Pc = next
	cpu.Cycle += cycles
}

// step9 executes the 0x9xxx opcode group.
func (cpu *Cpu) step9(op uint16, next uint32, cycles uint64, d uint16, bitA uint16, bit uint16) (uint32, uint64, bool) {
	reg := cpu.Data

	xptr := func() uint16 {
		return uint16(reg[26]) | uint16(reg[27])<<8
	}
	setX := func(x uint16) {
		reg[26], reg[27] = byte(x), byte(x>>8)
	}
	zptr := func() uint32 {
		return uint32(reg[30]) | uint32(reg[31])<<8
	}

	switch {
	case op&0xfe0f == 0x9000: // LDS
		value, ok := cpu.read(cpu.fetch(next))
		if !ok {
			return next, cycles, false
		}
		reg[d] = value
		return next + 2, 2, true
	case op&0xfe0f == 0x9200: // STS
		if !cpu.write(cpu.fetch(next), reg[d]) {
			return next, cycles, false
		}
		return next + 2, 2, true
	case op&0xfe0e == 0x9004: // LPM Rd, Z / Z+
		z := zptr()
		if int(z) >= len(cpu.flash) {
			cpu.crash(ErrDataRange)
			return next, cycles, false
		}
		reg[d] = cpu.flash[z]
		if op&1 != 0 {
			z++
			reg[30], reg[31] = byte(z), byte(z>>8)
		}
		return next, 3, true
	case op&0xfe0f == 0x900f: // POP
		value, ok := cpu.pop()
		if !ok {
			return next, cycles, false
		}
		reg[d] = value
		return next, 2, true
	case op&0xfe0f == 0x920f: // PUSH
		if !cpu.push(reg[d]) {
			return next, cycles, false
		}
		return next, 2, true
	case op&0xfe0c == 0x900c: // LD Rd, X / X+ / -X
		x := xptr()
		if op&3 == 2 {
			x--
		}
		value, ok := cpu.read(x)
		if !ok {
			return next, cycles, false
		}
		reg[d] = value
		if op&3 == 1 {
			x++
		}
		setX(x)
		return next, 2, true
	case op&0xfe0c == 0x920c: // ST X, Rr / X+ / -X
		x := xptr()
		if op&3 == 2 {
			x--
		}
		if !cpu.write(x, reg[d]) {
			return next, cycles, false
		}
		if op&3 == 1 {
			x++
		}
		setX(x)
		return next, 2, true
	case op&0xfe0e == 0x940c: // JMP
		return cpu.jumpTarget(op, next), 3, true
	case op&0xfe0e == 0x940e: // CALL
		if !cpu.pushPc(next + 2) {
			return next, cycles, false
		}
		return cpu.jumpTarget(op, next), 4, true
	case op&0xff8f == 0x9408: // BSET (SEC, SEZ, ..., SEI)
		cpu.setFlag(int((op>>4)&7), true)
	case op&0xff8f == 0x9488: // BCLR (CLC, CLZ, ..., CLI)
		cpu.setFlag(int((op>>4)&7), false)
	case op == 0x9409: // IJMP
		return zptr() << 1, 2, true
	case op == 0x9509: // ICALL
		if !cpu.pushPc(next) {
			return next, cycles, false
		}
		return zptr() << 1, 3, true
	case op == 0x9508, op == 0x9518: // RET, RETI
		addr, ok := cpu.popPc()
		if !ok {
			return next, cycles, false
		}
		if op == 0x9518 {
			cpu.setFlag(SREG_I, true)
		}
		return addr, 4, true
	case op == 0x9588: // SLEEP
		if cpu.flag(SREG_I) {
			cpu.State = StateSleeping
		} else {
			// Nothing can ever wake the core.
			cpu.State = StateDone
		}
	case op == 0x9598, op == 0x95a8: // BREAK, WDR
	case op == 0x95c8: // LPM
		z := zptr()
		if int(z) >= len(cpu.flash) {
			cpu.crash(ErrDataRange)
			return next, cycles, false
		}
		reg[0] = cpu.flash[z]
		return next, 3, true
	case op&0xfe08 == 0x9400: // single register ALU
		rd := reg[d]
		var res byte
		switch op & 0x000f {
		case 0x0: // COM
			res = ^rd
			cpu.setFlag(SREG_C, true)
			cpu.flagsLogic(res)
		case 0x1: // NEG
			res = 0 - rd
			cpu.flagsSub(0, rd, res)
		case 0x2: // SWAP
			res = rd<<4 | rd>>4
		case 0x3: // INC
			res = rd + 1
			cpu.setFlag(SREG_V, res == 0x80)
			cpu.flagsZNS(res)
		case 0x5: // ASR
			res = byte(int8(rd) >> 1)
			cpu.shiftFlags(rd, res)
		case 0x6: // LSR
			res = rd >> 1
			cpu.shiftFlags(rd, res)
		case 0x7: // ROR
			res = rd>>1 | cpu.carry()<<7
			cpu.shiftFlags(rd, res)
		default:
			cpu.crash(ErrOpcode(op))
			return next, cycles, false
		}
		reg[d] = res
	case op&0xfe0f == 0x940a: // DEC
		res := reg[d] - 1
		cpu.setFlag(SREG_V, res == 0x7f)
		cpu.flagsZNS(res)
		reg[d] = res
	case op&0xfe00 == 0x9600: // ADIW, SBIW
		dw := 24 + ((op>>4)&3)*2
		k := (op & 0x0f) | ((op >> 2) & 0x30)
		val := uint16(reg[dw]) | uint16(reg[dw+1])<<8
		var res uint16
		if op&0x0100 == 0 {
			res = val + k
			cpu.setFlag(SREG_V, val&0x8000 == 0 && res&0x8000 != 0)
			cpu.setFlag(SREG_C, res&0x8000 == 0 && val&0x8000 != 0)
		} else {
			res = val - k
			cpu.setFlag(SREG_V, val&0x8000 != 0 && res&0x8000 == 0)
			cpu.setFlag(SREG_C, res&0x8000 != 0 && val&0x8000 == 0)
		}
		cpu.setFlag(SREG_N, res&0x8000 != 0)
		cpu.setFlag(SREG_Z, res == 0)
		cpu.setFlag(SREG_S, cpu.flag(SREG_N) != cpu.flag(SREG_V))
		reg[dw], reg[dw+1] = byte(res), byte(res>>8)
		return next, 2, true
	case op&0xff00 == 0x9800, op&0xff00 == 0x9a00: // CBI, SBI
		value, ok := cpu.read(bitA)
		if !ok {
			return next, cycles, false
		}
		if op&0x0200 != 0 {
			value |= 1 << bit
		} else {
			value &^= 1 << bit
		}
		if !cpu.write(bitA, value) {
			return next, cycles, false
		}
		return next, 2, true
	case op&0xff00 == 0x9900, op&0xff00 == 0x9b00: // SBIC, SBIS
		value, ok := cpu.read(bitA)
		if !ok {
			return next, cycles, false
		}
		set := value&(1<<bit) != 0
		if set == (op&0x0200 != 0) {
			next, cycles = cpu.skip(next, cycles)
		}
	case op&0xfc00 == 0x9c00: // MUL
		r := (op & 0x0f) | ((op >> 5) & 0x10)
		res := uint16(reg[d]) * uint16(reg[r])
		reg[0], reg[1] = byte(res), byte(res>>8)
		cpu.setFlag(SREG_C, res&0x8000 != 0)
		cpu.setFlag(SREG_Z, res == 0)
		return next, 2, true
	default:
		cpu.crash(ErrOpcode(op))
		return next, cycles, false
	}

	return next, cycles, true
}

// shiftFlags sets flags for ASR, LSR and ROR.
func (cpu *Cpu) shiftFlags(rd, res byte) {
	cpu.setFlag(SREG_C, rd&1 != 0)
	cpu.setFlag(SREG_N, res&0x80 != 0)
	cpu.setFlag(SREG_V, cpu.flag(SREG_N) != cpu.flag(SREG_C))
	cpu.setFlag(SREG_Z, res == 0)
	cpu.setFlag(SREG_S, cpu.flag(SREG_N) != cpu.flag(SREG_V))
}

// jumpTarget decodes the 22-bit word address of JMP and CALL.
func (cpu *Cpu) jumpTarget(op uint16, next uint32) uint32 {
	hi := uint32((op>>3)&0x3e) | uint32(op&1)
	return (hi<<16 | uint32(cpu.fetch(next))) << 1
}
