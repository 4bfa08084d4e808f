package vm

import "fmt"

// EncodeScript serializes a script to the wire form a lock_script or
// unlock_script byte slice carries: one opcode byte, then for PushB a
// one-byte length followed by that many data bytes, for PushInt eight
// big-endian bytes, for Copy/ChkTimelock one operand byte, and nothing
// further for the rest.
func EncodeScript(ins []Instruction) ([]byte, error) {
	out := make([]byte, 0, len(ins)*2)
	for _, in := range ins {
		out = append(out, byte(in.Op))
		switch in.Op {
		case OpPushB:
			if len(in.Operand) > 255 {
				return nil, fmt.Errorf("push operand too long: %d bytes", len(in.Operand))
			}
			out = append(out, byte(len(in.Operand)))
			out = append(out, in.Operand...)
		case OpPushInt:
			if len(in.Operand) != 8 {
				return nil, fmt.Errorf("push-int operand must be 8 bytes, got %d", len(in.Operand))
			}
			out = append(out, in.Operand...)
		case OpCopy, OpChkTimelock:
			if len(in.Operand) != 1 {
				return nil, fmt.Errorf("%s operand must be 1 byte, got %d", in.Op, len(in.Operand))
			}
			out = append(out, in.Operand...)
		}
	}
	return out, nil
}

// DecodeScript parses raw into an instruction sequence, failing on a
// truncated operand or an unrecognized opcode byte (Syntax per §7).
func DecodeScript(raw []byte) ([]Instruction, error) {
	var out []Instruction
	i := 0
	for i < len(raw) {
		op := Opcode(raw[i])
		i++
		switch op {
		case OpPushB:
			if i >= len(raw) {
				return nil, fmt.Errorf("truncated push-b length")
			}
			n := int(raw[i])
			i++
			if i+n > len(raw) {
				return nil, fmt.Errorf("truncated push-b operand")
			}
			out = append(out, Instruction{Op: op, Operand: append([]byte{}, raw[i:i+n]...)})
			i += n
		case OpPushInt:
			if i+8 > len(raw) {
				return nil, fmt.Errorf("truncated push-int operand")
			}
			out = append(out, Instruction{Op: op, Operand: append([]byte{}, raw[i:i+8]...)})
			i += 8
		case OpCopy, OpChkTimelock:
			if i >= len(raw) {
				return nil, fmt.Errorf("truncated %s operand", op)
			}
			out = append(out, Instruction{Op: op, Operand: []byte{raw[i]}})
			i++
		case OpDrop, OpSwap, OpEq, OpAdd, OpSub, OpNot, OpBlake256, OpBlake160, OpChkSig, OpChkMultiSig, OpEof:
			out = append(out, Instruction{Op: op})
		default:
			return nil, fmt.Errorf("unknown opcode 0x%02x", byte(op))
		}
	}
	return out, nil
}
