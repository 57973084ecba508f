package bytecode

import "fmt"

type (
	Opcode uint16

	// RegType selects which interpretation of a register's bits
	// an instruction operates on.
	RegType uint8
)

// Opcodes are encoded as u16, operands follow with fixed widths.
const (
	OpFunc Opcode = iota // u16 regCount, u16 argCount
	OpCall               // u32 funcIndex
	OpRet                // u16 reg
	OpSet                // u8 type, u16 dst, imm
	OpMov                // u16 dst, u16 src
	OpAdd                // u8 type, u16 dst, u16 a, u16 b
	OpSub
	OpMul
	OpDiv
	OpMod
	OpCmp // u8 type, u16 a, u16 b
	OpJmp // u32 labelIndex
	OpJl
	OpJg
	OpJe
	OpJne
	OpJz
	OpJnz
	OpPush // u8 type, u16 reg
	OpPop  // u8 type, u16 reg

	opCount
)

const (
	S8 RegType = iota
	U8
	S16
	U16
	S32
	U32
	S64
	U64
	Float
	Double
	Pointer

	regTypeCount
)

var opNames = [...]string{
	OpFunc: "func",
	OpCall: "call",
	OpRet:  "ret",
	OpSet:  "set",
	OpMov:  "mov",
	OpAdd:  "add",
	OpSub:  "sub",
	OpMul:  "mul",
	OpDiv:  "div",
	OpMod:  "mod",
	OpCmp:  "cmp",
	OpJmp:  "jmp",
	OpJl:   "jl",
	OpJg:   "jg",
	OpJe:   "je",
	OpJne:  "jne",
	OpJz:   "jz",
	OpJnz:  "jnz",
	OpPush: "push",
	OpPop:  "pop",
}

// operand bytes following the opcode, set is variable
var opSizes = [...]int{
	OpFunc: 4,
	OpCall: 4,
	OpRet:  2,
	OpSet:  -1,
	OpMov:  4,
	OpAdd:  7,
	OpSub:  7,
	OpMul:  7,
	OpDiv:  7,
	OpMod:  7,
	OpCmp:  5,
	OpJmp:  4,
	OpJl:   4,
	OpJg:   4,
	OpJe:   4,
	OpJne:  4,
	OpJz:   4,
	OpJnz:  4,
	OpPush: 3,
	OpPop:  3,
}

var regTypeNames = [...]string{
	S8:      "s8",
	U8:      "u8",
	S16:     "s16",
	U16:     "u16",
	S32:     "s32",
	U32:     "u32",
	S64:     "s64",
	U64:     "u64",
	Float:   "float",
	Double:  "double",
	Pointer: "pointer",
}

var regTypeSizes = [...]int{
	S8:      1,
	U8:      1,
	S16:     2,
	U16:     2,
	S32:     4,
	U32:     4,
	S64:     8,
	U64:     8,
	Float:   4,
	Double:  8,
	Pointer: 4,
}

func (op Opcode) Valid() bool { return op < opCount }

func (op Opcode) IsMath() bool { return op >= OpAdd && op <= OpMod }

func (op Opcode) IsJump() bool { return op >= OpJmp && op <= OpJnz }

// OperandSize returns the number of operand bytes after the opcode.
// t is consulted for set only.
func (op Opcode) OperandSize(t RegType) int {
	if !op.Valid() {
		return -1
	}

	if op == OpSet {
		return 3 + t.Size()
	}

	return opSizes[op]
}

func (op Opcode) String() string {
	if op.Valid() {
		return opNames[op]
	}

	return fmt.Sprintf("Opcode(%d)", uint16(op))
}

func (t RegType) Valid() bool { return t < regTypeCount }

// Size is the immediate width of t in bytes.
func (t RegType) Size() int {
	if !t.Valid() {
		return 0
	}

	return regTypeSizes[t]
}

func (t RegType) IsFloat() bool { return t == Float || t == Double }

func (t RegType) IsSigned() bool {
	switch t {
	case S8, S16, S32, S64, Float, Double:
		return true
	}

	return false
}

func (t RegType) String() string {
	if t.Valid() {
		return regTypeNames[t]
	}

	return fmt.Sprintf("RegType(%d)", uint8(t))
}

func RegTypeByName(name string) (RegType, bool) {
	for t, n := range regTypeNames {
		if n == name {
			return RegType(t), true
		}
	}

	return 0, false
}
