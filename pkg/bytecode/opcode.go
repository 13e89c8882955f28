// Package bytecode defines Atlas's bytecode format: a single-byte opcode
// stream with inline little-endian operands, a deduplicated constant pool,
// and a parallel span table for diagnostics. This is the compiler's output
// and the VM's input.
package bytecode

// Op is a single bytecode instruction opcode. Every Op in this set must be
// executable by the VM (pkg/vm) — an Op defined here but not dispatched
// there is a defect.
type Op byte

const (
	// --- Constants ---
	OpConstant Op = iota // Constant(i16): push constants[i16]
	OpNull               // push null
	OpTrue               // push true
	OpFalse              // push false

	// --- Variables ---
	OpGetLocal    // GetLocal(i16): push locals[i16]
	OpSetLocal    // SetLocal(i16): locals[i16] = peek (leaves value on stack)
	OpGetGlobal   // GetGlobal(i16): push globals[names[i16]]
	OpSetGlobal   // SetGlobal(i16): globals[names[i16]] = peek; errors if immutable
	OpGetUpvalue  // GetUpvalue(i16): push closure.upvalues[i16]
	OpSetUpvalue  // SetUpvalue(i16): closure.upvalues[i16] = peek
	OpMakeClosure // MakeClosure(i16 func, i16 nupvals): pop nupvals values, pair with constants[func], push Closure

	// --- Arithmetic ---
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNegate

	// --- Comparison ---
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual

	// --- Logical ---
	OpNot
	OpAnd // short-circuit AND if ever emitted/executed (compiler lowers && to jumps instead, see pkg/compiler)
	OpOr  // short-circuit OR, same note

	// --- Control flow ---
	OpJump        // Jump(i16): ip += i16
	OpJumpIfFalse // JumpIfFalse(i16): pop; if falsy, ip += i16
	OpLoop        // Loop(i16): ip -= i16 (back-edge)

	// --- Calls ---
	OpCall   // Call(u8 argc)
	OpReturn // pop frame, push result

	// --- Arrays ---
	OpArray    // Array(i16 n): pop n values, push Array
	OpGetIndex // pop index, pop collection, push element
	OpSetIndex // pop value, pop index, pop collection, push the (possibly cloned) collection (write-back handled by compiler emission, see pkg/compiler)

	// --- Stack ---
	OpPop
	OpDup
	OpRetain // peek; if the value is a handle-backed collection, mark it aliased (see pkg/value's Retainable)

	// --- Pattern match ---
	OpIsOptionSome
	OpIsOptionNone
	OpIsResultOk
	OpIsResultErr
	OpExtractOptionValue
	OpExtractResultValue
	OpIsArray
	OpGetArrayLen

	// --- Terminal ---
	OpHalt

	opCount
)

// operandWidths maps each Op to the number of operand bytes following it in
// the instruction stream. OpCall's single operand is 1 byte (u8 argc);
// every other operand-bearing Op uses a 2-byte (i16) little-endian operand.
var operandWidths = [opCount]int{
	OpConstant: 2,
	OpNull:     0,
	OpTrue:     0,
	OpFalse:    0,

	OpGetLocal:    2,
	OpSetLocal:    2,
	OpGetGlobal:   2,
	OpSetGlobal:   2,
	OpGetUpvalue:  2,
	OpSetUpvalue:  2,
	OpMakeClosure: 4, // two i16 operands

	OpAdd: 0, OpSub: 0, OpMul: 0, OpDiv: 0, OpMod: 0, OpNegate: 0,

	OpEqual: 0, OpNotEqual: 0, OpLess: 0, OpLessEqual: 0, OpGreater: 0, OpGreaterEqual: 0,

	OpNot: 0, OpAnd: 0, OpOr: 0,

	OpJump: 2, OpJumpIfFalse: 2, OpLoop: 2,

	OpCall: 1, OpReturn: 0,

	OpArray: 2, OpGetIndex: 0, OpSetIndex: 0,

	OpPop: 0, OpDup: 0, OpRetain: 0,

	OpIsOptionSome: 0, OpIsOptionNone: 0, OpIsResultOk: 0, OpIsResultErr: 0,
	OpExtractOptionValue: 0, OpExtractResultValue: 0, OpIsArray: 0, OpGetArrayLen: 0,

	OpHalt: 0,
}

// OperandWidth returns the number of operand bytes following this opcode in
// the instruction stream.
func (op Op) OperandWidth() int {
	if int(op) < 0 || int(op) >= int(opCount) {
		return 0
	}
	return operandWidths[op]
}

var opNames = [opCount]string{
	OpConstant: "CONSTANT", OpNull: "NULL", OpTrue: "TRUE", OpFalse: "FALSE",
	OpGetLocal: "GET_LOCAL", OpSetLocal: "SET_LOCAL",
	OpGetGlobal: "GET_GLOBAL", OpSetGlobal: "SET_GLOBAL",
	OpGetUpvalue: "GET_UPVALUE", OpSetUpvalue: "SET_UPVALUE",
	OpMakeClosure: "MAKE_CLOSURE",
	OpAdd:         "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD", OpNegate: "NEGATE",
	OpEqual: "EQUAL", OpNotEqual: "NOT_EQUAL", OpLess: "LESS", OpLessEqual: "LESS_EQUAL",
	OpGreater: "GREATER", OpGreaterEqual: "GREATER_EQUAL",
	OpNot: "NOT", OpAnd: "AND", OpOr: "OR",
	OpJump: "JUMP", OpJumpIfFalse: "JUMP_IF_FALSE", OpLoop: "LOOP",
	OpCall: "CALL", OpReturn: "RETURN",
	OpArray: "ARRAY", OpGetIndex: "GET_INDEX", OpSetIndex: "SET_INDEX",
	OpPop: "POP", OpDup: "DUP", OpRetain: "RETAIN",
	OpIsOptionSome: "IS_OPTION_SOME", OpIsOptionNone: "IS_OPTION_NONE",
	OpIsResultOk: "IS_RESULT_OK", OpIsResultErr: "IS_RESULT_ERR",
	OpExtractOptionValue: "EXTRACT_OPTION_VALUE", OpExtractResultValue: "EXTRACT_RESULT_VALUE",
	OpIsArray: "IS_ARRAY", OpGetArrayLen: "GET_ARRAY_LEN",
	OpHalt: "HALT",
}

func (op Op) String() string {
	if int(op) < 0 || int(op) >= int(opCount) {
		return "UNKNOWN"
	}
	if n := opNames[op]; n != "" {
		return n
	}
	return "UNKNOWN"
}
