package bytecode

import (
	"encoding/binary"

	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

// Bytecode is the compiler's output: a (opcodes, spans, constants) triple.
// Code is the raw instruction stream (opcode bytes with
// inline little-endian operands); Spans maps the byte offset of each
// instruction's opcode to the source span that produced it; Constants is the
// deduplicated constant pool, which may itself contain value.Function (a
// FunctionRef wrapper) for MakeClosure to reference by index.
type Bytecode struct {
	Code      []byte
	Spans     map[int]diag.Span
	Constants []value.Value
	// TopLevelLocals is the number of local slots the script-level scope
	// uses (every `let`/`var` outside any function body). The VM allocates
	// its initial frame's locals array with this size.
	TopLevelLocals int
}

// New returns an empty Bytecode ready for a Chunk to append to.
func New() *Bytecode {
	return &Bytecode{Spans: map[int]diag.Span{}}
}

// Chunk is the compiler's append-only builder over a Bytecode. It is kept
// separate from Bytecode itself so the VM only ever sees the finished,
// read-only shape.
type Chunk struct {
	bc *Bytecode
}

func NewChunk() *Chunk {
	return &Chunk{bc: New()}
}

func (c *Chunk) Bytecode() *Bytecode { return c.bc }

// SetTopLevelLocals records the script scope's local slot count.
func (c *Chunk) SetTopLevelLocals(n int16) { c.bc.TopLevelLocals = int(n) }

// Len returns the current instruction-stream length (the offset the next
// emitted instruction will start at).
func (c *Chunk) Len() int { return len(c.bc.Code) }

// Emit appends an opcode with no operand at the given span and returns the
// offset it was written at.
func (c *Chunk) Emit(op Op, span diag.Span) int {
	offset := len(c.bc.Code)
	c.bc.Spans[offset] = span
	c.bc.Code = append(c.bc.Code, byte(op))
	return offset
}

// EmitOperand16 appends an opcode with one 16-bit little-endian operand.
func (c *Chunk) EmitOperand16(op Op, operand int16, span diag.Span) int {
	offset := c.Emit(op, span)
	c.bc.Code = append(c.bc.Code, byte(operand), byte(operand>>8))
	return offset
}

// EmitOperand8 appends an opcode with one 8-bit operand (OpCall's argc).
func (c *Chunk) EmitOperand8(op Op, operand uint8, span diag.Span) int {
	offset := c.Emit(op, span)
	c.bc.Code = append(c.bc.Code, operand)
	return offset
}

// EmitClosure appends OpMakeClosure with its two i16 operands.
func (c *Chunk) EmitClosure(funcIdx, nUpvalues int16, span diag.Span) int {
	offset := c.Emit(OpMakeClosure, span)
	c.bc.Code = append(c.bc.Code, byte(funcIdx), byte(funcIdx>>8), byte(nUpvalues), byte(nUpvalues>>8))
	return offset
}

// PatchOperand16 overwrites the 16-bit operand at instrOffset+1 (the byte
// immediately after the opcode), used for backpatching forward jumps.
func (c *Chunk) PatchOperand16(instrOffset int, operand int16) {
	c.bc.Code[instrOffset+1] = byte(operand)
	c.bc.Code[instrOffset+2] = byte(operand >> 8)
}

// AddConstant appends v to the constant pool, deduplicating numbers and
// strings (cheap-to-compare), and returns its index.
func (c *Chunk) AddConstant(v value.Value) int16 {
	for i, existing := range c.bc.Constants {
		switch t := v.(type) {
		case value.Number:
			if e, ok := existing.(value.Number); ok && e == t {
				return int16(i)
			}
		case value.String:
			if e, ok := existing.(value.String); ok && e == t {
				return int16(i)
			}
		}
	}
	c.bc.Constants = append(c.bc.Constants, v)
	return int16(len(c.bc.Constants) - 1)
}

// AddFunctionConstant appends a function constant (not deduplicated — each
// function body is distinct by construction) and returns its index.
func (c *Chunk) AddFunctionConstant(ref *value.FunctionRef) int16 {
	c.bc.Constants = append(c.bc.Constants, value.Function{Ref: ref})
	return int16(len(c.bc.Constants) - 1)
}

// ReadOperand16 decodes a little-endian i16 operand starting at offset.
func ReadOperand16(code []byte, offset int) int16 {
	return int16(binary.LittleEndian.Uint16(code[offset : offset+2]))
}

// ReadOperand8 decodes a u8 operand at offset.
func ReadOperand8(code []byte, offset int) uint8 {
	return code[offset]
}
