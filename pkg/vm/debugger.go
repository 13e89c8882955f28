package vm

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/atl-lang/atlas-sub003/pkg/bytecode"
	"github.com/atl-lang/atlas-sub003/pkg/value"
)

// Disassemble renders bc as a human-readable instruction listing, one line
// per opcode: its byte offset, mnemonic, and decoded operand. Constant-pool
// operands (OpConstant, OpGetGlobal, OpSetGlobal) also print the constant's
// Display() form so a reader doesn't have to cross-reference the pool by
// hand. This is what the CLI's `disasm` subcommand prints.
func Disassemble(bc *bytecode.Bytecode) string {
	var b strings.Builder
	code := bc.Code
	for offset := 0; offset < len(code); {
		op := bytecode.Op(code[offset])
		fmt.Fprintf(&b, "%04d  %s", offset, op)
		switch op.OperandWidth() {
		case 1:
			operand := bytecode.ReadOperand8(code, offset+1)
			fmt.Fprintf(&b, " %d", operand)
		case 2:
			operand := bytecode.ReadOperand16(code, offset+1)
			fmt.Fprintf(&b, " %d", operand)
			annotateConstant(&b, bc, op, operand)
		case 4:
			funcIdx := bytecode.ReadOperand16(code, offset+1)
			nUpvalues := bytecode.ReadOperand16(code, offset+3)
			fmt.Fprintf(&b, " %d %d", funcIdx, nUpvalues)
		}
		b.WriteByte('\n')
		offset += 1 + op.OperandWidth()
	}
	return b.String()
}

// DebugDump renders v's full Go-level structure (refcounts, handle sharing,
// nested collection contents) rather than its source-level Display() form.
// Used behind the CLI's --debug flag, where a user chasing an ownership or
// CoW bug needs to see past a value's public face.
func DebugDump(v value.Value) string {
	return spew.Sdump(v)
}

func annotateConstant(b *strings.Builder, bc *bytecode.Bytecode, op bytecode.Op, idx int16) {
	switch op {
	case bytecode.OpConstant, bytecode.OpGetGlobal, bytecode.OpSetGlobal:
		if int(idx) >= 0 && int(idx) < len(bc.Constants) {
			fmt.Fprintf(b, "  ; %s", bc.Constants[idx].Display())
		}
	}
}
