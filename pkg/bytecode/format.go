// File format: Atlas's .atb bytecode serialization.
//
// Binary layout, all integers little-endian:
//
//   [Header]
//     Magic (4 bytes): "ATB\0"
//     Version (4 bytes): format version, currently 1
//
//   [Top-level locals]
//     Count (4 bytes): script frame local slot count (Bytecode.TopLevelLocals)
//
//   [Constants section]
//     Count (4 bytes)
//     For each constant: type byte + type-specific data
//
//   [Debug info section]
//     Count (4 bytes)
//     For each entry: offset (4 bytes) + span (file len+bytes, line, col, length)
//
//   [Code section]
//     Length (4 bytes)
//     Raw opcode stream bytes
//
//   [Checksum trailer]
//     32 bytes: BLAKE2b-256 of every byte preceding the trailer
//
// Files with a mismatched version, wrong magic, or failing checksum are
// rejected. See DESIGN.md for why this module commits to a concrete
// on-disk format rather than leaving bytecode serialization unimplemented.
package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/value"
	"golang.org/x/crypto/blake2b"
)

var Magic = [4]byte{'A', 'T', 'B', 0}

const FormatVersion uint32 = 1

const (
	constTypeNull byte = iota
	constTypeBool
	constTypeNumber
	constTypeString
	constTypeFunction
)

// Encode serializes bc to w in the .atb format, appending a BLAKE2b-256
// checksum trailer over everything written before it.
func Encode(bc *Bytecode, w io.Writer) error {
	var buf bytes.Buffer
	if err := writeHeader(&buf); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(bc.TopLevelLocals)); err != nil {
		return fmt.Errorf("write top-level local count: %w", err)
	}
	if err := writeConstants(&buf, bc.Constants); err != nil {
		return fmt.Errorf("write constants: %w", err)
	}
	if err := writeSpans(&buf, bc.Spans); err != nil {
		return fmt.Errorf("write spans: %w", err)
	}
	if err := writeCode(&buf, bc.Code); err != nil {
		return fmt.Errorf("write code: %w", err)
	}
	sum := blake2b.Sum256(buf.Bytes())
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(sum[:])
	return err
}

// Decode reads a .atb file from r, rejecting mismatched magic, mismatched
// version, or a failing checksum.
func Decode(r io.Reader) (*Bytecode, error) {
	all, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(all) < blake2b.Size256 {
		return nil, fmt.Errorf("atb: truncated file")
	}
	body, trailer := all[:len(all)-blake2b.Size256], all[len(all)-blake2b.Size256:]
	want := blake2b.Sum256(body)
	if !bytes.Equal(want[:], trailer) {
		return nil, fmt.Errorf("atb: checksum mismatch")
	}

	br := bytes.NewReader(body)
	version, err := readHeader(br)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("atb: unsupported version %d (expected %d)", version, FormatVersion)
	}
	var topLevelLocals uint32
	if err := binary.Read(br, binary.LittleEndian, &topLevelLocals); err != nil {
		return nil, fmt.Errorf("read top-level local count: %w", err)
	}
	constants, err := readConstants(br)
	if err != nil {
		return nil, fmt.Errorf("read constants: %w", err)
	}
	spans, err := readSpans(br)
	if err != nil {
		return nil, fmt.Errorf("read spans: %w", err)
	}
	code, err := readCode(br)
	if err != nil {
		return nil, fmt.Errorf("read code: %w", err)
	}
	return &Bytecode{Code: code, Spans: spans, Constants: constants, TopLevelLocals: int(topLevelLocals)}, nil
}

func writeHeader(w io.Writer) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, FormatVersion)
}

func readHeader(r io.Reader) (uint32, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, err
	}
	if magic != Magic {
		return 0, fmt.Errorf("atb: bad magic %v", magic)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	return version, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeConstants(w io.Writer, constants []value.Value) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(constants))); err != nil {
		return err
	}
	for i, c := range constants {
		if err := writeConstant(w, c); err != nil {
			return fmt.Errorf("constant %d: %w", i, err)
		}
	}
	return nil
}

func writeConstant(w io.Writer, c value.Value) error {
	switch v := c.(type) {
	case value.Null:
		return binary.Write(w, binary.LittleEndian, constTypeNull)
	case value.Bool:
		if err := binary.Write(w, binary.LittleEndian, constTypeBool); err != nil {
			return err
		}
		var b byte
		if v {
			b = 1
		}
		return binary.Write(w, binary.LittleEndian, b)
	case value.Number:
		if err := binary.Write(w, binary.LittleEndian, constTypeNumber); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, float64(v))
	case value.String:
		if err := binary.Write(w, binary.LittleEndian, constTypeString); err != nil {
			return err
		}
		return writeString(w, string(v))
	case value.Function:
		if err := binary.Write(w, binary.LittleEndian, constTypeFunction); err != nil {
			return err
		}
		return writeFunctionRef(w, v.Ref)
	default:
		return fmt.Errorf("unsupported constant type %T", c)
	}
}

func writeFunctionRef(w io.Writer, ref *value.FunctionRef) error {
	if err := writeString(w, ref.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ref.Params))); err != nil {
		return err
	}
	for _, p := range ref.Params {
		if err := writeString(w, p.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(p.Ownership)); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(ref.ReturnOwned)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(ref.EntryOffset)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(ref.LocalSlotCount)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ref.UpvalueCaptures))); err != nil {
		return err
	}
	for _, u := range ref.UpvalueCaptures {
		var fromLocal uint8
		if u.FromLocal {
			fromLocal = 1
		}
		if err := binary.Write(w, binary.LittleEndian, fromLocal); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(u.Index)); err != nil {
			return err
		}
	}
	return nil
}

func readConstants(r io.Reader) ([]value.Value, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]value.Value, count)
	for i := uint32(0); i < count; i++ {
		v, err := readConstant(r)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func readConstant(r io.Reader) (value.Value, error) {
	var tag byte
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return nil, err
	}
	switch tag {
	case constTypeNull:
		return value.TheNull, nil
	case constTypeBool:
		var b byte
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return nil, err
		}
		return value.Bool(b != 0), nil
	case constTypeNumber:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return nil, err
		}
		return value.Number(f), nil
	case constTypeString:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return value.NewString(s), nil
	case constTypeFunction:
		ref, err := readFunctionRef(r)
		if err != nil {
			return nil, err
		}
		return value.Function{Ref: ref}, nil
	default:
		return nil, fmt.Errorf("atb: unknown constant tag %d", tag)
	}
}

func readFunctionRef(r io.Reader) (*value.FunctionRef, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	var nparams uint32
	if err := binary.Read(r, binary.LittleEndian, &nparams); err != nil {
		return nil, err
	}
	params := make([]value.ParamMeta, nparams)
	for i := range params {
		pname, err := readString(r)
		if err != nil {
			return nil, err
		}
		var own uint8
		if err := binary.Read(r, binary.LittleEndian, &own); err != nil {
			return nil, err
		}
		params[i] = value.ParamMeta{Name: pname, Ownership: value.OwnershipMode(own)}
	}
	var retOwn uint8
	if err := binary.Read(r, binary.LittleEndian, &retOwn); err != nil {
		return nil, err
	}
	var entry, slots, nups uint32
	if err := binary.Read(r, binary.LittleEndian, &entry); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &slots); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &nups); err != nil {
		return nil, err
	}
	caps := make([]value.UpvalueCapture, nups)
	for i := range caps {
		var fromLocal uint8
		if err := binary.Read(r, binary.LittleEndian, &fromLocal); err != nil {
			return nil, err
		}
		var idx uint32
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return nil, err
		}
		caps[i] = value.UpvalueCapture{FromLocal: fromLocal != 0, Index: int(idx)}
	}
	return &value.FunctionRef{
		Name:            name,
		Params:          params,
		ReturnOwned:     value.OwnershipMode(retOwn),
		EntryOffset:     int(entry),
		LocalSlotCount:  int(slots),
		UpvalueCaptures: caps,
	}, nil
}

func writeSpans(w io.Writer, spans map[int]diag.Span) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(spans))); err != nil {
		return err
	}
	for offset, span := range spans {
		if err := binary.Write(w, binary.LittleEndian, uint32(offset)); err != nil {
			return err
		}
		if err := writeString(w, span.File); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(span.Line)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(span.Column)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(span.Length)); err != nil {
			return err
		}
	}
	return nil
}

func readSpans(r io.Reader) (map[int]diag.Span, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make(map[int]diag.Span, count)
	for i := uint32(0); i < count; i++ {
		var offset uint32
		if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
			return nil, err
		}
		file, err := readString(r)
		if err != nil {
			return nil, err
		}
		var line, col, length uint32
		if err := binary.Read(r, binary.LittleEndian, &line); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &col); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, err
		}
		out[int(offset)] = diag.Span{File: file, Line: int(line), Column: int(col), Length: int(length)}
	}
	return out, nil
}

func writeCode(w io.Writer, code []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(code))); err != nil {
		return err
	}
	_, err := w.Write(code)
	return err
}

func readCode(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	return buf, err
}
