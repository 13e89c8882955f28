package bytecode

import (
	"bytes"
	"testing"

	"github.com/atl-lang/atlas-sub003/pkg/diag"
	"github.com/atl-lang/atlas-sub003/pkg/value"
	"golang.org/x/crypto/blake2b"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := &Bytecode{
		Code: []byte{byte(OpConstant), 0, 0, byte(OpReturn)},
		Spans: map[int]diag.Span{
			0: {File: "t.atlas", Line: 1, Column: 1, Length: 2},
			3: {File: "t.atlas", Line: 1, Column: 4, Length: 1},
		},
		Constants:      []value.Value{value.Number(42)},
		TopLevelLocals: 3,
	}

	var buf bytes.Buffer
	if err := Encode(original, &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("no data was encoded")
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded.Code, original.Code) {
		t.Errorf("Code = %v, want %v", decoded.Code, original.Code)
	}
	if decoded.TopLevelLocals != original.TopLevelLocals {
		t.Errorf("TopLevelLocals = %d, want %d", decoded.TopLevelLocals, original.TopLevelLocals)
	}
	if len(decoded.Constants) != 1 || decoded.Constants[0] != value.Number(42) {
		t.Errorf("Constants = %v, want [42]", decoded.Constants)
	}
	if len(decoded.Spans) != 2 || decoded.Spans[0] != original.Spans[0] || decoded.Spans[3] != original.Spans[3] {
		t.Errorf("Spans = %v, want %v", decoded.Spans, original.Spans)
	}
}

func TestEncodeDecodeAllConstantKinds(t *testing.T) {
	ref := &value.FunctionRef{
		Name:   "add",
		Params: []value.ParamMeta{{Name: "a", Ownership: value.Own}, {Name: "b", Ownership: value.Borrow}},
		ReturnOwned:    value.Own,
		EntryOffset:    12,
		LocalSlotCount: 2,
		UpvalueCaptures: []value.UpvalueCapture{
			{FromLocal: true, Index: 0},
			{FromLocal: false, Index: 1},
		},
	}
	original := &Bytecode{
		Code: []byte{byte(OpHalt)},
		Constants: []value.Value{
			value.TheNull,
			value.Bool(true),
			value.Number(3.5),
			value.NewString("hi"),
			value.Function{Ref: ref},
		},
		Spans: map[int]diag.Span{},
	}

	var buf bytes.Buffer
	if err := Encode(original, &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Constants) != 5 {
		t.Fatalf("got %d constants, want 5", len(decoded.Constants))
	}
	if decoded.Constants[0] != value.TheNull {
		t.Errorf("constant 0 = %v, want Null", decoded.Constants[0])
	}
	if decoded.Constants[1] != value.Bool(true) {
		t.Errorf("constant 1 = %v, want true", decoded.Constants[1])
	}
	if decoded.Constants[2] != value.Number(3.5) {
		t.Errorf("constant 2 = %v, want 3.5", decoded.Constants[2])
	}
	if decoded.Constants[3] != value.NewString("hi") {
		t.Errorf("constant 3 = %v, want \"hi\"", decoded.Constants[3])
	}
	fn, ok := decoded.Constants[4].(value.Function)
	if !ok {
		t.Fatalf("constant 4 = %T, want value.Function", decoded.Constants[4])
	}
	if fn.Ref.Name != "add" || len(fn.Ref.Params) != 2 || fn.Ref.EntryOffset != 12 ||
		fn.Ref.LocalSlotCount != 2 || len(fn.Ref.UpvalueCaptures) != 2 {
		t.Errorf("decoded FunctionRef mismatch: %+v", fn.Ref)
	}
	if fn.Ref.Params[0].Ownership != value.Own || fn.Ref.Params[1].Ownership != value.Borrow {
		t.Errorf("decoded Param ownership mismatch: %+v", fn.Ref.Params)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	body := []byte{'N', 'O', 'P', 'E', 1, 0, 0, 0}
	sum := blake2b.Sum256(body)
	raw := append(append([]byte{}, body...), sum[:]...)

	if _, err := Decode(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected an error for a bad magic number")
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	bc := &Bytecode{Code: []byte{byte(OpHalt)}, Constants: nil, Spans: map[int]diag.Span{}}
	var buf bytes.Buffer
	if err := Encode(bc, &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	raw := buf.Bytes()
	// Magic occupies bytes [0:4]; version follows as a little-endian uint32.
	// The trailer is recomputed so Decode gets past the checksum and reaches
	// the version check.
	body := raw[:len(raw)-blake2b.Size256]
	body[4] = 99
	sum := blake2b.Sum256(body)
	copy(raw[len(raw)-blake2b.Size256:], sum[:])
	if _, err := Decode(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected an error for an unsupported version")
	}
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	bc := &Bytecode{Code: []byte{byte(OpHalt)}, Constants: nil, Spans: map[int]diag.Span{}}
	var buf bytes.Buffer
	if err := Encode(bc, &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF // flip a checksum trailer bit
	if _, err := Decode(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected a checksum mismatch error")
	}
}

func TestEncodeDecodeEmptyBytecode(t *testing.T) {
	original := &Bytecode{Code: []byte{}, Constants: []value.Value{}, Spans: map[int]diag.Span{}}
	var buf bytes.Buffer
	if err := Encode(original, &buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Code) != 0 || len(decoded.Constants) != 0 || len(decoded.Spans) != 0 {
		t.Errorf("expected all-empty decode, got %+v", decoded)
	}
}
