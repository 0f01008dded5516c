package protocol

import "testing"

func TestAssemblerSingleFrame(t *testing.T) {
	var a Assembler
	op, payload, ok, err := a.Feed(&Frame{Fin: true, Opcode: OpcodeText, Payload: []byte("hello")})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !ok || op != OpcodeText || string(payload) != "hello" {
		t.Fatalf("Feed result = (%v, %q, %v)", op, payload, ok)
	}
}

func TestAssemblerFragmented(t *testing.T) {
	var a Assembler
	if _, _, ok, err := a.Feed(&Frame{Fin: false, Opcode: OpcodeText, Payload: []byte("hel")}); err != nil || ok {
		t.Fatalf("first fragment: ok=%v err=%v", ok, err)
	}
	if _, _, ok, err := a.Feed(&Frame{Fin: false, Opcode: OpcodeContinuation, Payload: []byte("lo ")}); err != nil || ok {
		t.Fatalf("second fragment: ok=%v err=%v", ok, err)
	}
	op, payload, ok, err := a.Feed(&Frame{Fin: true, Opcode: OpcodeContinuation, Payload: []byte("world")})
	if err != nil {
		t.Fatalf("final fragment: %v", err)
	}
	if !ok || op != OpcodeText || string(payload) != "hello world" {
		t.Fatalf("assembled = (%v, %q, %v)", op, payload, ok)
	}
}

func TestAssemblerRejectsUnexpectedContinuation(t *testing.T) {
	var a Assembler
	_, _, _, err := a.Feed(&Frame{Fin: true, Opcode: OpcodeContinuation})
	if err != ErrUnexpectedContinue {
		t.Fatalf("err = %v, want ErrUnexpectedContinue", err)
	}
}

func TestAssemblerRejectsNestedDataFrame(t *testing.T) {
	var a Assembler
	if _, _, _, err := a.Feed(&Frame{Fin: false, Opcode: OpcodeText, Payload: []byte("a")}); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	_, _, _, err := a.Feed(&Frame{Fin: true, Opcode: OpcodeBinary, Payload: []byte("b")})
	if err != ErrUnexpectedDataFrame {
		t.Fatalf("err = %v, want ErrUnexpectedDataFrame", err)
	}
}

func TestAssemblerRejectsInvalidUTF8(t *testing.T) {
	var a Assembler
	_, _, _, err := a.Feed(&Frame{Fin: true, Opcode: OpcodeText, Payload: []byte{0xff, 0xfe}})
	if err == nil {
		t.Fatalf("expected invalid UTF-8 error")
	}
}
