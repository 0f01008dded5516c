package protocol

import "unicode/utf8"

// Assembler reassembles a sequence of data frames (one unfragmented frame,
// or an initial frame followed by zero or more continuations) into a
// complete message. It holds no state across messages: per this module's
// resolved Open Question, a fresh Assembler is used for every connection
// attempt, so no partial fragment survives a reconnect.
type Assembler struct {
	inProgress bool
	opcode     Opcode
	buf        []byte
}

// Feed processes one decoded data frame (Opcode Continuation, Text, or
// Binary — control frames are not passed here; the dispatcher handles
// those directly). It returns the completed message opcode and payload
// once a FIN frame closes the sequence, and ok == true. Otherwise it
// returns ok == false, meaning more frames are needed.
func (a *Assembler) Feed(f *Frame) (opcode Opcode, payload []byte, ok bool, err error) {
	switch f.Opcode {
	case OpcodeContinuation:
		if !a.inProgress {
			return 0, nil, false, ErrUnexpectedContinue
		}
	case OpcodeText, OpcodeBinary:
		if a.inProgress {
			return 0, nil, false, ErrUnexpectedDataFrame
		}
		a.inProgress = true
		a.opcode = f.Opcode
		a.buf = a.buf[:0]
	default:
		return 0, nil, false, ErrUnknownOpcode
	}

	if len(f.Payload) > 0 {
		a.buf = append(a.buf, f.Payload...)
	}

	if !f.Fin {
		return 0, nil, false, nil
	}

	opcode = a.opcode
	payload = a.buf
	a.inProgress = false
	a.opcode = 0
	a.buf = nil

	if opcode == OpcodeText && len(payload) > 0 && !utf8.Valid(payload) {
		return 0, nil, false, errString("protocol: invalid UTF-8 in text message")
	}

	return opcode, payload, true, nil
}
