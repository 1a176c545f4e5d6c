package busmessage

import "testing"

func TestFromBufferRejectsShortHeader(t *testing.T) {
	if _, err := FromBuffer([]byte{'l', 1, 0, 1}, nil, nil, "", nil); !Is(err, CodeMalformedMessage) {
		t.Errorf("got %v, want malformed-message", err)
	}
}

func TestSealRejectsMissingRequiredFields(t *testing.T) {
	m := newMessage(TypeMethodCall)
	// Deliberately skip setting path/member, bypassing NewMethodCall's
	// validation, to exercise Seal's invariant-9 enforcement directly.
	if err := m.Seal(1); !Is(err, CodeMalformedMessage) {
		t.Errorf("got %v, want malformed-message", err)
	}
}

func TestFromBufferRejectsBodySignatureMismatch(t *testing.T) {
	sig, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	if err := sig.Seal(1); err != nil {
		t.Fatal(err)
	}
	blob := append([]byte(nil), sig.Blob()...)

	// Forge a nonzero body size in the fixed header and grow the buffer by
	// that many zero bytes, so the total length still matches and only
	// bodySize disagrees with the empty SIGNATURE.
	blob[4] = 4
	blob = append(blob, 0, 0, 0, 0)
	if _, err := FromBuffer(blob, nil, nil, "", nil); !Is(err, CodeMalformedMessage) {
		t.Errorf("got %v, want malformed-message", err)
	}
}

func TestFromBufferTolerateUnknownHeaderField(t *testing.T) {
	sig, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	// Append a bogus header field with an unused code, a basic payload.
	if err := appendHeaderFieldUint32(&sig.buffers.fields, 200, 7); err != nil {
		t.Fatal(err)
	}
	if err := sig.Seal(1); err != nil {
		t.Fatal(err)
	}

	got, err := FromBuffer(sig.Blob(), nil, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsSignal("a.b", "M") {
		t.Error("expected the signal to parse despite the unknown field")
	}
}

func TestFromBufferRejectsUnixFDCountMismatch(t *testing.T) {
	sig, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	if err := sig.AppendBasic(TypeUnixFD, 3); err != nil {
		t.Fatal(err)
	}
	if err := sig.Seal(1); err != nil {
		t.Fatal(err)
	}
	if _, err := FromBuffer(sig.Blob(), nil, nil, "", nil); !Is(err, CodeMalformedMessage) {
		t.Errorf("got %v, want malformed-message for a missing fd", err)
	}
}
