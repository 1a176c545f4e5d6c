package busmessage

import "testing"

func TestRewindFull(t *testing.T) {
	m, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Append("sss", "a", "b", "c"); err != nil {
		t.Fatal(err)
	}
	if err := m.Seal(1); err != nil {
		t.Fatal(err)
	}

	read3 := func() []string {
		var got []string
		for !m.AtEnd() {
			v, err := m.ReadBasic(TypeString)
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, v.(string))
		}
		return got
	}

	first := read3()
	if err := m.Rewind(true); err != nil {
		t.Fatal(err)
	}
	second := read3()

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 values both passes, got %v then %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("pass 1 %v != pass 2 %v", first, second)
		}
	}
}

func TestSkipOverNestedContainers(t *testing.T) {
	m, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.OpenContainer(TypeArray, "(si)"); err != nil {
		t.Fatal(err)
	}
	if err := m.OpenContainer(TypeStruct, "si"); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendBasic(TypeString, "x"); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendBasic(TypeInt32, int32(1)); err != nil {
		t.Fatal(err)
	}
	if err := m.CloseContainer(); err != nil {
		t.Fatal(err)
	}
	if err := m.CloseContainer(); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendBasic(TypeString, "tail"); err != nil {
		t.Fatal(err)
	}
	if err := m.Seal(1); err != nil {
		t.Fatal(err)
	}

	got, err := FromBuffer(m.Blob(), nil, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := got.Skip(); err != nil {
		t.Fatal(err)
	}
	v, err := got.ReadBasic(TypeString)
	if err != nil {
		t.Fatal(err)
	}
	if v.(string) != "tail" {
		t.Errorf("got %q, want %q", v, "tail")
	}
	if !got.AtEnd() {
		t.Error("expected end of arguments")
	}
}

func TestMalformedNonZeroPadding(t *testing.T) {
	m, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AppendBasic(TypeByte, byte(1)); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendBasic(TypeInt32, int32(99)); err != nil {
		t.Fatal(err)
	}
	if err := m.Seal(1); err != nil {
		t.Fatal(err)
	}

	blob := append([]byte(nil), m.Blob()...)
	// Corrupt one of the alignment padding bytes between the BYTE and the
	// INT32 in the body: the byte value lands right after the header, at
	// the start of the body region.
	bodyStart := len(blob) - len(m.buffers.body)
	blob[bodyStart+1] = 0xFF // padding byte before the 4-byte-aligned int32

	got, err := FromBuffer(blob, nil, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := got.ReadBasic(TypeByte); err != nil {
		t.Fatal(err)
	}
	if _, err := got.ReadBasic(TypeInt32); !Is(err, CodeMalformedMessage) {
		t.Errorf("reading past corrupted padding: got %v, want malformed-message", err)
	}
}

func TestArrayLengthMismatchIsMalformed(t *testing.T) {
	m, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.OpenContainer(TypeArray, "y"); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendBasic(TypeByte, byte(1)); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendBasic(TypeByte, byte(2)); err != nil {
		t.Fatal(err)
	}
	if err := m.CloseContainer(); err != nil {
		t.Fatal(err)
	}
	if err := m.Seal(1); err != nil {
		t.Fatal(err)
	}

	blob := append([]byte(nil), m.Blob()...)
	bodyStart := len(blob) - len(m.buffers.body)
	// The array length prefix is the first 4 bytes of the body; forge it
	// to claim one more byte than was actually written.
	blob[bodyStart] = blob[bodyStart] + 1

	got, err := FromBuffer(blob, nil, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := got.EnterContainer(TypeArray); !Is(err, CodeMalformedMessage) {
		t.Errorf("entering an array with a forged length: got %v, want malformed-message", err)
	}
}
