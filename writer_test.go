package busmessage

import "testing"

func TestArrayOfDictEntries(t *testing.T) {
	m := newMessage(TypeMethodReturn)
	if err := m.setReplySerial("test", 1); err != nil {
		t.Fatal(err)
	}
	if err := m.OpenContainer(TypeArray, "{sv}"); err != nil {
		t.Fatal(err)
	}
	for i, kv := range []struct {
		key string
		val string
	}{
		{"Name", "fox"},
		{"Color", "red"},
	} {
		if err := m.OpenContainer(TypeDictEntry, "sv"); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		if err := m.AppendBasic(TypeString, kv.key); err != nil {
			t.Fatal(err)
		}
		if err := m.OpenContainer(TypeVariant, "s"); err != nil {
			t.Fatal(err)
		}
		if err := m.AppendBasic(TypeString, kv.val); err != nil {
			t.Fatal(err)
		}
		if err := m.CloseContainer(); err != nil { // variant
			t.Fatal(err)
		}
		if err := m.CloseContainer(); err != nil { // dict entry
			t.Fatal(err)
		}
	}
	if err := m.CloseContainer(); err != nil { // array
		t.Fatal(err)
	}
	if err := m.Seal(1); err != nil {
		t.Fatal(err)
	}

	if m.rootSignature() != "a{sv}" {
		t.Errorf("root signature = %q", m.rootSignature())
	}

	got, err := FromBuffer(m.Blob(), nil, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := got.EnterContainer(TypeArray); err != nil {
		t.Fatal(err)
	}
	var keys []string
	for !got.AtEnd() {
		if err := got.EnterContainer(TypeDictEntry); err != nil {
			t.Fatal(err)
		}
		k, err := got.ReadBasic(TypeString)
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, k.(string))
		if err := got.EnterContainer(TypeVariant); err != nil {
			t.Fatal(err)
		}
		if _, err := got.ReadBasic(TypeString); err != nil {
			t.Fatal(err)
		}
		if err := got.ExitContainer(); err != nil { // variant
			t.Fatal(err)
		}
		if err := got.ExitContainer(); err != nil { // dict entry
			t.Fatal(err)
		}
	}
	if err := got.ExitContainer(); err != nil { // array
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "Name" || keys[1] != "Color" {
		t.Errorf("keys = %v", keys)
	}
}

func TestContainerDepthLimit(t *testing.T) {
	// Open BusContainerDepth levels of ARRAY-of-ARRAY-of-...-BYTE, which is
	// valid at every depth.
	sig := "y"
	for i := 0; i < BusContainerDepth; i++ {
		sig = "a" + sig
	}
	m2 := newMessage(TypeSignal)
	cur := sig
	for i := 0; i < BusContainerDepth; i++ {
		contents := cur[1:]
		if err := m2.OpenContainer(TypeArray, contents); err != nil {
			t.Fatalf("opening depth %d: %v", i+1, err)
		}
		cur = contents
	}
	if err := m2.OpenContainer(TypeArray, "y"); !Is(err, CodeInvalidArgument) {
		t.Errorf("opening one container past the limit: got %v, want invalid-argument", err)
	}
}

func TestArraySizeCap(t *testing.T) {
	m := newMessage(TypeSignal)
	if err := m.OpenContainer(TypeArray, "y"); err != nil {
		t.Fatal(err)
	}
	top := m.containers.top()
	// Simulate a body that has already grown past the cap, without
	// actually writing 64MiB of bytes in a test.
	top.begin = 0
	m.buffers.body = make([]byte, BusArrayMaxSize+1)
	if err := m.CloseContainer(); !Is(err, CodeInvalidArgument) {
		t.Errorf("closing an oversized array: got %v, want invalid-argument", err)
	}
}

func TestSignatureMismatch(t *testing.T) {
	m := newMessage(TypeSignal)
	if err := m.OpenContainer(TypeStruct, "si"); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendBasic(TypeInt32, int32(1)); !Is(err, CodeTypeMismatch) {
		t.Errorf("writing int32 where string expected: got %v, want type-mismatch", err)
	}
}

func TestStructMustBeFullyWritten(t *testing.T) {
	m := newMessage(TypeSignal)
	if err := m.OpenContainer(TypeStruct, "si"); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendBasic(TypeString, "x"); err != nil {
		t.Fatal(err)
	}
	if err := m.CloseContainer(); !Is(err, CodeInvalidState) {
		t.Errorf("closing a struct with a missing member: got %v, want invalid-state", err)
	}
}

func TestAppendWalksTypeString(t *testing.T) {
	m, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Append("sub", "name", uint32(7), true); err != nil {
		t.Fatal(err)
	}
	if err := m.Seal(1); err != nil {
		t.Fatal(err)
	}
	if m.rootSignature() != "sub" {
		t.Errorf("root signature = %q", m.rootSignature())
	}
}

func TestAppendRecursesIntoContainers(t *testing.T) {
	m, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Append("a(su)v", 2, "eth0", uint32(1), "lo", uint32(2), "u", uint32(9)); err != nil {
		t.Fatal(err)
	}
	if err := m.Seal(1); err != nil {
		t.Fatal(err)
	}
	if m.rootSignature() != "a(su)v" {
		t.Errorf("root signature = %q", m.rootSignature())
	}
}

func TestAppendRejectsTooFewArguments(t *testing.T) {
	m := newMessage(TypeSignal)
	if err := m.Append("su", "only-one"); !Is(err, CodeInvalidArgument) {
		t.Errorf("got %v, want invalid-argument", err)
	}
}

func TestAppendRejectsTooManyArguments(t *testing.T) {
	m := newMessage(TypeSignal)
	if err := m.Append("s", "one", "two"); !Is(err, CodeInvalidArgument) {
		t.Errorf("got %v, want invalid-argument", err)
	}
}
