package busmessage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSignalRoundTrip(t *testing.T) {
	sig, err := NewSignal("/org/example/Object", "org.example.Interface", "Changed")
	if err != nil {
		t.Fatal(err)
	}
	if err := sig.AppendBasic(TypeString, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := sig.AppendBasic(TypeUint32, uint32(42)); err != nil {
		t.Fatal(err)
	}
	if err := sig.Seal(7); err != nil {
		t.Fatal(err)
	}

	got, err := FromBuffer(sig.Blob(), nil, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	if !got.IsSignal("org.example.Interface", "Changed") {
		t.Error("expected a matching signal")
	}
	path, _ := got.Path()
	if path != "/org/example/Object" {
		t.Errorf("path = %q", path)
	}
	serial, ok := got.Serial()
	if !ok || serial != 7 {
		t.Errorf("serial = %d, %v", serial, ok)
	}

	s, err := got.ReadBasic(TypeString)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("hello", s); diff != "" {
		t.Errorf("%s", diff)
	}
	u, err := got.ReadBasic(TypeUint32)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(uint32(42), u); diff != "" {
		t.Errorf("%s", diff)
	}
	if !got.AtEnd() {
		t.Error("expected no more arguments")
	}
}

func TestMethodCallWithoutInterface(t *testing.T) {
	call, err := NewMethodCall("org.example.Service", "/org/example/Object", "", "Ping")
	if err != nil {
		t.Fatal(err)
	}
	if err := call.Seal(1); err != nil {
		t.Fatal(err)
	}

	got, err := FromBuffer(call.Blob(), nil, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Interface(); ok {
		t.Error("expected no interface")
	}
	if !got.IsMethodCall("", "Ping") {
		t.Error("expected a matching method call")
	}
}

func TestMethodErrorReply(t *testing.T) {
	call, err := NewMethodCall("org.example.Service", "/org/example/Object", "org.example.Interface", "Boom")
	if err != nil {
		t.Fatal(err)
	}
	if err := call.Seal(3); err != nil {
		t.Fatal(err)
	}

	errMsg, err := NewMethodError(call, "org.example.Error.Failed", "something broke")
	if err != nil {
		t.Fatal(err)
	}
	if err := errMsg.Seal(9); err != nil {
		t.Fatal(err)
	}

	got, err := FromBuffer(errMsg.Blob(), nil, nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsMethodError("org.example.Error.Failed") {
		t.Error("expected a matching method error")
	}
	rs, ok := got.ReplySerial()
	if !ok || rs != 3 {
		t.Errorf("reply serial = %d, %v", rs, ok)
	}
	msg, ok := got.ErrorMessage()
	if !ok || msg != "something broke" {
		t.Errorf("error message = %q, %v", msg, ok)
	}
}

func TestSealRejectsOpenContainer(t *testing.T) {
	sig, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	if err := sig.OpenContainer(TypeArray, "s"); err != nil {
		t.Fatal(err)
	}
	if err := sig.Seal(1); !Is(err, CodeInvalidState) {
		t.Errorf("Seal with an open container: got %v, want invalid-state", err)
	}
}

func TestSealTwiceFails(t *testing.T) {
	sig, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	if err := sig.Seal(1); err != nil {
		t.Fatal(err)
	}
	if err := sig.Seal(2); !Is(err, CodeInvalidState) {
		t.Errorf("second Seal: got %v, want invalid-state", err)
	}
}

func TestRefcount(t *testing.T) {
	sig, err := NewSignal("/o", "a.b", "M")
	if err != nil {
		t.Fatal(err)
	}
	sig.Ref()
	sig.Unref()
	sig.Unref()
	if sig.fds != nil {
		t.Error("expected fds cleared after refcount reaches zero")
	}
}
