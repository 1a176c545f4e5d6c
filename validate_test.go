package busmessage

import "testing"

func TestValidatePath(t *testing.T) {
	valid := []string{"/", "/org/example", "/org/example/Object_1"}
	for _, p := range valid {
		if err := validatePath(p); err != nil {
			t.Errorf("validatePath(%q): %v", p, err)
		}
	}
	invalid := []string{"", "org/example", "/org/example/", "/org//example"}
	for _, p := range invalid {
		if err := validatePath(p); err == nil {
			t.Errorf("validatePath(%q): expected an error", p)
		}
	}
}

func TestValidateInterfaceName(t *testing.T) {
	if err := validateInterfaceName("org.freedesktop.DBus"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	invalid := []string{"", "NoDots", "org.1Bad.Name", "org..Name"}
	for _, n := range invalid {
		if err := validateInterfaceName(n); err == nil {
			t.Errorf("validateInterfaceName(%q): expected an error", n)
		}
	}
}

func TestValidateBusName(t *testing.T) {
	if err := validateBusName("org.freedesktop.DBus"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateBusName(":1.42"); err != nil {
		t.Errorf("unique name: %v", err)
	}
}

func TestSignatureNotExtendedOnFailedAppend(t *testing.T) {
	m := newMessage(TypeSignal)
	if err := m.AppendBasic(TypeString, "ok"); err != nil {
		t.Fatal(err)
	}
	before := m.rootSignature()

	// A type/value mismatch: TypeInt32 requires an int32, not a string.
	if err := m.AppendBasic(TypeInt32, "not an int32"); err == nil {
		t.Fatal("expected an error")
	}
	if m.rootSignature() != before {
		t.Errorf("signature grew on a failed append: %q, want %q", m.rootSignature(), before)
	}
}
