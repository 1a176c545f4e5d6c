package busmessage

import "testing"

func TestCompleteTypeSpan(t *testing.T) {
	cases := []struct {
		sig  string
		want int
	}{
		{"y", 1},
		{"ai", 2},
		{"(ii)", 4},
		{"a{sv}", 5},
		{"v", 1},
		{"((i)(i))", 8},
	}
	for _, c := range cases {
		got, err := completeTypeSpan(c.sig, 0)
		if err != nil {
			t.Errorf("completeTypeSpan(%q): %v", c.sig, err)
			continue
		}
		if got != c.want {
			t.Errorf("completeTypeSpan(%q) = %d, want %d", c.sig, got, c.want)
		}
	}
}

func TestValidateSignatureRejectsBadDictEntry(t *testing.T) {
	for _, sig := range []string{"a{vs}", "a{si}extra", "{si}"} {
		if err := validateSignature(sig); err == nil {
			t.Errorf("validateSignature(%q): expected an error", sig)
		}
	}
}

func TestValidateSignatureAcceptsNested(t *testing.T) {
	for _, sig := range []string{"", "y", "a{sv}", "(a(ii)s)", "aas"} {
		if err := validateSignature(sig); err != nil {
			t.Errorf("validateSignature(%q): %v", sig, err)
		}
	}
}

func TestValidateSingleCompleteType(t *testing.T) {
	if err := validateSingleCompleteType("ii"); err == nil {
		t.Error("expected an error for two complete types")
	}
	if err := validateSingleCompleteType("(ii)"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateDictEntryContents(t *testing.T) {
	if err := validateDictEntryContents("sv"); err != nil {
		t.Errorf("sv: %v", err)
	}
	if err := validateDictEntryContents("vs"); err == nil {
		t.Error("expected an error: variant key is not basic")
	}
	if err := validateDictEntryContents("sii"); err == nil {
		t.Error("expected an error: three members")
	}
}
