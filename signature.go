package busmessage

// This file implements the signature grammar as a black-box predicate
// pair (validateSignature, completeTypeSpan), per spec §1: the codec
// treats signature-grammar helpers as swappable, self-contained
// predicates rather than something entangled with the rest of the codec.

// completeTypeSpan returns the length, in bytes, of the single complete
// type starting at sig[i]: one character for a basic type or VARIANT, the
// array marker plus its element's span for ARRAY, or the bracketed span
// for STRUCT/DICT_ENTRY. A bare DICT_ENTRY is rejected here: spec §4.3
// states a DICT_ENTRY is only legal as the element type of an ARRAY, never
// as a standalone complete type, so callers that scan array contents use
// completeArrayElementSpan instead.
func completeTypeSpan(sig string, i int) (int, error) {
	return completeTypeSpanCtx(sig, i, false)
}

// completeArrayElementSpan is completeTypeSpan for the one position where a
// bare DICT_ENTRY is legal: the element-type position immediately following
// an ARRAY marker.
func completeArrayElementSpan(sig string, i int) (int, error) {
	return completeTypeSpanCtx(sig, i, true)
}

func completeTypeSpanCtx(sig string, i int, allowDictEntry bool) (int, error) {
	if i >= len(sig) {
		return 0, errorf(CodeInvalidArgument, "completeTypeSpan", "index %d out of range for signature %q", i, sig)
	}

	c := sig[i]
	switch {
	case isBasicType(c), c == TypeVariant:
		return 1, nil

	case c == TypeArray:
		elemSpan, err := completeArrayElementSpan(sig, i+1)
		if err != nil {
			return 0, err
		}
		return 1 + elemSpan, nil

	case c == TypeStruct:
		return bracketedSpan(sig, i, TypeStruct, TypeStructEnd, 1, -1)

	case c == TypeDictEntry:
		if !allowDictEntry {
			return 0, errorf(CodeInvalidArgument, "completeTypeSpan", "dict entry type is only legal as the contents of an array, got %q", sig)
		}
		return bracketedSpan(sig, i, TypeDictEntry, TypeDictEntryEnd, 2, 2)

	default:
		return 0, errorf(CodeInvalidArgument, "completeTypeSpan", "unknown type code %q in signature %q", c, sig)
	}
}

// bracketedSpan scans a STRUCT or DICT_ENTRY starting at sig[i] (sig[i]
// must equal open), requiring at least minMembers complete types inside
// and, if maxMembers >= 0, at most maxMembers. DICT_ENTRY additionally
// requires its first member to be a basic type (spec invariant 5). Members
// are scanned with completeTypeSpan, so a bare DICT_ENTRY member (one not
// wrapped in an ARRAY) is rejected here too.
func bracketedSpan(sig string, i int, open, closeC byte, minMembers, maxMembers int) (int, error) {
	j := i + 1
	members := 0
	for {
		if j >= len(sig) {
			return 0, errorf(CodeInvalidArgument, "bracketedSpan", "unterminated %q in signature %q", string(open), sig)
		}
		if sig[j] == closeC {
			break
		}
		if closeC == TypeDictEntryEnd && members == 0 && !isBasicType(sig[j]) {
			return 0, errorf(CodeInvalidArgument, "bracketedSpan", "dict entry key must be a basic type, got %q", string(sig[j]))
		}
		span, err := completeTypeSpan(sig, j)
		if err != nil {
			return 0, err
		}
		j += span
		members++
		if maxMembers >= 0 && members > maxMembers {
			return 0, errorf(CodeInvalidArgument, "bracketedSpan", "%q takes at most %d members, signature %q", string(open), maxMembers, sig)
		}
	}
	if members < minMembers {
		return 0, errorf(CodeInvalidArgument, "bracketedSpan", "%q requires at least %d member(s), signature %q", string(open), minMembers, sig)
	}
	return j + 1 - i, nil
}

// validateSignature reports whether sig is a well-formed sequence of zero
// or more complete types (spec invariant 5). An empty signature is valid
// (the empty body signature). A bare top-level DICT_ENTRY is rejected,
// since spec §4.3 only permits one as the contents of an ARRAY.
func validateSignature(sig string) error {
	if len(sig) > 255 {
		return errorf(CodeInvalidArgument, "validateSignature", "signature longer than 255 bytes")
	}
	i := 0
	for i < len(sig) {
		span, err := completeTypeSpan(sig, i)
		if err != nil {
			return err
		}
		i += span
	}
	return nil
}

// validateSingleCompleteType reports whether sig is exactly one complete
// type, as required for VARIANT contents (spec §4.3: "disallow
// DICT_ENTRY").
func validateSingleCompleteType(sig string) error {
	if len(sig) == 0 {
		return errorf(CodeInvalidArgument, "validateSingleCompleteType", "empty signature where a single complete type is required")
	}
	span, err := completeTypeSpan(sig, 0)
	if err != nil {
		return err
	}
	if span != len(sig) {
		return errorf(CodeInvalidArgument, "validateSingleCompleteType", "signature %q is not a single complete type", sig)
	}
	return nil
}

// validateArrayElementType reports whether sig is exactly one complete
// type, as required for ARRAY contents. Unlike validateSingleCompleteType,
// a DICT_ENTRY is legal here — it is the only position spec §4.3 allows one
// in (an ARRAY of DICT_ENTRY is how "a{sv}"-style maps are expressed).
func validateArrayElementType(sig string) error {
	if len(sig) == 0 {
		return errorf(CodeInvalidArgument, "validateArrayElementType", "empty signature where a single complete type is required")
	}
	span, err := completeArrayElementSpan(sig, 0)
	if err != nil {
		return err
	}
	if span != len(sig) {
		return errorf(CodeInvalidArgument, "validateArrayElementType", "signature %q is not a single complete type", sig)
	}
	return nil
}

// containerMarkerText reconstructs the textual form a container's open
// would contribute to an enclosing signature: "a"+contents for ARRAY,
// "v" for VARIANT (contents aren't embedded in the outer signature),
// "("+contents+")" for STRUCT, "{"+contents+"}" for DICT_ENTRY.
func containerMarkerText(kind byte, contents string) string {
	switch kind {
	case TypeArray:
		return string(TypeArray) + contents
	case TypeVariant:
		return string(TypeVariant)
	case TypeStruct:
		return string(TypeStruct) + contents + string(TypeStructEnd)
	case TypeDictEntry:
		return string(TypeDictEntry) + contents + string(TypeDictEntryEnd)
	default:
		return ""
	}
}
