package busmessage

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf8"
)

// This file is the write half of the signature state machine (spec §4.3):
// every append or container open is checked against the current frame's
// expected slot before a single byte is written, and the frame's
// bookkeeping (root signature growth, non-root cursor advance) only
// commits once the corresponding body write has actually succeeded, so a
// failed append never leaves the message's declared signature ahead of
// its actual body bytes.

// checkSlot reports whether text (a basic type's single character, or a
// container's containerMarkerText) is acceptable at the current position,
// without mutating any state.
func (m *Message) checkSlot(text string) error {
	const op = "checkSlot"
	top := m.containers.top()
	switch top.enclosing {
	case 0:
		return nil
	case TypeArray:
		if top.signature != text {
			return errorf(CodeTypeMismatch, op, "array of %q cannot hold a %q", top.signature, text)
		}
		return nil
	default: // TypeVariant, TypeStruct, TypeDictEntry
		remaining := top.signature[top.index:]
		if !strings.HasPrefix(remaining, text) {
			return errorf(CodeTypeMismatch, op, "expected %q at position %d of %q, got %q", remaining, top.index, top.signature, text)
		}
		return nil
	}
}

// commitSlot records that text was just written (or, on a sealed message,
// read) at the current position, advancing the frame's cursor. While the
// message is being built, the root frame's signature grows instead.
// Callers must only call this after the corresponding body write or read
// has succeeded.
func (m *Message) commitSlot(text string) {
	top := m.containers.top()
	switch top.enclosing {
	case 0:
		if m.sealed {
			top.index += len(text)
		} else {
			top.signature += text
		}
	case TypeArray:
		// index is always 0: the single element type is reused.
	default:
		top.index += len(text)
	}
}

// AppendBasic appends a single basic-type value to the body at the
// current position. value's Go type must match kind (see writeBasicValue).
func (m *Message) AppendBasic(kind byte, value any) error {
	const op = "AppendBasic"
	if m.sealed {
		return errorf(CodeInvalidState, op, "message is sealed")
	}
	if !isBasicType(kind) {
		return errorf(CodeInvalidArgument, op, "%q is not a basic type", string(kind))
	}
	text := string(kind)
	if err := m.checkSlot(text); err != nil {
		return err
	}
	if err := m.writeBasicValue(kind, value); err != nil {
		return err
	}
	m.commitSlot(text)
	return nil
}

func (m *Message) writeBasicValue(kind byte, value any) error {
	const op = "AppendBasic"
	body := &m.buffers.body
	switch kind {
	case TypeByte:
		v, ok := value.(byte)
		if !ok {
			return errorf(CodeInvalidArgument, op, "BYTE requires a byte, got %T", value)
		}
		return writeRawByte(body, v)

	case TypeBoolean:
		v, ok := value.(bool)
		if !ok {
			return errorf(CodeInvalidArgument, op, "BOOLEAN requires a bool, got %T", value)
		}
		var u uint32
		if v {
			u = 1
		}
		return writeRawUint32(body, binary.LittleEndian, u)

	case TypeInt16:
		v, ok := value.(int16)
		if !ok {
			return errorf(CodeInvalidArgument, op, "INT16 requires an int16, got %T", value)
		}
		return writeRawUint16(body, binary.LittleEndian, uint16(v))

	case TypeUint16:
		v, ok := value.(uint16)
		if !ok {
			return errorf(CodeInvalidArgument, op, "UINT16 requires a uint16, got %T", value)
		}
		return writeRawUint16(body, binary.LittleEndian, v)

	case TypeInt32:
		v, ok := value.(int32)
		if !ok {
			return errorf(CodeInvalidArgument, op, "INT32 requires an int32, got %T", value)
		}
		return writeRawUint32(body, binary.LittleEndian, uint32(v))

	case TypeUint32:
		v, ok := value.(uint32)
		if !ok {
			return errorf(CodeInvalidArgument, op, "UINT32 requires a uint32, got %T", value)
		}
		return writeRawUint32(body, binary.LittleEndian, v)

	case TypeInt64:
		v, ok := value.(int64)
		if !ok {
			return errorf(CodeInvalidArgument, op, "INT64 requires an int64, got %T", value)
		}
		return writeRawUint64(body, binary.LittleEndian, uint64(v))

	case TypeUint64:
		v, ok := value.(uint64)
		if !ok {
			return errorf(CodeInvalidArgument, op, "UINT64 requires a uint64, got %T", value)
		}
		return writeRawUint64(body, binary.LittleEndian, v)

	case TypeDouble:
		v, ok := value.(float64)
		if !ok {
			return errorf(CodeInvalidArgument, op, "DOUBLE requires a float64, got %T", value)
		}
		return writeRawUint64(body, binary.LittleEndian, math.Float64bits(v))

	case TypeUnixFD:
		v, ok := value.(int)
		if !ok {
			return errorf(CodeInvalidArgument, op, "UNIX_FD requires an int, got %T", value)
		}
		idx := uint32(len(m.fds))
		if err := writeRawUint32(body, binary.LittleEndian, idx); err != nil {
			return err
		}
		m.fds = append(m.fds, v)
		return nil

	case TypeString:
		v, ok := value.(string)
		if !ok {
			return errorf(CodeInvalidArgument, op, "STRING requires a string, got %T", value)
		}
		if !utf8.ValidString(v) {
			return errorf(CodeInvalidArgument, op, "STRING value is not valid UTF-8")
		}
		return writeRawString(body, binary.LittleEndian, v)

	case TypeObjectPath:
		v, ok := value.(string)
		if !ok {
			return errorf(CodeInvalidArgument, op, "OBJECT_PATH requires a string, got %T", value)
		}
		if err := validatePath(v); err != nil {
			return newErr(CodeInvalidArgument, op, err)
		}
		return writeRawString(body, binary.LittleEndian, v)

	case TypeSignature:
		v, ok := value.(string)
		if !ok {
			return errorf(CodeInvalidArgument, op, "SIGNATURE requires a string, got %T", value)
		}
		if err := validateSignature(v); err != nil {
			return newErr(CodeInvalidArgument, op, err)
		}
		return writeRawSignature(body, v)

	default:
		return errorf(CodeInvalidArgument, op, "unhandled basic type %q", string(kind))
	}
}

// Append walks typeString and appends args in order, per spec §4.4's
// append_variadic: a basic type code consumes one arg; 'a' consumes one int
// arg (the element count) followed by that many repeats of the element
// type's own args; 'v' consumes one string arg (the variant's contents
// signature) followed by that signature's args; '(' and '{' open the
// matching container, recurse over their member signature, and close it.
func (m *Message) Append(typeString string, args ...any) error {
	const op = "Append"
	next, rest := argCursor(args)
	if err := m.appendTypeString(op, typeString, next); err != nil {
		return err
	}
	if len(*rest) != 0 {
		return errorf(CodeInvalidArgument, op, "%d unconsumed argument(s) for signature %q", len(*rest), typeString)
	}
	return nil
}

// argCursor returns a function that pops args one at a time, plus the
// remaining slice (so the caller can confirm every arg was consumed).
func argCursor(args []any) (func() (any, error), *[]any) {
	rest := args
	next := func() (any, error) {
		if len(rest) == 0 {
			return nil, errorf(CodeInvalidArgument, "Append", "not enough arguments")
		}
		v := rest[0]
		rest = rest[1:]
		return v, nil
	}
	return next, &rest
}

// appendTypeString recursively appends one complete type at a time from
// sig, consuming whatever args each type requires from next.
func (m *Message) appendTypeString(op, sig string, next func() (any, error)) error {
	i := 0
	for i < len(sig) {
		c := sig[i]
		switch {
		case isBasicType(c):
			v, err := next()
			if err != nil {
				return err
			}
			if err := m.AppendBasic(c, v); err != nil {
				return err
			}
			i++

		case c == TypeArray:
			elemSpan, err := completeArrayElementSpan(sig, i+1)
			if err != nil {
				return newErr(CodeInvalidArgument, op, err)
			}
			elem := sig[i+1 : i+1+elemSpan]
			countArg, err := next()
			if err != nil {
				return err
			}
			count, ok := toElementCount(countArg)
			if !ok {
				return errorf(CodeInvalidArgument, op, "array element count must be an integer, got %T", countArg)
			}
			if err := m.OpenContainer(TypeArray, elem); err != nil {
				return err
			}
			for n := 0; n < count; n++ {
				if err := m.appendTypeString(op, elem, next); err != nil {
					return err
				}
			}
			if err := m.CloseContainer(); err != nil {
				return err
			}
			i += 1 + elemSpan

		case c == TypeVariant:
			sigArg, err := next()
			if err != nil {
				return err
			}
			contents, ok := sigArg.(string)
			if !ok {
				return errorf(CodeInvalidArgument, op, "variant contents must be a signature string, got %T", sigArg)
			}
			if err := m.OpenContainer(TypeVariant, contents); err != nil {
				return err
			}
			if err := m.appendTypeString(op, contents, next); err != nil {
				return err
			}
			if err := m.CloseContainer(); err != nil {
				return err
			}
			i++

		case c == TypeStruct:
			span, err := bracketedSpan(sig, i, TypeStruct, TypeStructEnd, 1, -1)
			if err != nil {
				return newErr(CodeInvalidArgument, op, err)
			}
			inner := sig[i+1 : i+span-1]
			if err := m.OpenContainer(TypeStruct, inner); err != nil {
				return err
			}
			if err := m.appendTypeString(op, inner, next); err != nil {
				return err
			}
			if err := m.CloseContainer(); err != nil {
				return err
			}
			i += span

		case c == TypeDictEntry:
			span, err := bracketedSpan(sig, i, TypeDictEntry, TypeDictEntryEnd, 2, 2)
			if err != nil {
				return newErr(CodeInvalidArgument, op, err)
			}
			inner := sig[i+1 : i+span-1]
			if err := m.OpenContainer(TypeDictEntry, inner); err != nil {
				return err
			}
			if err := m.appendTypeString(op, inner, next); err != nil {
				return err
			}
			if err := m.CloseContainer(); err != nil {
				return err
			}
			i += span

		default:
			return errorf(CodeInvalidArgument, op, "unknown type code %q in signature %q", string(c), sig)
		}
	}
	return nil
}

// toElementCount accepts any of the Go integer types a caller might
// reasonably pass as an ARRAY element count.
func toElementCount(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}

// OpenContainer opens a new container frame of the given kind. contents
// is the single complete type an ARRAY or VARIANT will hold, or the full
// member signature for a STRUCT or DICT_ENTRY.
func (m *Message) OpenContainer(kind byte, contents string) error {
	const op = "OpenContainer"
	if m.sealed {
		return errorf(CodeInvalidState, op, "message is sealed")
	}
	if !isContainerOpen(kind) {
		return errorf(CodeInvalidArgument, op, "%q does not open a container", string(kind))
	}
	if m.containers.depth() >= BusContainerDepth {
		return errorf(CodeInvalidArgument, op, "container depth exceeds limit of %d", BusContainerDepth)
	}

	switch kind {
	case TypeArray:
		if err := validateArrayElementType(contents); err != nil {
			return newErr(CodeInvalidArgument, op, err)
		}
	case TypeVariant:
		if err := validateSingleCompleteType(contents); err != nil {
			return newErr(CodeInvalidArgument, op, err)
		}
	case TypeStruct:
		if contents == "" {
			return errorf(CodeInvalidArgument, op, "struct must have at least one member")
		}
		if err := validateSignature(contents); err != nil {
			return newErr(CodeInvalidArgument, op, err)
		}
	case TypeDictEntry:
		// spec §4.3: "Open DICT_ENTRY(contents): only legal when the
		// enclosing frame is ARRAY."
		if m.containers.top().enclosing != TypeArray {
			return errorf(CodeInvalidArgument, op, "dict entry may only be opened inside an array")
		}
		if err := validateDictEntryContents(contents); err != nil {
			return newErr(CodeInvalidArgument, op, err)
		}
	}

	text := containerMarkerText(kind, contents)
	if err := m.checkSlot(text); err != nil {
		return err
	}

	frame := container{enclosing: kind, signature: contents}
	if err := m.openContainerBody(kind, contents, &frame); err != nil {
		return err
	}

	m.commitSlot(text)
	return m.containers.push(frame)
}

// openContainerBody performs the body writes OpenContainer needs before
// the new frame becomes current: the ARRAY length placeholder and
// element alignment, or the VARIANT's embedded signature, or the plain
// 8-byte alignment STRUCT and DICT_ENTRY require.
func (m *Message) openContainerBody(kind byte, contents string, frame *container) error {
	switch kind {
	case TypeArray:
		lenOff, err := m.buffers.extendBody(4, 4)
		if err != nil {
			return err
		}
		frame.arraySize = lenOff
		begin, err := appendAligned(&m.buffers.body, elementAlignment(contents), 0)
		if err != nil {
			return err
		}
		frame.begin = begin
		return nil

	case TypeVariant:
		if err := writeRawSignature(&m.buffers.body, contents); err != nil {
			return err
		}
		frame.begin = uint32(len(m.buffers.body))
		return nil

	default: // TypeStruct, TypeDictEntry
		begin, err := appendAligned(&m.buffers.body, containerAlign, 0)
		if err != nil {
			return err
		}
		frame.begin = begin
		return nil
	}
}

// elementAlignment is the wire alignment of the single complete type
// contents describes, used to align an ARRAY's first element.
func elementAlignment(contents string) uint32 {
	if contents == "" {
		return 1
	}
	c := contents[0]
	switch {
	case isBasicType(c):
		return basicTypes[c].align
	case c == TypeArray:
		return 4
	case c == TypeVariant:
		return 1
	case c == TypeStruct, c == TypeDictEntry:
		return containerAlign
	default:
		return 1
	}
}

// validateDictEntryContents checks contents is exactly two complete
// types, the first of which is a basic type (spec invariant 5).
func validateDictEntryContents(contents string) error {
	const op = "validateDictEntryContents"
	if contents == "" {
		return errorf(CodeInvalidArgument, op, "dict entry requires a key and a value type")
	}
	keySpan, err := completeTypeSpan(contents, 0)
	if err != nil {
		return err
	}
	if !isBasicType(contents[0]) {
		return errorf(CodeInvalidArgument, op, "dict entry key must be a basic type, got %q", contents[:keySpan])
	}
	if keySpan >= len(contents) {
		return errorf(CodeInvalidArgument, op, "dict entry requires a value type after the key")
	}
	valueSpan, err := completeTypeSpan(contents, keySpan)
	if err != nil {
		return err
	}
	if keySpan+valueSpan != len(contents) {
		return errorf(CodeInvalidArgument, op, "dict entry takes exactly one key and one value, got %q", contents)
	}
	return nil
}

// CloseContainer closes the innermost open container, validating that
// STRUCT, DICT_ENTRY and VARIANT frames were filled completely, and
// patching the ARRAY length prefix from the accumulated body span (spec
// §4.1's incremental array-length bookkeeping is unnecessary here: the
// whole message is buffered before Seal, so the length is simply
// len(body)-begin at close).
func (m *Message) CloseContainer() error {
	const op = "CloseContainer"
	if m.sealed {
		return errorf(CodeInvalidState, op, "message is sealed")
	}
	if m.containers.depth() == 0 {
		return errorf(CodeInvalidState, op, "no open container to close")
	}

	top := m.containers.top()
	switch top.enclosing {
	case TypeStruct:
		if top.index != len(top.signature) {
			return errorf(CodeInvalidState, op, "struct closed with %d of %q members missing", len(top.signature)-top.index, top.signature)
		}
	case TypeDictEntry:
		if top.index != len(top.signature) {
			return errorf(CodeInvalidState, op, "dict entry closed before its value was written")
		}
	case TypeVariant:
		if top.index != len(top.signature) {
			return errorf(CodeInvalidState, op, "variant closed without writing its declared %q value", top.signature)
		}
	case TypeArray:
		length := uint32(len(m.buffers.body)) - top.begin
		if length > BusArrayMaxSize {
			return errorf(CodeInvalidArgument, op, "array body of %d bytes exceeds the %d byte cap", length, BusArrayMaxSize)
		}
		binary.LittleEndian.PutUint32(m.buffers.body[top.arraySize:top.arraySize+4], length)
	}

	m.containers.pop()
	return nil
}
