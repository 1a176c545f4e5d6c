package busmessage

import (
	"math"
	"unicode/utf8"
)

// This file is the read half of the signature state machine: ReadBasic
// and EnterContainer reuse commitSlot from writer.go to advance the
// position, while EnterContainer/ExitContainer additionally perform the
// incremental begin+length==rindex validation spec.md requires for
// untrusted input, which the write path's CloseContainer-time lazy length
// computation doesn't need.

// AtEnd reports whether the current container has no more values to read.
func (m *Message) AtEnd() bool {
	return m.atEnd(m.containers.top())
}

func (m *Message) atEnd(top *container) bool {
	if top.enclosing == TypeArray {
		return m.rindex >= top.begin+top.arraySize
	}
	return top.index >= len(top.signature)
}

// PeekType returns the type code of the next value at the current
// position without consuming it.
func (m *Message) PeekType() (byte, error) {
	const op = "PeekType"
	if !m.sealed {
		return 0, errorf(CodeInvalidState, op, "message is not sealed")
	}
	top := m.containers.top()
	if m.atEnd(top) {
		return 0, errorf(CodeInvalidState, op, "at end of container")
	}

	var elemText string
	if top.enclosing == TypeArray {
		elemText = top.signature
	} else {
		span, err := completeTypeSpan(top.signature, top.index)
		if err != nil {
			return 0, err
		}
		elemText = top.signature[top.index : top.index+span]
	}

	m.peekedContents = containerContentsOf(elemText)
	return elemText[0], nil
}

// containerContentsOf extracts the inner contents signature from a
// complete-type's marker text, i.e. the inverse of containerMarkerText.
// Returns "" for basic types and VARIANT (whose contents aren't known
// until its embedded signature is read by EnterContainer).
func containerContentsOf(elemText string) string {
	c := elemText[0]
	switch {
	case c == TypeArray:
		return elemText[1:]
	case c == TypeStruct, c == TypeDictEntry:
		return elemText[1 : len(elemText)-1]
	default:
		return ""
	}
}

// ReadBasic reads the next value, which must be of type kind.
func (m *Message) ReadBasic(kind byte) (any, error) {
	const op = "ReadBasic"
	if !isBasicType(kind) {
		return nil, errorf(CodeInvalidArgument, op, "%q is not a basic type", string(kind))
	}
	c, err := m.PeekType()
	if err != nil {
		return nil, err
	}
	if c != kind {
		return nil, errorf(CodeTypeMismatch, op, "expected %q, got %q", string(kind), string(c))
	}
	v, err := m.readBasicValue(kind)
	if err != nil {
		return nil, err
	}
	m.commitSlot(string(kind))
	return v, nil
}

func (m *Message) readBasicValue(kind byte) (any, error) {
	const op = "ReadBasic"
	switch kind {
	case TypeByte:
		return m.readRawByte()

	case TypeBoolean:
		v, err := m.readRawUint32()
		if err != nil {
			return nil, err
		}
		if v > 1 {
			return nil, errorf(CodeMalformedMessage, op, "boolean value %d out of range", v)
		}
		return v == 1, nil

	case TypeInt16:
		v, err := m.readRawUint16()
		return int16(v), err

	case TypeUint16:
		return m.readRawUint16()

	case TypeInt32:
		v, err := m.readRawUint32()
		return int32(v), err

	case TypeUint32:
		return m.readRawUint32()

	case TypeInt64:
		v, err := m.readRawUint64()
		return int64(v), err

	case TypeUint64:
		return m.readRawUint64()

	case TypeDouble:
		v, err := m.readRawUint64()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(v), nil

	case TypeUnixFD:
		idx, err := m.readRawUint32()
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(m.fds) {
			return nil, errorf(CodeMalformedMessage, op, "unix fd index %d out of range", idx)
		}
		return m.fds[idx], nil

	case TypeString:
		return m.readRawString()

	case TypeObjectPath:
		s, err := m.readRawString()
		if err != nil {
			return nil, err
		}
		if err := validatePath(s); err != nil {
			return nil, newErr(CodeMalformedMessage, op, err)
		}
		return s, nil

	case TypeSignature:
		s, err := m.readRawSignature()
		if err != nil {
			return nil, err
		}
		if err := validateSignature(s); err != nil {
			return nil, newErr(CodeMalformedMessage, op, err)
		}
		return s, nil

	default:
		return nil, errorf(CodeInvalidArgument, op, "unhandled basic type %q", string(kind))
	}
}

// EnterContainer enters the next value, which must be a container of the
// given kind, making its contents the current position.
func (m *Message) EnterContainer(kind byte) error {
	const op = "EnterContainer"
	if !isContainerOpen(kind) {
		return errorf(CodeInvalidArgument, op, "%q is not a container", string(kind))
	}
	if m.containers.depth() >= BusContainerDepth {
		return errorf(CodeMalformedMessage, op, "container depth exceeds limit of %d", BusContainerDepth)
	}
	c, err := m.PeekType()
	if err != nil {
		return err
	}
	if c != kind {
		return errorf(CodeTypeMismatch, op, "expected %q, got %q", string(kind), string(c))
	}

	contents := m.peekedContents
	frame := container{enclosing: kind}

	switch kind {
	case TypeArray:
		length, err := m.readRawUint32()
		if err != nil {
			return err
		}
		if length > BusArrayMaxSize {
			return errorf(CodeMalformedMessage, op, "array length %d exceeds the %d byte cap", length, BusArrayMaxSize)
		}
		begin, err := m.alignRead(elementAlignment(contents))
		if err != nil {
			return err
		}
		if uint64(begin)+uint64(length) > uint64(len(m.buffers.body)) {
			return errorf(CodeMalformedMessage, op, "array of %d bytes runs past end of body", length)
		}
		frame.signature = contents
		frame.begin = begin
		frame.arraySize = length

	case TypeVariant:
		sig, err := m.readRawSignature()
		if err != nil {
			return err
		}
		if err := validateSingleCompleteType(sig); err != nil {
			return newErr(CodeMalformedMessage, op, err)
		}
		frame.signature = sig
		frame.begin = m.rindex

	default: // TypeStruct, TypeDictEntry
		begin, err := m.alignRead(containerAlign)
		if err != nil {
			return err
		}
		frame.signature = contents
		frame.begin = begin
	}

	text := containerMarkerText(kind, frame.signature)
	m.commitSlot(text)
	return m.containers.push(frame)
}

// ExitContainer leaves the current container, which must have been fully
// consumed (every STRUCT/DICT_ENTRY/VARIANT member read, or every ARRAY
// byte accounted for).
func (m *Message) ExitContainer() error {
	const op = "ExitContainer"
	if m.containers.depth() == 0 {
		return errorf(CodeInvalidState, op, "no open container to exit")
	}
	top := m.containers.top()
	switch top.enclosing {
	case TypeStruct, TypeDictEntry, TypeVariant:
		if top.index != len(top.signature) {
			return errorf(CodeInvalidState, op, "container exited with %d of %q unread", len(top.signature)-top.index, top.signature)
		}
	case TypeArray:
		if m.rindex != top.begin+top.arraySize {
			return errorf(CodeMalformedMessage, op, "array exited having consumed %d of %d declared bytes", m.rindex-top.begin, top.arraySize)
		}
	}
	m.containers.pop()
	return nil
}

// Skip consumes and discards the next complete value, recursing into
// containers.
func (m *Message) Skip() error {
	kind, err := m.PeekType()
	if err != nil {
		return err
	}
	if isBasicType(kind) {
		_, err := m.ReadBasic(kind)
		return err
	}
	if err := m.EnterContainer(kind); err != nil {
		return err
	}
	for !m.AtEnd() {
		if err := m.Skip(); err != nil {
			return err
		}
	}
	return m.ExitContainer()
}

// Rewind resets the read cursor. With full set, it returns to the start
// of the message's top-level arguments, discarding any open containers.
// Otherwise it rewinds only to the start of the current (innermost)
// container, which must still be open.
func (m *Message) Rewind(full bool) error {
	const op = "Rewind"
	if !m.sealed {
		return errorf(CodeInvalidState, op, "message is not sealed")
	}
	if full {
		rootSig := m.rootSignature()
		m.containers.reset()
		m.containers.frames[0].signature = rootSig
		m.rindex = 0
		return nil
	}
	top := m.containers.top()
	top.index = 0
	m.rindex = top.begin
	return nil
}

// --- raw body readers ---

func (m *Message) alignRead(align uint32) (uint32, error) {
	const op = "alignRead"
	aligned := alignUp(m.rindex, align)
	if aligned > uint32(len(m.buffers.body)) {
		return 0, errorf(CodeMalformedMessage, op, "read past end of body")
	}
	for i := m.rindex; i < aligned; i++ {
		if m.buffers.body[i] != 0 {
			return 0, errorf(CodeMalformedMessage, op, "non-zero alignment padding at offset %d", i)
		}
	}
	m.rindex = aligned
	return aligned, nil
}

func (m *Message) readRawByte() (byte, error) {
	const op = "readRawByte"
	start, err := m.alignRead(1)
	if err != nil {
		return 0, err
	}
	if start+1 > uint32(len(m.buffers.body)) {
		return 0, errorf(CodeMalformedMessage, op, "read past end of body")
	}
	v := m.buffers.body[start]
	m.rindex = start + 1
	return v, nil
}

func (m *Message) readRawUint16() (uint16, error) {
	const op = "readRawUint16"
	start, err := m.alignRead(2)
	if err != nil {
		return 0, err
	}
	if start+2 > uint32(len(m.buffers.body)) {
		return 0, errorf(CodeMalformedMessage, op, "read past end of body")
	}
	v := m.order.Uint16(m.buffers.body[start : start+2])
	m.rindex = start + 2
	return v, nil
}

func (m *Message) readRawUint32() (uint32, error) {
	const op = "readRawUint32"
	start, err := m.alignRead(4)
	if err != nil {
		return 0, err
	}
	if start+4 > uint32(len(m.buffers.body)) {
		return 0, errorf(CodeMalformedMessage, op, "read past end of body")
	}
	v := m.order.Uint32(m.buffers.body[start : start+4])
	m.rindex = start + 4
	return v, nil
}

func (m *Message) readRawUint64() (uint64, error) {
	const op = "readRawUint64"
	start, err := m.alignRead(8)
	if err != nil {
		return 0, err
	}
	if start+8 > uint32(len(m.buffers.body)) {
		return 0, errorf(CodeMalformedMessage, op, "read past end of body")
	}
	v := m.order.Uint64(m.buffers.body[start : start+8])
	m.rindex = start + 8
	return v, nil
}

func (m *Message) readRawString() (string, error) {
	const op = "readRawString"
	n, err := m.readRawUint32()
	if err != nil {
		return "", err
	}
	start := m.rindex
	end := uint64(start) + uint64(n)
	if end+1 > uint64(len(m.buffers.body)) {
		return "", errorf(CodeMalformedMessage, op, "string runs past end of body")
	}
	if m.buffers.body[start+n] != 0 {
		return "", errorf(CodeMalformedMessage, op, "string missing trailing NUL")
	}
	s := string(m.buffers.body[start : start+n])
	if !utf8.ValidString(s) {
		return "", errorf(CodeMalformedMessage, op, "string is not valid UTF-8")
	}
	m.rindex = start + n + 1
	return s, nil
}

func (m *Message) readRawSignature() (string, error) {
	const op = "readRawSignature"
	start, err := m.alignRead(1)
	if err != nil {
		return "", err
	}
	if start+1 > uint32(len(m.buffers.body)) {
		return "", errorf(CodeMalformedMessage, op, "signature length byte missing")
	}
	n := uint32(m.buffers.body[start])
	strStart := start + 1
	end := uint64(strStart) + uint64(n)
	if end+1 > uint64(len(m.buffers.body)) {
		return "", errorf(CodeMalformedMessage, op, "signature runs past end of body")
	}
	if m.buffers.body[strStart+n] != 0 {
		return "", errorf(CodeMalformedMessage, op, "signature missing trailing NUL")
	}
	s := string(m.buffers.body[strStart : strStart+n])
	m.rindex = strStart + n + 1
	return s, nil
}
