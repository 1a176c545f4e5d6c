package busmessage

import "encoding/binary"

// This file encodes and decodes the fixed 16-byte message header and the
// variable-length header fields array that follows it, grounded directly
// in the teacher's header.go: the same field layout, the same "decode the
// fixed yyyyuua portion, then walk (yv) structs" shape, generalized from
// systemd's fixed field set to the codec's general container model.

// headerPrologueSize is the length of the fixed part of the header, i.e.
// from the byte-order marker up to (not including) the header fields
// array.
const headerPrologueSize = 16

// encodeHeaderPrologue writes the 16-byte fixed header. fieldsSize is the
// length of the header fields array in bytes, excluding its own trailing
// padding to an 8-byte boundary.
func encodeHeaderPrologue(order byte, msgType MessageType, flags byte, bodySize, serial, fieldsSize uint32) []byte {
	b := make([]byte, headerPrologueSize)
	b[0] = order
	b[1] = byte(msgType)
	b[2] = flags
	b[3] = protocolVersion
	bo := byteOrderOf(order)
	bo.PutUint32(b[4:8], bodySize)
	bo.PutUint32(b[8:12], serial)
	bo.PutUint32(b[12:16], fieldsSize)
	return b
}

// byteOrderOf maps a wire byte-order marker to the corresponding
// binary.ByteOrder, or nil if the marker is invalid.
func byteOrderOf(marker byte) binary.ByteOrder {
	switch marker {
	case littleEndian:
		return binary.LittleEndian
	case bigEndian:
		return binary.BigEndian
	default:
		return nil
	}
}

// decodedPrologue is the parsed form of the fixed 16-byte header.
type decodedPrologue struct {
	order      binary.ByteOrder
	marker     byte
	msgType    MessageType
	flags      byte
	version    byte
	bodySize   uint32
	serial     uint32
	fieldsSize uint32
}

// decodeHeaderPrologue validates and parses the fixed 16-byte header
// (spec §4.5 from_buffer preconditions).
func decodeHeaderPrologue(b []byte) (decodedPrologue, error) {
	var p decodedPrologue
	if len(b) < headerPrologueSize {
		return p, errorf(CodeMalformedMessage, "decodeHeaderPrologue", "buffer shorter than the 16-byte header")
	}

	p.marker = b[0]
	p.order = byteOrderOf(p.marker)
	if p.order == nil {
		return p, errorf(CodeMalformedMessage, "decodeHeaderPrologue", "unknown byte order marker %q", p.marker)
	}

	p.msgType = MessageType(b[1])
	switch p.msgType {
	case TypeMethodCall, TypeMethodReturn, TypeError, TypeSignal:
	default:
		return p, errorf(CodeMalformedMessage, "decodeHeaderPrologue", "unknown message type %d", b[1])
	}

	p.flags = b[2]
	p.version = b[3]
	if p.version != protocolVersion {
		return p, errorf(CodeMalformedMessage, "decodeHeaderPrologue", "unsupported protocol version %d", p.version)
	}

	p.bodySize = p.order.Uint32(b[4:8])
	p.serial = p.order.Uint32(b[8:12])
	if p.serial == 0 {
		return p, errorf(CodeMalformedMessage, "decodeHeaderPrologue", "serial must be nonzero")
	}
	p.fieldsSize = p.order.Uint32(b[12:16])

	return p, nil
}

// appendHeaderField appends one (BYTE code, VARIANT value) struct to the
// fields region. The struct is 8-byte aligned, matching the "a(yv)"
// signature of the header fields array.
func appendHeaderField(buf *[]byte, code byte, sig string, writeValue func(*[]byte) error) error {
	if _, err := appendAligned(buf, containerAlign, 0); err != nil {
		return err
	}
	if err := writeRawByte(buf, code); err != nil {
		return err
	}
	if err := writeRawSignature(buf, sig); err != nil {
		return err
	}
	return writeValue(buf)
}

func appendHeaderFieldString(buf *[]byte, code byte, sig, value string) error {
	return appendHeaderField(buf, code, sig, func(b *[]byte) error {
		return writeRawString(b, binary.LittleEndian, value)
	})
}

func appendHeaderFieldUint32(buf *[]byte, code byte, value uint32) error {
	return appendHeaderField(buf, code, "u", func(b *[]byte) error {
		return writeRawUint32(b, binary.LittleEndian, value)
	})
}

func appendHeaderFieldSignature(buf *[]byte, code byte, value string) error {
	return appendHeaderField(buf, code, "g", func(b *[]byte) error {
		return writeRawSignature(b, value)
	})
}
