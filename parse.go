package busmessage

import "encoding/binary"

// FromBuffer parses a complete wire-format message out of buf (the fixed
// header, the header fields array, its trailing padding, and the body, all
// contiguous — the shape Seal produces). fds are the file descriptors the
// transport received out-of-band (e.g. via SCM_RIGHTS) for this message;
// creds and label are the sender credentials the transport captured at
// the socket level, if any. metrics may be nil.
func FromBuffer(buf []byte, fds []int, creds *Credentials, label string, metrics *Metrics) (m *Message, err error) {
	const op = "FromBuffer"
	defer func() {
		if err != nil {
			code := CodeMalformedMessage
			if ce, ok := err.(*CodecError); ok {
				code = ce.Code
			}
			metrics.observeParseError(code)
		}
	}()

	prologue, err := decodeHeaderPrologue(buf)
	if err != nil {
		return nil, err
	}

	fieldsEnd := uint64(headerPrologueSize) + uint64(prologue.fieldsSize)
	if fieldsEnd > uint64(len(buf)) {
		return nil, errorf(CodeMalformedMessage, op, "buffer too short for declared header fields size")
	}
	padded := alignUp(uint32(fieldsEnd), containerAlign)
	bodyStart := uint64(padded)
	bodyEnd := bodyStart + uint64(prologue.bodySize)
	if bodyEnd != uint64(len(buf)) {
		return nil, errorf(CodeMalformedMessage, op, "buffer length %d does not match header+fields+body (%d)", len(buf), bodyEnd)
	}

	parsed, err := parseFields(buf[headerPrologueSize:fieldsEnd], prologue.order)
	if err != nil {
		return nil, err
	}

	m = newMessage(prologue.msgType)
	m.byteOrder = prologue.marker
	m.order = prologue.order
	m.flags = prologue.flags
	m.serial = prologue.serial
	m.sealed = true
	m.buffers.fields = buf[headerPrologueSize:fieldsEnd]
	m.buffers.body = buf[bodyStart:bodyEnd]
	m.blob = buf
	m.creds = creds
	m.label = label
	m.metrics = metrics

	m.path, m.hasPath = parsed.path, parsed.hasPath
	m.iface, m.hasIface = parsed.iface, parsed.hasIface
	m.member, m.hasMember = parsed.member, parsed.hasMember
	m.destination, m.hasDestination = parsed.destination, parsed.hasDestination
	m.sender, m.hasSender = parsed.sender, parsed.hasSender
	m.errorName, m.hasErrorName = parsed.errorName, parsed.hasErrorName
	m.replySerial, m.hasReplySerial = parsed.replySerial, parsed.hasReplySerial

	if err := validateSignature(parsed.signature); err != nil {
		return nil, newErr(CodeMalformedMessage, op, err)
	}
	if (prologue.bodySize == 0) != (parsed.signature == "") {
		return nil, errorf(CodeMalformedMessage, op, "body size and SIGNATURE field disagree")
	}
	if err := m.enforceHeaderRequirements(op); err != nil {
		return nil, err
	}
	if uint32(len(fds)) != parsed.unixFDs {
		return nil, errorf(CodeMalformedMessage, op, "declared %d unix fds but %d were supplied", parsed.unixFDs, len(fds))
	}
	m.fds = fds

	m.containers.frames[0].signature = parsed.signature
	if parsed.hasErrorName && parsed.signature != "" && parsed.signature[0] == TypeString {
		if v, err := peekFirstString(m.buffers.body, m.order); err == nil {
			m.errorMessage = v
		}
	}

	metrics.observeParsed()
	return m, nil
}

// peekFirstString reads the leading STRING argument of a message body
// without disturbing the caller's read cursor, used to surface a METHOD_ERROR's
// conventional human-readable message via ErrorMessage().
func peekFirstString(body []byte, order binary.ByteOrder) (string, error) {
	tmp := &Message{
		order:      order,
		sealed:     true,
		containers: newContainerStack(),
		buffers:    buffers{body: body},
	}
	tmp.containers.frames[0].signature = string(TypeString)
	v, err := tmp.ReadBasic(TypeString)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// parsedFields holds the header fields array enumeration's output
// (spec §4.5's parse_fields): every quick-access value FromBuffer needs,
// plus SIGNATURE and UNIX_FDS which aren't kept on Message directly.
type parsedFields struct {
	path, iface, member, destination, sender string
	hasPath, hasIface, hasMember              bool
	hasDestination, hasSender                 bool
	errorName                                 string
	hasErrorName                              bool
	replySerial                               uint32
	hasReplySerial                            bool
	signature                                 string
	unixFDs                                   uint32
}

func parseFields(region []byte, order binary.ByteOrder) (parsedFields, error) {
	const op = "parseFields"
	var out parsedFields
	cur := fieldCursor{buf: region, order: order}

	for cur.pos < uint32(len(region)) {
		if err := cur.align(containerAlign); err != nil {
			return out, err
		}
		if cur.pos >= uint32(len(region)) {
			break
		}
		code, err := cur.readByte()
		if err != nil {
			return out, err
		}
		sig, err := cur.readSignature()
		if err != nil {
			return out, err
		}
		if err := validateSingleCompleteType(sig); err != nil {
			return out, newErr(CodeMalformedMessage, op, err)
		}

		switch code {
		case fieldPath:
			if sig != string(TypeObjectPath) {
				return out, errorf(CodeMalformedMessage, op, "PATH field has signature %q", sig)
			}
			v, err := cur.readString()
			if err != nil {
				return out, err
			}
			if err := validatePath(v); err != nil {
				return out, newErr(CodeMalformedMessage, op, err)
			}
			out.path, out.hasPath = v, true

		case fieldInterface:
			v, err := requireStringField(&cur, sig, "INTERFACE")
			if err != nil {
				return out, err
			}
			out.iface, out.hasIface = v, true

		case fieldMember:
			v, err := requireStringField(&cur, sig, "MEMBER")
			if err != nil {
				return out, err
			}
			out.member, out.hasMember = v, true

		case fieldErrorName:
			v, err := requireStringField(&cur, sig, "ERROR_NAME")
			if err != nil {
				return out, err
			}
			out.errorName, out.hasErrorName = v, true

		case fieldDestination:
			v, err := requireStringField(&cur, sig, "DESTINATION")
			if err != nil {
				return out, err
			}
			out.destination, out.hasDestination = v, true

		case fieldSender:
			v, err := requireStringField(&cur, sig, "SENDER")
			if err != nil {
				return out, err
			}
			out.sender, out.hasSender = v, true

		case fieldReplySerial:
			if sig != string(TypeUint32) {
				return out, errorf(CodeMalformedMessage, op, "REPLY_SERIAL field has signature %q", sig)
			}
			v, err := cur.readUint32()
			if err != nil {
				return out, err
			}
			if v == 0 {
				return out, errorf(CodeMalformedMessage, op, "REPLY_SERIAL must be nonzero")
			}
			out.replySerial, out.hasReplySerial = v, true

		case fieldSignature:
			if sig != string(TypeSignature) {
				return out, errorf(CodeMalformedMessage, op, "SIGNATURE field has signature %q", sig)
			}
			v, err := cur.readSignature()
			if err != nil {
				return out, err
			}
			out.signature = v

		case fieldUnixFDs:
			if sig != string(TypeUint32) {
				return out, errorf(CodeMalformedMessage, op, "UNIX_FDS field has signature %q", sig)
			}
			v, err := cur.readUint32()
			if err != nil {
				return out, err
			}
			out.unixFDs = v

		default:
			// Unknown field codes are skipped rather than rejected, so a
			// newer peer's extra header fields don't break this one.
			if err := cur.skipValue(sig); err != nil {
				return out, err
			}
		}
	}

	return out, nil
}

func requireStringField(cur *fieldCursor, sig, name string) (string, error) {
	if sig != string(TypeString) {
		return "", errorf(CodeMalformedMessage, "parseFields", "%s field has signature %q", name, sig)
	}
	return cur.readString()
}

// fieldCursor is a standalone reader over the header fields region, kept
// independent of Message's own rindex/containers so header parsing can
// run before a Message exists to hang it off of.
type fieldCursor struct {
	buf   []byte
	pos   uint32
	order binary.ByteOrder
}

func (c *fieldCursor) align(a uint32) error {
	const op = "fieldCursor.align"
	aligned := alignUp(c.pos, a)
	if aligned > uint32(len(c.buf)) {
		return errorf(CodeMalformedMessage, op, "read past end of header fields")
	}
	for i := c.pos; i < aligned; i++ {
		if c.buf[i] != 0 {
			return errorf(CodeMalformedMessage, op, "non-zero alignment padding at offset %d", i)
		}
	}
	c.pos = aligned
	return nil
}

func (c *fieldCursor) readByte() (byte, error) {
	if err := c.align(1); err != nil {
		return 0, err
	}
	if c.pos+1 > uint32(len(c.buf)) {
		return 0, errorf(CodeMalformedMessage, "fieldCursor.readByte", "read past end of header fields")
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *fieldCursor) readUint32() (uint32, error) {
	if err := c.align(4); err != nil {
		return 0, err
	}
	if c.pos+4 > uint32(len(c.buf)) {
		return 0, errorf(CodeMalformedMessage, "fieldCursor.readUint32", "read past end of header fields")
	}
	v := c.order.Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	return v, nil
}

func (c *fieldCursor) readString() (string, error) {
	const op = "fieldCursor.readString"
	n, err := c.readUint32()
	if err != nil {
		return "", err
	}
	end := uint64(c.pos) + uint64(n)
	if end+1 > uint64(len(c.buf)) {
		return "", errorf(CodeMalformedMessage, op, "string runs past end of header fields")
	}
	if c.buf[uint32(end)] != 0 {
		return "", errorf(CodeMalformedMessage, op, "string missing trailing NUL")
	}
	s := string(c.buf[c.pos:uint32(end)])
	c.pos = uint32(end) + 1
	return s, nil
}

func (c *fieldCursor) readSignature() (string, error) {
	const op = "fieldCursor.readSignature"
	if err := c.align(1); err != nil {
		return "", err
	}
	if c.pos+1 > uint32(len(c.buf)) {
		return "", errorf(CodeMalformedMessage, op, "signature length byte missing")
	}
	n := uint32(c.buf[c.pos])
	strStart := c.pos + 1
	end := uint64(strStart) + uint64(n)
	if end+1 > uint64(len(c.buf)) {
		return "", errorf(CodeMalformedMessage, op, "signature runs past end of header fields")
	}
	if c.buf[uint32(end)] != 0 {
		return "", errorf(CodeMalformedMessage, op, "signature missing trailing NUL")
	}
	s := string(c.buf[strStart:uint32(end)])
	c.pos = uint32(end) + 1
	return s, nil
}

// skipValue advances past one complete-type value of signature sig,
// used to tolerate unrecognized header field codes.
func (c *fieldCursor) skipValue(sig string) error {
	if sig == "" {
		return nil
	}
	first := sig[0]
	switch {
	case isBasicType(first):
		return c.skipBasic(first)
	case first == TypeVariant:
		inner, err := c.readSignature()
		if err != nil {
			return err
		}
		if err := validateSingleCompleteType(inner); err != nil {
			return newErr(CodeMalformedMessage, "fieldCursor.skipValue", err)
		}
		return c.skipValue(inner)
	case first == TypeArray:
		contents := sig[1:]
		n, err := c.readUint32()
		if err != nil {
			return err
		}
		if err := c.align(elementAlignment(contents)); err != nil {
			return err
		}
		end := c.pos + n
		if end > uint32(len(c.buf)) {
			return errorf(CodeMalformedMessage, "fieldCursor.skipValue", "array runs past end of header fields")
		}
		for c.pos < end {
			if err := c.skipValue(contents); err != nil {
				return err
			}
		}
		return nil
	case first == TypeStruct, first == TypeDictEntry:
		if err := c.align(containerAlign); err != nil {
			return err
		}
		inner := sig[1 : len(sig)-1]
		for len(inner) > 0 {
			span, err := completeTypeSpan(inner, 0)
			if err != nil {
				return err
			}
			if err := c.skipValue(inner[:span]); err != nil {
				return err
			}
			inner = inner[span:]
		}
		return nil
	default:
		return errorf(CodeInvalidArgument, "fieldCursor.skipValue", "unknown type code %q", string(first))
	}
}

func (c *fieldCursor) skipBasic(kind byte) error {
	switch kind {
	case TypeByte:
		_, err := c.readByte()
		return err
	case TypeBoolean, TypeInt32, TypeUint32, TypeUnixFD:
		_, err := c.readUint32()
		return err
	case TypeInt16, TypeUint16:
		if err := c.align(2); err != nil {
			return err
		}
		if c.pos+2 > uint32(len(c.buf)) {
			return errorf(CodeMalformedMessage, "fieldCursor.skipBasic", "read past end of header fields")
		}
		c.pos += 2
		return nil
	case TypeInt64, TypeUint64, TypeDouble:
		if err := c.align(8); err != nil {
			return err
		}
		if c.pos+8 > uint32(len(c.buf)) {
			return errorf(CodeMalformedMessage, "fieldCursor.skipBasic", "read past end of header fields")
		}
		c.pos += 8
		return nil
	case TypeString, TypeObjectPath:
		_, err := c.readString()
		return err
	case TypeSignature:
		_, err := c.readSignature()
		return err
	default:
		return errorf(CodeInvalidArgument, "fieldCursor.skipBasic", "unknown basic type %q", string(kind))
	}
}
