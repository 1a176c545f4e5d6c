package busmessage

import (
	"encoding/binary"
)

// Message is a D-Bus message in either of two states: unsealed and
// mutable (under construction via the writer operations in writer.go), or
// sealed and read-only with respect to body/fields, but still traversable
// via the reader operations in reader.go (spec §3 "Lifecycle").
type Message struct {
	byteOrder byte // 'l' or 'B', the marker this message was built/parsed with
	order     binary.ByteOrder

	msgType MessageType
	flags   byte
	serial  uint32

	buffers    buffers
	containers *containerStack

	sealed bool
	blob   []byte // materialized at Seal or supplied to FromBuffer

	// Quick-access pointers (spec §3), populated directly by the
	// constructors on the build path, or by parseFields on receipt.
	path, iface, member, destination, sender string
	hasPath, hasIface, hasMember             bool
	hasDestination, hasSender                bool
	errorName, errorMessage                  string
	hasErrorName                             bool
	replySerial                              uint32
	hasReplySerial                           bool

	fds []int

	creds *Credentials
	label string

	// dontSend mirrors the originating call's no_reply_expected flag on a
	// reply (spec §9 open question (b)). It is a local hint for whatever
	// transport sends this message, not a wire flag: the D-Bus protocol has
	// no "don't send this reply" bit, so it is never serialized.
	dontSend bool

	rindex uint32 // read cursor: offset into buffers.body

	// peekedContents caches the most recent PeekType container-contents
	// string; overwritten (invalidated) by the next PeekType call, per
	// spec §9's documented lifetime contract.
	peekedContents string

	refcount int32

	metrics *Metrics
}

func newMessage(msgType MessageType) *Message {
	return &Message{
		byteOrder:  littleEndian,
		order:      binary.LittleEndian,
		msgType:    msgType,
		containers: newContainerStack(),
		refcount:   1,
	}
}

// SetMetrics attaches metrics (built with NewMetrics) so a subsequent Seal
// on this Message is instrumented; FromBuffer takes its Metrics as an
// argument instead. Passing nil detaches instrumentation.
func (m *Message) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// rootSignature is the signature of the message body, i.e. the root
// container's (possibly still-growing) signature.
func (m *Message) rootSignature() string {
	return m.containers.frames[0].signature
}

// --- Constructors (spec §4.6) ---

// NewSignal creates a SIGNAL message. path, iface and member are all
// required.
func NewSignal(path, iface, member string) (*Message, error) {
	const op = "NewSignal"
	if path == "" || iface == "" || member == "" {
		return nil, errorf(CodeInvalidArgument, op, "signal requires a path, interface and member")
	}
	if err := validatePath(path); err != nil {
		return nil, newErr(CodeInvalidArgument, op, err)
	}
	if err := validateInterfaceName(iface); err != nil {
		return nil, newErr(CodeInvalidArgument, op, err)
	}
	if err := validateMemberName(member); err != nil {
		return nil, newErr(CodeInvalidArgument, op, err)
	}

	m := newMessage(TypeSignal)
	m.flags |= FlagNoReplyExpected
	if err := m.setHeaderString(op, fieldPath, "o", path, &m.path, &m.hasPath); err != nil {
		return nil, err
	}
	if err := m.setHeaderString(op, fieldInterface, "s", iface, &m.iface, &m.hasIface); err != nil {
		return nil, err
	}
	if err := m.setHeaderString(op, fieldMember, "s", member, &m.member, &m.hasMember); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMethodCall creates a METHOD_CALL message. path and member are
// required; dest and iface may be empty.
func NewMethodCall(dest, path, iface, member string) (*Message, error) {
	const op = "NewMethodCall"
	if path == "" || member == "" {
		return nil, errorf(CodeInvalidArgument, op, "method call requires a path and member")
	}
	if err := validatePath(path); err != nil {
		return nil, newErr(CodeInvalidArgument, op, err)
	}
	if err := validateMemberName(member); err != nil {
		return nil, newErr(CodeInvalidArgument, op, err)
	}
	if iface != "" {
		if err := validateInterfaceName(iface); err != nil {
			return nil, newErr(CodeInvalidArgument, op, err)
		}
	}
	if dest != "" {
		if err := validateBusName(dest); err != nil {
			return nil, newErr(CodeInvalidArgument, op, err)
		}
	}

	m := newMessage(TypeMethodCall)
	if err := m.setHeaderString(op, fieldPath, "o", path, &m.path, &m.hasPath); err != nil {
		return nil, err
	}
	if err := m.setHeaderString(op, fieldMember, "s", member, &m.member, &m.hasMember); err != nil {
		return nil, err
	}
	if iface != "" {
		if err := m.setHeaderString(op, fieldInterface, "s", iface, &m.iface, &m.hasIface); err != nil {
			return nil, err
		}
	}
	if dest != "" {
		if err := m.setHeaderString(op, fieldDestination, "s", dest, &m.destination, &m.hasDestination); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewMethodReturn creates a METHOD_RETURN reply to call, which must be a
// sealed METHOD_CALL.
func NewMethodReturn(call *Message) (*Message, error) {
	const op = "NewMethodReturn"
	if err := requireSealedMethodCall(op, call); err != nil {
		return nil, err
	}

	m := newMessage(TypeMethodReturn)
	m.dontSend = call.flags&FlagNoReplyExpected != 0
	if err := m.setReplySerial(op, call.serial); err != nil {
		return nil, err
	}
	if call.hasSender && call.sender != "" {
		if err := m.setHeaderString(op, fieldDestination, "s", call.sender, &m.destination, &m.hasDestination); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewMethodError creates a METHOD_ERROR reply to call, which must be a
// sealed METHOD_CALL. message becomes the body's single string argument
// if non-empty.
func NewMethodError(call *Message, name, message string) (*Message, error) {
	const op = "NewMethodError"
	if err := requireSealedMethodCall(op, call); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errorf(CodeInvalidArgument, op, "method error requires a name")
	}
	if err := validateErrorName(name); err != nil {
		return nil, newErr(CodeInvalidArgument, op, err)
	}

	m := newMessage(TypeError)
	m.dontSend = call.flags&FlagNoReplyExpected != 0
	if err := m.setReplySerial(op, call.serial); err != nil {
		return nil, err
	}
	if err := m.setHeaderString(op, fieldErrorName, "s", name, &m.errorName, &m.hasErrorName); err != nil {
		return nil, err
	}
	if call.hasSender && call.sender != "" {
		if err := m.setHeaderString(op, fieldDestination, "s", call.sender, &m.destination, &m.hasDestination); err != nil {
			return nil, err
		}
	}
	if message != "" {
		if err := m.AppendBasic(TypeString, message); err != nil {
			return nil, err
		}
		m.errorMessage = message
	}
	return m, nil
}

func requireSealedMethodCall(op string, call *Message) error {
	if call == nil {
		return errorf(CodeInvalidArgument, op, "call must not be nil")
	}
	if !call.sealed {
		return errorf(CodeInvalidState, op, "call must be sealed")
	}
	if call.msgType != TypeMethodCall {
		return errorf(CodeInvalidArgument, op, "call must be a METHOD_CALL, got %s", call.msgType)
	}
	return nil
}

func (m *Message) setReplySerial(op string, serial uint32) error {
	if serial == 0 {
		return errorf(CodeInvalidArgument, op, "reply serial must be nonzero")
	}
	if err := appendHeaderFieldUint32(&m.buffers.fields, fieldReplySerial, serial); err != nil {
		return newErr(CodeOutOfMemory, op, err)
	}
	m.replySerial = serial
	m.hasReplySerial = true
	return nil
}

func (m *Message) setHeaderString(op string, code byte, sig, value string, dst *string, has *bool) error {
	if err := appendHeaderFieldString(&m.buffers.fields, code, sig, value); err != nil {
		return newErr(CodeOutOfMemory, op, err)
	}
	*dst = value
	*has = true
	return nil
}

// --- Accessors (spec §6 get_*) ---

func (m *Message) Type() MessageType { return m.msgType }

func (m *Message) Serial() (uint32, bool) {
	if !m.sealed {
		return 0, false
	}
	return m.serial, true
}

func (m *Message) ReplySerial() (uint32, bool) { return m.replySerial, m.hasReplySerial }

func (m *Message) NoReplyExpected() bool { return m.flags&FlagNoReplyExpected != 0 }

// DontSend reports whether a reply should be suppressed because the call it
// answers had no_reply_expected set (spec §9 open question (b)). It is a
// local hint for the sending transport, never part of the wire flags byte.
func (m *Message) DontSend() bool { return m.dontSend }

func (m *Message) Path() (string, bool) { return m.path, m.hasPath }

func (m *Message) Interface() (string, bool) { return m.iface, m.hasIface }

func (m *Message) Member() (string, bool) { return m.member, m.hasMember }

func (m *Message) Destination() (string, bool) { return m.destination, m.hasDestination }

func (m *Message) Sender() (string, bool) { return m.sender, m.hasSender }

func (m *Message) ErrorName() (string, bool) { return m.errorName, m.hasErrorName }

func (m *Message) ErrorMessage() (string, bool) {
	return m.errorMessage, m.hasErrorName && m.errorMessage != ""
}

func (m *Message) Uid() (uint32, bool) {
	if m.creds == nil || !m.creds.HasUID {
		return 0, false
	}
	return m.creds.UID, true
}

func (m *Message) Gid() (uint32, bool) {
	if m.creds == nil || !m.creds.HasGID {
		return 0, false
	}
	return m.creds.GID, true
}

func (m *Message) Pid() (uint32, bool) {
	if m.creds == nil || !m.creds.HasPID {
		return 0, false
	}
	return m.creds.PID, true
}

func (m *Message) Tid() (uint32, bool) {
	if m.creds == nil || !m.creds.HasTID {
		return 0, false
	}
	return m.creds.TID, true
}

func (m *Message) Label() (string, bool) { return m.label, m.label != "" }

// IsSignal reports whether m is a SIGNAL, optionally matching iface and/or
// member when non-empty.
func (m *Message) IsSignal(iface, member string) bool {
	return m.msgType == TypeSignal &&
		(iface == "" || m.iface == iface) &&
		(member == "" || m.member == member)
}

// IsMethodCall reports whether m is a METHOD_CALL, optionally matching
// iface and/or member when non-empty.
func (m *Message) IsMethodCall(iface, member string) bool {
	return m.msgType == TypeMethodCall &&
		(iface == "" || m.iface == iface) &&
		(member == "" || m.member == member)
}

// IsMethodError reports whether m is a METHOD_ERROR, optionally matching
// name when non-empty.
func (m *Message) IsMethodError(name string) bool {
	return m.msgType == TypeError && (name == "" || m.errorName == name)
}

// --- Seal (spec §4.7) ---

// Seal finalizes m: it appends the trailing SIGNATURE and UNIX_FDS header
// fields if needed, assigns serial, and materializes the wire buffer.
// Seal requires no containers to be open and fails with CodeInvalidState
// if m is already sealed.
func (m *Message) Seal(serial uint32) error {
	const op = "Seal"
	if m.sealed {
		return errorf(CodeInvalidState, op, "message already sealed")
	}
	if m.containers.depth() != 0 {
		return errorf(CodeInvalidState, op, "cannot seal with %d container(s) still open", m.containers.depth())
	}
	if serial == 0 {
		return errorf(CodeInvalidArgument, op, "serial must be nonzero")
	}

	rootSig := m.rootSignature()
	if (len(m.buffers.body) == 0) != (rootSig == "") {
		return errorf(CodeMalformedMessage, op, "body length and root signature disagree")
	}

	if err := m.enforceHeaderRequirements(op); err != nil {
		return err
	}

	if rootSig != "" {
		if err := appendHeaderFieldSignature(&m.buffers.fields, fieldSignature, rootSig); err != nil {
			return newErr(CodeOutOfMemory, op, err)
		}
	}
	if len(m.fds) > 0 {
		if err := appendHeaderFieldUint32(&m.buffers.fields, fieldUnixFDs, uint32(len(m.fds))); err != nil {
			return newErr(CodeOutOfMemory, op, err)
		}
	}

	m.serial = serial
	m.sealed = true

	fieldsSize := uint32(len(m.buffers.fields))
	bodySize := uint32(len(m.buffers.body))
	prologue := encodeHeaderPrologue(m.byteOrder, m.msgType, m.flags, bodySize, serial, fieldsSize)

	padded := alignUp(headerPrologueSize+fieldsSize, containerAlign)
	pad := padded - (headerPrologueSize + fieldsSize)

	blob := make([]byte, 0, len(prologue)+len(m.buffers.fields)+int(pad)+len(m.buffers.body))
	blob = append(blob, prologue...)
	blob = append(blob, m.buffers.fields...)
	blob = append(blob, make([]byte, pad)...)
	blob = append(blob, m.buffers.body...)
	m.blob = blob

	// Prime the read side: a fresh root frame over the signature just
	// sealed, and a zeroed read cursor.
	m.containers.reset()
	m.containers.frames[0].signature = rootSig
	m.rindex = 0

	m.metrics.observeSealed(len(m.buffers.body))
	return nil
}

// enforceHeaderRequirements checks spec invariant 9 (header requirements
// per message type). The constructors already guarantee this for
// messages built through this package, but a defensive check here keeps
// the invariant load-bearing rather than merely documented.
func (m *Message) enforceHeaderRequirements(op string) error {
	switch m.msgType {
	case TypeSignal:
		if !m.hasPath || !m.hasIface || !m.hasMember {
			return errorf(CodeMalformedMessage, op, "signal requires path, interface and member")
		}
	case TypeMethodCall:
		if !m.hasPath || !m.hasMember {
			return errorf(CodeMalformedMessage, op, "method call requires path and member")
		}
	case TypeMethodReturn:
		if !m.hasReplySerial {
			return errorf(CodeMalformedMessage, op, "method return requires a reply serial")
		}
	case TypeError:
		if !m.hasReplySerial || !m.hasErrorName {
			return errorf(CodeMalformedMessage, op, "method error requires a reply serial and an error name")
		}
	}
	return nil
}

// Blob returns the flat, ready-to-transmit buffer materialized at Seal or
// supplied to FromBuffer. It must not be called before Seal/FromBuffer.
func (m *Message) Blob() []byte {
	return m.blob
}

// BlobParts returns the message as discrete spans (header, fields,
// padding, body) instead of one concatenated buffer, so a transport can
// hand them to a writev-style scatter write (net.Buffers) without
// copying.
func (m *Message) BlobParts() [][]byte {
	fieldsSize := uint32(len(m.buffers.fields))
	padded := alignUp(headerPrologueSize+fieldsSize, containerAlign)
	pad := padded - (headerPrologueSize + fieldsSize)
	return [][]byte{
		m.blob[:headerPrologueSize],
		m.blob[headerPrologueSize : headerPrologueSize+fieldsSize],
		m.blob[headerPrologueSize+fieldsSize : headerPrologueSize+fieldsSize+pad],
		m.buffers.body,
	}
}

// TakeFDs returns m's file descriptors and clears them from m, handing
// ownership to the caller. Subsequent calls return nil.
func (m *Message) TakeFDs() []int {
	fds := m.fds
	m.fds = nil
	return fds
}

// Ref increments m's refcount. Per spec §5, this is not safe to call
// concurrently with other Ref/Unref calls on the same Message; callers
// sharing a Message across goroutines must serialize access themselves.
func (m *Message) Ref() *Message {
	m.refcount++
	return m
}

// Unref decrements m's refcount, releasing owned file descriptors and
// internal caches once it reaches zero.
func (m *Message) Unref() {
	m.refcount--
	if m.refcount > 0 {
		return
	}
	for _, fd := range m.fds {
		closeFD(fd)
	}
	m.fds = nil
	m.containers = nil
	m.peekedContents = ""
}
