package busmessage

// MessageType identifies the kind of a Message, carried in byte 1 of the
// fixed header.
type MessageType byte

// Message types, per the D-Bus specification.
const (
	TypeMethodCall MessageType = 1 + iota
	TypeMethodReturn
	TypeError
	TypeSignal
)

func (t MessageType) String() string {
	switch t {
	case TypeMethodCall:
		return "METHOD_CALL"
	case TypeMethodReturn:
		return "METHOD_RETURN"
	case TypeError:
		return "ERROR"
	case TypeSignal:
		return "SIGNAL"
	default:
		return "INVALID"
	}
}

// Message flags, a bitwise OR stored in byte 2 of the fixed header.
const (
	FlagNoReplyExpected               byte = 1 << 0
	FlagNoAutoStart                   byte = 1 << 1
	FlagAllowInteractiveAuthorization byte = 1 << 2
)

// Byte order markers, stored in byte 0 of the fixed header. Both header
// and body share the marker's endianness.
const (
	littleEndian byte = 'l'
	bigEndian    byte = 'B'
)

// protocolVersion is the only major protocol version this codec speaks.
const protocolVersion byte = 1

// Header field codes, used as the first byte of each (BYTE, VARIANT)
// struct in the header fields array.
const (
	fieldPath byte = 1 + iota
	fieldInterface
	fieldMember
	fieldErrorName
	fieldReplySerial
	fieldDestination
	fieldSender
	fieldSignature
	fieldUnixFDs
)

// Basic and container type codes, as they appear in a D-Bus signature.
const (
	TypeByte       byte = 'y'
	TypeBoolean    byte = 'b'
	TypeInt16      byte = 'n'
	TypeUint16     byte = 'q'
	TypeInt32      byte = 'i'
	TypeUint32     byte = 'u'
	TypeInt64      byte = 'x'
	TypeUint64     byte = 't'
	TypeDouble     byte = 'd'
	TypeUnixFD     byte = 'h'
	TypeString     byte = 's'
	TypeObjectPath byte = 'o'
	TypeSignature  byte = 'g'

	TypeArray         byte = 'a'
	TypeVariant       byte = 'v'
	TypeStruct        byte = '('
	TypeStructEnd     byte = ')'
	TypeDictEntry     byte = '{'
	TypeDictEntryEnd  byte = '}'
)

// isContainerOpen reports whether c opens a container (as opposed to
// closing one or being a basic type).
func isContainerOpen(c byte) bool {
	return c == TypeArray || c == TypeVariant || c == TypeStruct || c == TypeDictEntry
}

// typeInfo describes the wire shape of a basic type.
type typeInfo struct {
	align    uint32
	size     uint32 // fixed wire size for fixed-width types; 0 for variable-length
	variable bool
}

// basicTypes is the type table from spec §4.2.
var basicTypes = map[byte]typeInfo{
	TypeByte:       {align: 1, size: 1},
	TypeBoolean:    {align: 4, size: 4},
	TypeInt16:      {align: 2, size: 2},
	TypeUint16:     {align: 2, size: 2},
	TypeInt32:      {align: 4, size: 4},
	TypeUint32:     {align: 4, size: 4},
	TypeInt64:      {align: 8, size: 8},
	TypeUint64:     {align: 8, size: 8},
	TypeDouble:     {align: 8, size: 8},
	TypeUnixFD:     {align: 4, size: 4},
	TypeString:     {align: 4, variable: true},
	TypeObjectPath: {align: 4, variable: true},
	TypeSignature:  {align: 1, variable: true},
}

// isBasicType reports whether c is a basic (non-container) type code.
func isBasicType(c byte) bool {
	_, ok := basicTypes[c]
	return ok
}

// containerAlign is the alignment of STRUCT and DICT_ENTRY contents,
// applied regardless of the alignment of their first member.
const containerAlign = 8

// Size limits from spec §3 invariants 3 and 4, and §6.
const (
	// BusArrayMaxSize is the largest permitted ARRAY length prefix (64 MiB).
	BusArrayMaxSize = 64 * 1024 * 1024
	// BusContainerDepth is the maximum nesting depth of open containers.
	BusContainerDepth = 64
	// MaxMessageSize is the largest permitted serialized message, the
	// wire format's own ceiling (a uint32 byte count).
	MaxMessageSize = (1 << 32) - 1
)

// alignUp rounds offset up to the next multiple of align (align must be a
// power of two: 1, 2, 4, or 8).
func alignUp(offset, align uint32) uint32 {
	return (offset + align - 1) &^ (align - 1)
}
