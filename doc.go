// Package busmessage implements the D-Bus message wire format: a
// zero-copy-ish, alignment- and endian-sensitive binary codec with a
// recursive container model, a signature grammar, and the validation
// rules the D-Bus specification requires of a conforming peer.
//
// A Message is built by appending basic values and opening/closing nested
// containers (ARRAY, VARIANT, STRUCT, DICT_ENTRY), then sealed into a flat
// buffer. A Message can also be constructed from a received buffer via
// FromBuffer, which validates the header and enumerates header fields
// before the body is traversed on demand with PeekType/ReadBasic/
// EnterContainer/ExitContainer.
//
// Transport (socket I/O, file descriptor passing, authentication),
// object/method dispatch, and match rules are out of scope: this package
// only yields and consumes buffers and file descriptor lists. See Client
// in client.go for a minimal demonstration of driving the codec over a
// real AF_UNIX bus connection.
package busmessage
