package busmessage

import "encoding/binary"

// buffers holds the two growable regions a Message writes into: the
// header fields array and the body. Both grow independently; values are
// referenced by offset rather than by pointer, so there is nothing to
// rebase when append grows the backing array (spec §9's rebasing problem
// is sidestepped rather than solved, since Go slices don't hand out raw
// pointers into their backing array for callers to invalidate).
type buffers struct {
	fields []byte
	body   []byte
}

// extendFields grows the fields region to hold n bytes aligned to align,
// zero-filling the padding, and returns the offset the caller should
// write n bytes at.
func (b *buffers) extendFields(align, n uint32) (uint32, error) {
	start, grown, err := extend(b.fields, align, n)
	if err != nil {
		return 0, err
	}
	b.fields = grown
	return start, nil
}

// extendBody grows the body region to hold n bytes aligned to align,
// zero-filling the padding, and returns the offset the caller should
// write n bytes at.
func (b *buffers) extendBody(align, n uint32) (uint32, error) {
	start, grown, err := extend(b.body, align, n)
	if err != nil {
		return 0, err
	}
	b.body = grown
	return start, nil
}

// extend is the buffer manager's single growth primitive (spec §4.1):
// start = align_up(len(buf), align); the region grows to start+n with
// the gap [len(buf), start) zero-filled; the new slice and start offset
// are returned.
func extend(buf []byte, align, n uint32) (start uint32, grown []byte, err error) {
	cur := uint32(len(buf))
	start = alignUp(cur, align)

	total := uint64(start) + uint64(n)
	if total > MaxMessageSize {
		return 0, nil, errorf(CodeOutOfMemory, "extend", "region would grow to %d bytes, exceeding the %d byte wire limit", total, MaxMessageSize)
	}

	if uint32(cap(buf)) >= uint32(total) {
		grown = buf[:total]
	} else {
		grown = make([]byte, total)
		copy(grown, buf)
	}
	// Zero-fill the alignment padding and the newly claimed bytes; make
	// is already zero-valued, but a reused backing array (the cap branch
	// above) might carry stale bytes from a prior truncation.
	for i := uint64(cur); i < total; i++ {
		grown[i] = 0
	}
	return start, grown, nil
}

// The following are the buffer manager's typed-write primitives, each
// aligning, growing and writing in one step. They operate on a pointer to
// a region's backing slice so the caller (writer.go, header.go) doesn't
// need to thread the grown slice back by hand.

func appendAligned(buf *[]byte, align, n uint32) (start uint32, err error) {
	start, grown, err := extend(*buf, align, n)
	if err != nil {
		return 0, err
	}
	*buf = grown
	return start, nil
}

func writeRawByte(buf *[]byte, v byte) error {
	start, err := appendAligned(buf, 1, 1)
	if err != nil {
		return err
	}
	(*buf)[start] = v
	return nil
}

func writeRawUint16(buf *[]byte, order binary.ByteOrder, v uint16) error {
	start, err := appendAligned(buf, 2, 2)
	if err != nil {
		return err
	}
	order.PutUint16((*buf)[start:start+2], v)
	return nil
}

func writeRawUint32(buf *[]byte, order binary.ByteOrder, v uint32) error {
	start, err := appendAligned(buf, 4, 4)
	if err != nil {
		return err
	}
	order.PutUint32((*buf)[start:start+4], v)
	return nil
}

func writeRawUint64(buf *[]byte, order binary.ByteOrder, v uint64) error {
	start, err := appendAligned(buf, 8, 8)
	if err != nil {
		return err
	}
	order.PutUint64((*buf)[start:start+8], v)
	return nil
}

// writeRawString encodes a D-Bus STRING or OBJECT_PATH: a u32 length
// prefix, the bytes, and a trailing NUL not counted in the length.
func writeRawString(buf *[]byte, order binary.ByteOrder, s string) error {
	n := uint32(4 + len(s) + 1)
	start, err := appendAligned(buf, 4, n)
	if err != nil {
		return err
	}
	order.PutUint32((*buf)[start:start+4], uint32(len(s)))
	copy((*buf)[start+4:], s)
	(*buf)[start+4+uint32(len(s))] = 0
	return nil
}

// writeRawSignature encodes a D-Bus SIGNATURE: a u8 length prefix, the
// bytes, and a trailing NUL not counted in the length.
func writeRawSignature(buf *[]byte, s string) error {
	if len(s) > 255 {
		return errorf(CodeInvalidArgument, "writeRawSignature", "signature %q longer than 255 bytes", s)
	}
	n := uint32(1 + len(s) + 1)
	start, err := appendAligned(buf, 1, n)
	if err != nil {
		return err
	}
	(*buf)[start] = byte(len(s))
	copy((*buf)[start+1:], s)
	(*buf)[start+1+uint32(len(s))] = 0
	return nil
}
