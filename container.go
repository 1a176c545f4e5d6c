package busmessage

// container is a single open-container frame (spec §3 "Container frame").
// The struct is shared between the write path and the read path: on
// write, arraySize holds the body offset of the ARRAY's u32 length
// placeholder (written lazily at CloseContainer, see writer.go); on read,
// arraySize holds the captured length value itself, used to check
// begin+length == rindex at ExitContainer.
type container struct {
	// enclosing is one of TypeArray, TypeVariant, TypeStruct,
	// TypeDictEntry, or 0 for the root container.
	enclosing byte
	// signature is the contents signature: fixed at open time for every
	// container kind except the root, whose signature grows as values
	// are appended at the top level.
	signature string
	// index is the cursor position within signature. For ARRAY frames
	// it is always 0: the single element type is reused for every
	// element instead of advancing (spec §4.3).
	index int
	// arraySize is the ARRAY length bookkeeping described above. Unused
	// for non-ARRAY frames.
	arraySize uint32
	// begin is the body offset at which this container's contents start
	// (just after the length prefix and element-alignment padding for
	// ARRAY; just after the 8-byte struct/dict-entry alignment otherwise).
	begin uint32
}

// containerStack is a depth-bounded stack of open containers, shared by
// the writer and the reader. containerStack[0] is always the root frame.
type containerStack struct {
	frames []container
}

func newContainerStack() *containerStack {
	return &containerStack{frames: []container{{enclosing: 0}}}
}

// depth is the number of explicitly opened (non-root) containers.
func (s *containerStack) depth() int {
	return len(s.frames) - 1
}

func (s *containerStack) top() *container {
	return &s.frames[len(s.frames)-1]
}

// push opens a new container frame, enforcing the depth bound (spec
// invariant 4).
func (s *containerStack) push(c container) error {
	if s.depth() >= BusContainerDepth {
		return errorf(CodeInvalidArgument, "push", "container depth exceeds limit of %d", BusContainerDepth)
	}
	s.frames = append(s.frames, c)
	return nil
}

// pop closes the innermost container frame. The caller has already
// validated it is safe to do so.
func (s *containerStack) pop() container {
	n := len(s.frames)
	c := s.frames[n-1]
	s.frames = s.frames[:n-1]
	return c
}

// reset discards every open frame except the root, used by Rewind(true)
// and when priming a message for a new read pass.
func (s *containerStack) reset() {
	s.frames = s.frames[:1]
	s.frames[0] = container{enclosing: 0}
}
