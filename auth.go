package busmessage

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// authExternal performs EXTERNAL authentication, see
// https://dbus.freedesktop.org/doc/dbus-specification.html#auth-protocol.
// The protocol is line-based, each line ending with \r\n:
//
//	client: AUTH EXTERNAL 31303030
//	server: OK bde8d2222a9e966420ee8c1a63e972b4
//	client: BEGIN
//
// 31303030 is ASCII decimal 1000 (the client's uid) in hex.
func authExternal(rw io.ReadWriter, logger *zap.Logger) error {
	if _, err := rw.Write([]byte{0}); err != nil {
		return fmt.Errorf("send null byte: %w", err)
	}

	uid := strconv.Itoa(os.Geteuid())
	var buf bytes.Buffer
	buf.WriteString("AUTH EXTERNAL ")
	buf.WriteString(hex.EncodeToString([]byte(uid)))
	buf.WriteString("\r\n")
	if _, err := rw.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("AUTH EXTERNAL: %w", err)
	}

	buf.Reset()
	buf.Grow(4096)
	b := buf.Bytes()[:buf.Cap()]
	n, err := rw.Read(b)
	if err != nil {
		return fmt.Errorf("read AUTH reply: %w", err)
	}
	b = b[:n]

	if !bytes.HasPrefix(b, []byte("OK")) {
		return fmt.Errorf("expected OK, got %q", b)
	}
	logger.Debug("dbus auth ok", zap.ByteString("server_guid", bytes.TrimSpace(b[2:])))

	if _, err := rw.Write([]byte("BEGIN\r\n")); err != nil {
		return fmt.Errorf("BEGIN: %w", err)
	}
	return nil
}
