package busmessage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Dial connects to a D-Bus bus via a Unix domain socket specified by a
// bus address, e.g. "unix:path=/run/user/1000/bus".
func Dial(busAddr string) (*net.UnixConn, error) {
	const prefix = "unix:path="
	if !strings.HasPrefix(busAddr, prefix) {
		return nil, fmt.Errorf("unsupported bus address %q: only unix:path= is supported", busAddr)
	}
	path := busAddr[len(prefix):]

	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client drives the codec over a real AF_UNIX bus connection: dialing,
// the EXTERNAL auth handshake, the Hello call, and a serialized
// request/reply dispatch keyed by serial. It is a demonstration of the
// codec, not a general-purpose bus library: match rules, signal
// subscriptions and fd-passing transports are out of scope.
//
// D-Bus delivers messages serially over one connection, and this Client
// does not multiplex reads: Call holds a mutex for the whole request/reply
// round trip, so concurrent callers are served one at a time.
type Client struct {
	conf Config
	conn net.Conn
	br   *bufio.Reader

	mu     sync.Mutex
	serial uint32

	uniqueName string
}

// New dials the bus (retrying a failed dial with backoff, if WithReconnect
// was given), authenticates, and calls Hello. By default it reads
// DBUS_SYSTEM_BUS_ADDRESS, falling back to DefaultBusAddress.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	conf := Config{
		busAddr:      os.Getenv("DBUS_SYSTEM_BUS_ADDRESS"),
		connReadSize: DefaultConnectionReadSize,
		logger:       zap.NewNop(),
	}
	if conf.busAddr == "" {
		conf.busAddr = DefaultBusAddress
	}
	for _, opt := range opts {
		opt(&conf)
	}

	conn, err := dialConn(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	if err := authExternal(conn, conf.logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dbus auth: %w", err)
	}

	c := &Client{
		conf: conf,
		conn: conn,
		br:   bufio.NewReaderSize(conn, conf.connReadSize),
	}

	name, err := c.hello()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("dbus hello: %w", err)
	}
	c.uniqueName = name
	conf.logger.Info("dbus connected", zap.String("unique_name", name), zap.String("bus_addr", conf.busAddr))

	return c, nil
}

func dialConn(ctx context.Context, conf Config) (*net.UnixConn, error) {
	if !conf.reconnect {
		return Dial(conf.busAddr)
	}
	op := func() (*net.UnixConn, error) { return Dial(conf.busAddr) }
	return backoff.Retry(ctx, op, backoff.WithBackOff(conf.reconnectBackOff))
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// UniqueName is the bus-assigned unique name this Client authenticated
// as, e.g. ":1.42".
func (c *Client) UniqueName() string {
	return c.uniqueName
}

func (c *Client) nextSerial() uint32 {
	c.serial++
	if c.serial == 0 {
		c.serial++
	}
	return c.serial
}

func (c *Client) hello() (string, error) {
	call, err := NewMethodCall("org.freedesktop.DBus", "/org/freedesktop/DBus", "org.freedesktop.DBus", "Hello")
	if err != nil {
		return "", err
	}
	reply, err := c.roundTrip(call)
	if err != nil {
		return "", err
	}
	if reply.IsMethodError("") {
		name, _ := reply.ErrorName()
		return "", fmt.Errorf("Hello failed: %s", name)
	}
	name, err := reply.ReadBasic(TypeString)
	if err != nil {
		return "", fmt.Errorf("decode Hello reply: %w", err)
	}
	return name.(string), nil
}

// Call sends a METHOD_CALL built by the caller (path/iface/member already
// set via NewMethodCall, body appended as needed) and waits for its
// reply. Concurrent calls are serialized: each waits for the previous
// round trip to finish.
func (c *Client) Call(call *Message) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(call)
}

// roundTrip seals call with the next serial, writes it, and reads
// messages until the matching reply arrives. Signals and replies to
// other (e.g. concurrently dispatched by a prior caller that didn't wait)
// serials are discarded; this Client's single-mutex design makes that a
// defensive measure rather than an expected path.
func (c *Client) roundTrip(call *Message) (*Message, error) {
	serial := c.nextSerial()
	call.SetMetrics(c.conf.metrics)
	if err := call.Seal(serial); err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}

	parts := call.BlobParts()
	if _, err := (net.Buffers(parts)).WriteTo(c.conn); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	for {
		reply, err := c.readMessage()
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		rs, ok := reply.ReplySerial()
		if ok && rs == serial {
			return reply, nil
		}
		c.conf.logger.Debug("discarding unrelated message",
			zap.Stringer("type", reply.Type()), zap.Uint32("want_serial", serial))
	}
}

// readMessage reads one complete wire-format message: the fixed 16-byte
// header (which announces the header fields and body sizes), then
// exactly that many more bytes.
func (c *Client) readMessage() (*Message, error) {
	prologue := make([]byte, headerPrologueSize)
	if _, err := io.ReadFull(c.br, prologue); err != nil {
		return nil, err
	}
	p, err := decodeHeaderPrologue(prologue)
	if err != nil {
		return nil, err
	}

	fieldsEnd := headerPrologueSize + p.fieldsSize
	padded := alignUp(fieldsEnd, containerAlign)
	rest := make([]byte, int(padded-headerPrologueSize)+int(p.bodySize))
	if _, err := io.ReadFull(c.br, rest); err != nil {
		return nil, err
	}

	buf := append(prologue, rest...)
	// This demo Client doesn't receive file descriptors out-of-band
	// (SCM_RIGHTS), so a message declaring UNIX_FDS > 0 will fail to
	// parse here; a transport that wants fd passing must read them
	// alongside the bytes and pass them to FromBuffer itself.
	return FromBuffer(buf, nil, nil, "", c.conf.metrics)
}
