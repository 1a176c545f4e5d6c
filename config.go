package busmessage

import (
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	// DefaultConnectionReadSize is the default size (in bytes) of the
	// buffer used for reading from a bus connection.
	DefaultConnectionReadSize = 4096
	// DefaultBusAddress is used when neither an explicit address nor the
	// DBUS_SYSTEM_BUS_ADDRESS environment variable is available.
	DefaultBusAddress = "unix:path=/var/run/dbus/system_bus_socket"
)

// Config configures a Client.
type Config struct {
	busAddr      string
	connReadSize int

	logger  *zap.Logger
	metrics *Metrics

	reconnect        bool
	reconnectBackOff *backoff.ExponentialBackOff
}

// Option sets up a Config.
type Option func(*Config)

// WithBusAddress sets the bus address to dial, e.g.
// "unix:path=/run/user/1000/bus". By default New reads
// DBUS_SYSTEM_BUS_ADDRESS, falling back to DefaultBusAddress.
func WithBusAddress(addr string) Option {
	return func(c *Config) { c.busAddr = addr }
}

// WithConnectionReadSize sets the size of the buffer used for reading
// from the bus connection. A bigger buffer means fewer read syscalls.
func WithConnectionReadSize(size int) Option {
	return func(c *Config) { c.connReadSize = size }
}

// WithLogger attaches a zap.Logger the Client will use for connection
// lifecycle events (auth success, the connected unique name, discarded
// unrelated messages). The default is zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithMetrics attaches a Metrics the Client forwards to every Message it
// seals and parses.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Config) { c.metrics = metrics }
}

// WithReconnect makes New retry a failed dial with exponential backoff.
// A connection that drops after New returns is not re-established.
func WithReconnect(b *backoff.ExponentialBackOff) Option {
	return func(c *Config) {
		c.reconnect = true
		c.reconnectBackOff = b
	}
}
