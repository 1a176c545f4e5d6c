// Program busctl makes a single D-Bus method call and prints its reply,
// exercising the codec end-to-end over a real bus connection.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gobus/busmessage"
)

// args holds the command's flag values.
var args struct {
	busAddr    string
	dest       string
	path       string
	iface      string
	member     string
	stringArgs []string
	verbose    bool
}

var rootCmd = &cobra.Command{
	Use:   "busctl",
	Short: "Call a D-Bus method and print its reply",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&args.busAddr, "address", "", "bus address, e.g. unix:path=/run/user/1000/bus")
	f.StringVar(&args.dest, "dest", "", "destination bus name (required)")
	f.StringVar(&args.path, "object", "", "object path (required)")
	f.StringVar(&args.iface, "interface", "", "interface name (required)")
	f.StringVar(&args.member, "method", "", "method name (required)")
	f.StringSliceVar(&args.stringArgs, "string-arg", nil, "a string argument to append to the call, may be repeated")
	f.BoolVarP(&args.verbose, "verbose", "v", false, "enable debug logging")
	for _, name := range []string{"dest", "object", "interface", "method"} {
		rootCmd.MarkFlagRequired(name)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := zap.NewNop()
	if args.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		logger = l
	}
	defer logger.Sync()

	opts := []busmessage.Option{busmessage.WithLogger(logger)}
	if args.busAddr != "" {
		opts = append(opts, busmessage.WithBusAddress(args.busAddr))
	}

	c, err := busmessage.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Close()

	call, err := busmessage.NewMethodCall(args.dest, args.path, args.iface, args.member)
	if err != nil {
		return fmt.Errorf("build call: %w", err)
	}
	for _, s := range args.stringArgs {
		if err := call.AppendBasic(busmessage.TypeString, s); err != nil {
			return fmt.Errorf("append argument %q: %w", s, err)
		}
	}

	reply, err := c.Call(call)
	if err != nil {
		return fmt.Errorf("call: %w", err)
	}
	if reply.IsMethodError("") {
		name, _ := reply.ErrorName()
		msg, _ := reply.ErrorMessage()
		return fmt.Errorf("%s: %s", name, msg)
	}

	return printReply(reply)
}

// printReply walks every top-level argument of reply and prints a rough
// textual form, recursing into containers.
func printReply(m *busmessage.Message) error {
	var parts []string
	for !m.AtEnd() {
		s, err := formatValue(m)
		if err != nil {
			return err
		}
		parts = append(parts, s)
	}
	fmt.Println(strings.Join(parts, " "))
	return nil
}

func formatValue(m *busmessage.Message) (string, error) {
	kind, err := m.PeekType()
	if err != nil {
		return "", err
	}
	if !isContainer(kind) {
		v, err := m.ReadBasic(kind)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v", v), nil
	}

	if err := m.EnterContainer(kind); err != nil {
		return "", err
	}
	var inner []string
	for !m.AtEnd() {
		s, err := formatValue(m)
		if err != nil {
			return "", err
		}
		inner = append(inner, s)
	}
	if err := m.ExitContainer(); err != nil {
		return "", err
	}
	return "[" + strings.Join(inner, ", ") + "]", nil
}

func isContainer(kind byte) bool {
	switch kind {
	case busmessage.TypeArray, busmessage.TypeVariant, busmessage.TypeStruct, busmessage.TypeDictEntry:
		return true
	default:
		return false
	}
}
