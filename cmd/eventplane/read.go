package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/eventplane/pkg/eventplane/streambuf"
)

type readOptions struct {
	initial   string
	increment string
	max       string
	at        []string
	format    string
	pooled    bool
}

func newReadCmd(root *rootOptions) *cobra.Command {
	opts := &readOptions{}

	cmd := &cobra.Command{
		Use:   "read FILE",
		Short: "Stream a file through a buffer and print byte ranges",
		Long: "Reads FILE lazily through a stream buffer sized by --initial, --increment\n" +
			"and --max, then prints each --at POS:LEN range. Without --at the whole\n" +
			"file is copied through a cursor.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.initial, "initial", "16KB", "Initial buffer size")
	cmd.Flags().StringVar(&opts.increment, "increment", "16KB", "Growth step, 0 disables growth")
	cmd.Flags().StringVar(&opts.max, "max", "1MB", "Maximum buffer size, 0 for unbounded")
	cmd.Flags().StringArrayVar(&opts.at, "at", nil, "Range to print as POS:LEN (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "hex", "Output format (hex|text)")
	cmd.Flags().BoolVar(&opts.pooled, "pooled", false, "Allocate regions from a pool")
	return cmd
}

func runRead(cmd *cobra.Command, root *rootOptions, opts *readOptions, path string) error {
	cfg, err := opts.bufferConfig()
	if err != nil {
		return err
	}
	if opts.format != "hex" && opts.format != "text" {
		return fmt.Errorf("unknown format %q (want hex or text)", opts.format)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var alloc streambuf.Allocator
	if opts.pooled {
		alloc = streambuf.NewPoolAllocator()
	}
	buf, err := streambuf.New(f, cfg, alloc, streambuf.WithLogger(root.logger(cmd.ErrOrStderr())))
	if err != nil {
		return err
	}
	defer buf.Close()

	out := cmd.OutOrStdout()
	if len(opts.at) == 0 {
		cur, err := buf.OpenCursor()
		if err != nil {
			return err
		}
		defer cur.Close()
		return writeData(out, opts.format, cur)
	}

	for _, arg := range opts.at {
		pos, n, err := parseRange(arg)
		if err != nil {
			return err
		}
		data, err := buf.Read(pos, n)
		if err != nil {
			return fmt.Errorf("read %s: %w", arg, err)
		}
		fmt.Fprintf(out, "@%d+%d (%d bytes)\n", pos, n, len(data))
		if err := writeData(out, opts.format, bytes.NewReader(data)); err != nil {
			return err
		}
		if opts.format == "text" {
			fmt.Fprintln(out)
		}
	}
	return nil
}

func (o *readOptions) bufferConfig() (streambuf.Config, error) {
	initial, err := parseSize("initial", o.initial)
	if err != nil {
		return streambuf.Config{}, err
	}
	increment, err := parseSize("increment", o.increment)
	if err != nil {
		return streambuf.Config{}, err
	}
	maxSize, err := parseSize("max", o.max)
	if err != nil {
		return streambuf.Config{}, err
	}
	cfg := streambuf.Config{
		InitialBufferSize:   initial,
		BufferSizeIncrement: increment,
		MaxBufferSize:       maxSize,
	}
	return cfg, cfg.Validate()
}

func parseSize(flag, value string) (int, error) {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", flag, value, err)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("invalid --%s %q: too large", flag, value)
	}
	return int(n), nil
}

// parseRange parses POS:LEN where both parts accept size suffixes.
func parseRange(arg string) (int64, int, error) {
	posStr, lenStr, ok := strings.Cut(arg, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range %q: want POS:LEN", arg)
	}
	pos, err := humanize.ParseBytes(posStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range position %q: %w", posStr, err)
	}
	n, err := humanize.ParseBytes(lenStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range length %q: %w", lenStr, err)
	}
	if pos > math.MaxInt64 || n > math.MaxInt32 {
		return 0, 0, fmt.Errorf("invalid range %q: too large", arg)
	}
	return int64(pos), int(n), nil
}

func writeData(out io.Writer, format string, r io.Reader) error {
	if format == "text" {
		_, err := io.Copy(out, r)
		return err
	}
	dumper := hex.Dumper(out)
	if _, err := io.Copy(dumper, r); err != nil {
		return err
	}
	return dumper.Close()
}
