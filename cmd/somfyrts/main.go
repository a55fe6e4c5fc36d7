// Command somfyrts sends Up/Down/Stop commands to a Somfy URTSI controller.
//
//	somfyrts [flags] <port>
//
// Channels are numbers (1-5 for a v1 controller, 1-16 for v2) or aliases
// from the config file. The port name TEST uses an in-memory port.
// Commands are sent in the order stop, up, down.
//
// Exit status is 0 when every command was written, 1 when any failed and
// 2 on usage errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/radio-control/rtsbridge/internal/adapter"
	"github.com/radio-control/rtsbridge/internal/adapter/somfy"
	"github.com/radio-control/rtsbridge/internal/channel"
	"github.com/radio-control/rtsbridge/internal/command"
	"github.com/radio-control/rtsbridge/internal/config"
	"github.com/radio-control/rtsbridge/internal/transport"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	port       string
	up         []string
	down       []string
	stop       []string
	cmdver     int
	interval   float64
	pause      bool
	verbose    bool
	configPath string
	timeout    time.Duration
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func parseArgs(args []string, stderr io.Writer) (*options, *pflag.FlagSet, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("somfyrts", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: somfyrts [flags] <port>\n\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nValid channel numbers are 1 through 5 for a version one controller and 1 through 16\n"+
			"for the version II controller. For testing purposes the port name 'TEST' can be used.\n")
	}

	fs.StringSliceVarP(&opts.up, "up", "u", nil, "channels to raise (repeat or comma separate)")
	fs.StringSliceVarP(&opts.down, "down", "d", nil, "channels to lower")
	fs.StringSliceVarP(&opts.stop, "stop", "s", nil, "channels to stop")
	fs.IntVar(&opts.cmdver, "cmdver", 1, "URTSI command version (1 or 2)")
	fs.Float64Var(&opts.interval, "interval", 1.5, "minimum seconds between commands")
	fs.BoolVar(&opts.pause, "pause", false, "pause [interval] seconds before sending first command")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log each command and its outcome")
	fs.StringVarP(&opts.configPath, "config", "c", "", "YAML config for aliases and defaults")
	fs.DurationVar(&opts.timeout, "timeout", 0, "give up waiting after this long (0 waits until done)")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	if fs.NArg() != 1 {
		return nil, fs, usageError{"exactly one port argument is required"}
	}
	opts.port = fs.Arg(0)

	if opts.cmdver != 1 && opts.cmdver != 2 {
		return nil, fs, usageError{fmt.Sprintf("invalid --cmdver %d: must be 1 or 2", opts.cmdver)}
	}
	if opts.interval < 0 {
		return nil, fs, usageError{"--interval must not be negative"}
	}
	if opts.timeout < 0 {
		return nil, fs, usageError{"--timeout must not be negative"}
	}
	return opts, fs, nil
}

// mergeConfig lets the config file supply values for flags left unset.
func mergeConfig(opts *options, fs *pflag.FlagSet, cfg *config.Config) {
	if !fs.Changed("cmdver") {
		opts.cmdver = cfg.Bridge.ControllerVersion
	}
	if !fs.Changed("interval") {
		opts.interval = cfg.Timing.MinInterval.Seconds()
	}
}

func buildBatch(opts *options) []command.Request {
	var batch []command.Request
	add := func(channels []string, a adapter.Action) {
		for _, ch := range channels {
			batch = append(batch, command.Request{Channel: strings.TrimSpace(ch), Action: a})
		}
	}
	add(opts.stop, adapter.ActionStop)
	add(opts.up, adapter.ActionUp)
	add(opts.down, adapter.ActionDown)
	return batch
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, fs, err := parseArgs(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "somfyrts: %v\n", err)
		var ue usageError
		if errors.As(err, &ue) {
			fs.Usage()
		}
		return exitUsage
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "somfyrts: %v\n", err)
		return exitFailure
	}
	mergeConfig(opts, fs, cfg)

	logger := log.New(io.Discard, "", 0)
	if opts.verbose {
		logger = log.New(stderr, "somfyrts: ", log.LstdFlags|log.Lmicroseconds)
	}
	interval := time.Duration(opts.interval * float64(time.Second))

	enc, err := somfy.NewEncoder(opts.cmdver)
	if err != nil {
		fmt.Fprintf(stderr, "somfyrts: %v\n", err)
		return exitUsage
	}

	registry := channel.NewRegistry(enc.MaxChannel())
	if err := registry.LoadAliases(cfg.Channels); err != nil {
		fmt.Fprintf(stderr, "somfyrts: %v\n", err)
		return exitFailure
	}

	port, err := transport.Open(transport.Config{
		Device:      opts.port,
		Baud:        cfg.Bridge.BaudRate,
		ReadTimeout: cfg.Bridge.ReadTimeout,
	})
	if err != nil {
		fmt.Fprintf(stderr, "somfyrts: %v\n", err)
		return exitFailure
	}

	queue := command.NewPacingQueue(enc, port,
		command.WithMinInterval(interval),
		command.WithLogger(logger),
	)
	dispatcher := command.NewDispatcher(queue, enc)
	dispatcher.SetChannelResolver(registry)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timing.ShutdownTimeout)
		defer cancel()
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	batch := buildBatch(opts)
	if len(batch) == 0 {
		logger.Printf("no commands given")
		return exitOK
	}

	if opts.pause {
		logger.Printf("pausing %v before sending first command", interval)
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			fmt.Fprintln(stderr, "somfyrts: interrupted")
			return exitFailure
		}
	}

	h, err := dispatcher.Submit(command.WithSubmitter(ctx, "cli"), batch...)
	if err != nil {
		fmt.Fprintf(stderr, "somfyrts: %v\n", err)
		return exitUsage
	}

	waitCtx := ctx
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	outcomes, err := h.Wait(waitCtx)
	if err != nil {
		fmt.Fprintf(stderr, "somfyrts: %v; %d command(s) unfinished\n", err, countPending(outcomes))
		return exitFailure
	}

	code := exitOK
	for _, o := range outcomes {
		if o.Status != command.StatusSuccess {
			code = exitFailure
			fmt.Fprintf(stderr, "%s: %s: %v\n", o.Request, o.Status, o.Err)
			continue
		}
		if opts.verbose {
			fmt.Fprintf(stdout, "%s: %s\n", o.Request, o.Status)
		}
	}
	return code
}

func countPending(outcomes []command.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Status.Terminal() {
			n++
		}
	}
	return n
}
