package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/infrastructure/logging"
	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/resolver/cdp"
	"github.com/replayio/devtools-sub005/internal/resolver/remote"
	"github.com/replayio/devtools-sub005/internal/resolver/snapshot"
	"github.com/replayio/devtools-sub005/internal/sandbox"
)

// options are the global flags shared by every command
type options struct {
	snapshot string
	remote   string
	cdp      string
	launch   bool
	html     string
	timeout  time.Duration
	verbose  bool

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "inspect",
		Short: "Explore values of a JavaScript execution context",
		Long: `inspect evaluates expressions in an execution context and walks the
resulting values the way the inspector UI does: lazily, bucketing large
arrays and stopping at cycles.

The context is an embedded sandbox unless one of --snapshot, --remote or
--cdp is given.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				opts.logger = logging.NewDevelopment().Logger
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.snapshot, "snapshot", "", "Read values from a recorded snapshot file")
	flags.StringVar(&opts.remote, "remote", "", "Base URL of a resolver protocol server")
	flags.StringVar(&opts.cdp, "cdp", "", "DevTools websocket URL of a running browser")
	flags.BoolVar(&opts.launch, "launch", false, "Launch a headless browser and inspect its page")
	flags.StringVar(&opts.html, "html", "", "HTML file exposed as document in the sandbox")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall command timeout")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newEvaluateCmd(opts),
		newTreeCmd(opts),
		newCopyCmd(opts),
		newRecordCmd(opts),
	)
	return root
}

// open connects the backend selected by the flags. The returned function
// releases it.
func (o *options) open(ctx context.Context) (inspector.Backend, func(), error) {
	selected := 0
	for _, set := range []bool{o.snapshot != "", o.remote != "", o.cdp != "" || o.launch} {
		if set {
			selected++
		}
	}
	if selected > 1 {
		return nil, nil, fmt.Errorf("--snapshot, --remote and --cdp/--launch are mutually exclusive")
	}

	switch {
	case o.snapshot != "":
		snap, err := snapshot.LoadFile(o.snapshot)
		if err != nil {
			return nil, nil, err
		}
		return snapshot.NewStore(snap).WithLogger(o.logger), func() {}, nil

	case o.remote != "":
		cfg := remote.DefaultConfig(o.remote)
		return remote.New(cfg, o.logger), func() {}, nil

	case o.cdp != "" || o.launch:
		url := o.cdp
		kill := func() {}
		if url == "" {
			l := launcher.New().Headless(true)
			launched, err := l.Launch()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
			}
			url, kill = launched, l.Kill
		}
		r, err := cdp.Connect(ctx, url, o.logger)
		if err != nil {
			kill()
			return nil, nil, err
		}
		return r, func() {
			r.Close()
			kill()
		}, nil
	}

	cfg := sandbox.DefaultConfig()
	cfg.Timeout = o.timeout
	if o.html != "" {
		markup, err := os.ReadFile(o.html)
		if err != nil {
			return nil, nil, err
		}
		cfg.DOMHTML = string(markup)
	}
	rt, err := sandbox.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return rt.WithLogger(o.logger), func() { rt.Close() }, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
