package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/tandem/internal/client"
	"github.com/roach88/tandem/internal/metrics"
)

// errSignedOut ends watch when another device takes the account over.
var errSignedOut = errors.New("signed in on another device")

// metricsShutdownTimeout bounds the metrics server shutdown.
const metricsShutdownTimeout = 5 * time.Second

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Auth AuthOptions
	Open string

	// ready, when set, is called once the client is signed in and
	// listening. Tests use it to act while watch runs.
	ready func(*client.Client)
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}
	return newWatchCommand(opts)
}

func newWatchCommand(opts *WatchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay signed in and print live changes",
		Long: `Stay signed in and print every state change, notification and notice
until interrupted or until the account is signed in on another device.

When metrics_addr is configured, Prometheus metrics are served on
/metrics at that address while watch runs.

Example:
  tandem watch --as alice --secret s3cret --open <conversation-id>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}
	addAuthFlags(cmd, &opts.Auth)
	cmd.Flags().StringVar(&opts.Open, "open", "", "conversation to open and follow")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	e, err := openEnv(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancelCause(cmd.Context())
	defer cancel(nil)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			e.logger.Info("received signal, shutting down", "signal", sig)
			cancel(nil)
		case <-ctx.Done():
		}
	}()

	var rec metrics.Recorder = metrics.Nop{}
	if e.cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		rec = metrics.NewCollector(reg)
		stop, err := serveMetrics(e, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	c, err := e.signIn(ctx, &opts.Auth, rec)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(e.out.Writer)
	last := ""
	c.OnStateChange(func(st client.State) {
		if e.out.Format == "json" {
			_ = enc.Encode(map[string]any{"event": "state", "state": st})
			return
		}
		if line := stateSummary(st); line != last {
			last = line
			fmt.Fprintln(e.out.Writer, line)
		}
	})
	c.OnNotice(func(n client.Notice) {
		if e.out.Format == "json" {
			_ = enc.Encode(map[string]any{"event": "notice", "notice": n})
		} else {
			fmt.Fprintf(e.out.Writer, "[notice] %s\n", n.Message)
		}
		if n.Kind == client.NoticeSignedInElsewhere {
			cancel(errSignedOut)
		}
	})

	if opts.Open != "" {
		if err := c.SelectConversation(ctx, opts.Open); err != nil {
			return WrapExitError(ExitFailure, "failed to open conversation", err)
		}
	}
	if opts.ready != nil {
		opts.ready(c)
	}

	<-ctx.Done()
	if cause := context.Cause(ctx); errors.Is(cause, errSignedOut) {
		return WrapExitError(ExitFailure, "watch ended", cause)
	}
	return nil
}

// serveMetrics serves /metrics on the configured address and returns the
// shutdown function.
func serveMetrics(e *env, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", e.cfg.MetricsAddr)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to listen for metrics", err)
	}
	srv := &http.Server{
		Handler:           metrics.NewServeMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server failed", "error", err)
		}
	}()
	e.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			e.logger.Error("metrics server shutdown failed", "error", err)
		}
	}, nil
}
