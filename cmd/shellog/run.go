package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shellog/internal/db"
	"shellog/internal/metrics"
	"shellog/internal/runner"
	"shellog/internal/shell"
	"shellog/internal/tracer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one or more commands in a persistent shell session",
	Long: `Runs the given commands sequentially inside a single shell session, so
working-directory changes, environment variables, and shell state carry over
from one command to the next. Output streams, exit codes, timing, and the
environment snapshot are captured per command; resource-usage sampling and
syscall/library-call tracing are optional.`,
	Example: `  shellog run -c 'printf hello' -d greet
  shellog run -c 'cd /tmp' -c 'pwd'
  shellog run -c 'make -j8' --measure cpu,memory,disk --interval 500ms
  shellog run -c './configure' --trace strace --trace-expression trace=open`,
	RunE: runCommands,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayP("command", "c", nil, "Command to execute (repeatable, run in order)")
	runCmd.Flags().StringP("description", "d", "", "Human description of the command(s)")
	runCmd.Flags().StringSlice("measure", nil, "Resource metrics to sample (cpu, memory, disk)")
	runCmd.Flags().Duration("interval", 0, "Sampling interval (default from config)")
	runCmd.Flags().Duration("timeout", 0, "Per-command timeout (default from config)")
	runCmd.Flags().String("trace", "", "Wrap commands in a tracer (strace, ltrace)")
	runCmd.Flags().Bool("trace-summary", false, "Ask the tracer for an aggregate summary (-c)")
	runCmd.Flags().String("trace-expression", "", "Restrict what the tracer records (-e)")
	runCmd.Flags().Bool("quiet", false, "Do not echo command output to the console")
	runCmd.Flags().Bool("devnull-stdin", false, "Redirect command stdin from /dev/null")
	runCmd.Flags().Bool("login", false, "Spawn the shell as a login shell")
	runCmd.Flags().String("workdir", "", "Initial working directory for the session")
	runCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address while running")
	runCmd.Flags().Bool("no-store", false, "Do not persist invocation records to the database")

	runCmd.MarkFlagRequired("command")
}

func runCommands(cmd *cobra.Command, args []string) error {
	commands, _ := cmd.Flags().GetStringArray("command")
	description, _ := cmd.Flags().GetString("description")
	measure, _ := cmd.Flags().GetStringSlice("measure")
	interval, _ := cmd.Flags().GetDuration("interval")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	traceName, _ := cmd.Flags().GetString("trace")
	traceSummary, _ := cmd.Flags().GetBool("trace-summary")
	traceExpr, _ := cmd.Flags().GetString("trace-expression")
	quiet, _ := cmd.Flags().GetBool("quiet")
	devNull, _ := cmd.Flags().GetBool("devnull-stdin")
	login, _ := cmd.Flags().GetBool("login")
	workdir, _ := cmd.Flags().GetString("workdir")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	noStore, _ := cmd.Flags().GetBool("no-store")

	if interval <= 0 {
		interval = viper.GetDuration("sampling_interval")
	}
	if timeout <= 0 {
		timeout = viper.GetDuration("command_timeout")
	}
	if metricsAddr == "" {
		metricsAddr = viper.GetString("metrics_addr")
	}

	var m *metrics.Metrics
	if metricsAddr != "" {
		m = metrics.NewMetrics()
		go func() {
			if err := metrics.StartServer(metricsAddr); err != nil {
				slog.Error("metrics server failed", "addr", metricsAddr, "error", err)
			}
		}()
	}

	var store db.Store
	if !noStore {
		var err error
		store, err = db.NewStore(db.StoreConfig{
			Backend:          viper.GetString("db.backend"),
			ConnectionString: storeConnectionString(),
		})
		if err != nil {
			return fmt.Errorf("failed to open invocation store: %w", err)
		}
		defer store.Close()
	}

	session, err := shell.New(shell.Options{
		Shell:      viper.GetString("shell"),
		LoginShell: login,
		WorkDir:    workdir,
	})
	if err != nil {
		return fmt.Errorf("failed to start shell session: %w", err)
	}
	defer session.Close()

	r := runner.New(session, runner.Options{
		LogDir:           viper.GetString("log_dir"),
		Echo:             viper.GetBool("echo_output") && !quiet,
		SamplingInterval: interval,
		CommandTimeout:   timeout,
		Metrics:          m,
	})

	opt := runner.RunOptions{
		Measure:      measure,
		Trace:        traceName,
		TraceOptions: tracer.Options{Summary: traceSummary, Expression: traceExpr},
		DevNullStdin: devNull,
		Quiet:        quiet,
	}

	ctx := context.Background()
	failures := 0
	for _, command := range commands {
		inv, runErr := r.Run(ctx, command, description, opt)

		if inv != nil && store != nil {
			if saveErr := store.SaveInvocation(inv); saveErr != nil {
				slog.Error("failed to persist invocation", "seq", inv.Seq, "error", saveErr)
			}
		}
		if runErr != nil {
			// Session-fatal errors end the run; anything else is scoped
			// to this invocation and the remaining commands still run.
			if !session.Alive() {
				return fmt.Errorf("command %q failed: %w", command, runErr)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "command %q failed: %v\n", command, runErr)
			failures++
			continue
		}
		printSummary(cmd, inv)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d commands failed", failures, len(commands))
	}
	return nil
}

func printSummary(cmd *cobra.Command, inv *runner.Invocation) {
	fmt.Fprintf(cmd.ErrOrStderr(), "[%03d] exit=%d duration=%s stdout=%s stderr=%s\n",
		inv.Seq, inv.ExitCode, formatDuration(inv.Duration()), inv.StdoutPath, inv.StderrPath)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

func storeConnectionString() string {
	if url := viper.GetString("db.url"); url != "" {
		return url
	}
	return viper.GetString("db.path")
}
