package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/joeycumines/go-executor/internal/sim"
	"github.com/joeycumines/go-executor/internal/simconfig"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	config  string
	trace   string
	debug   bool
	noColor bool
}

// NewRootCmd creates the executor-sim command.
func NewRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:   "executor-sim",
		Short: "Run a cooperative executor scenario",
		Long: "executor-sim spawns singleton, pool and allocated worker tasks, raises " +
			"interrupts from producer goroutines, and prints a summary of the run.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.noColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, flags)
		},
	}

	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Scenario file (.toml, .yaml or .yml)")
	root.PersistentFlags().StringVar(&flags.trace, "trace", "", "Write a msgpack cycle trace to this file")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	return root
}

func newLogger(w io.Writer, debug bool) *logiface.Logger[logiface.Event] {
	level := logiface.LevelInformational
	if debug {
		level = logiface.LevelDebug
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

func runScenario(cmd *cobra.Command, flags rootFlags) (err error) {
	sc := simconfig.Default()
	if flags.config != "" {
		if sc, err = simconfig.Load(flags.config); err != nil {
			return err
		}
	}

	opts := sim.Options{Logger: newLogger(cmd.ErrOrStderr(), flags.debug)}
	if flags.trace != "" {
		f, ferr := os.Create(flags.trace)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = cerr
			}
		}()
		opts.Trace = f
	}

	res, err := sim.Run(cmd.Context(), sc, opts)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), res)
	return nil
}

func printSummary(w io.Writer, res *sim.Result) {
	title := color.New(color.FgGreen, color.Bold)
	warn := color.New(color.FgYellow, color.Bold)
	key := color.New(color.FgCyan)

	mode := "real time"
	if res.Virtual {
		mode = "virtual time"
	}
	fmt.Fprintln(w, title.Sprintf("scenario %s (%s)", res.Scenario, mode))
	if res.RunID != "" {
		fmt.Fprintf(w, "  %s %s\n", key.Sprint("run id:"), res.RunID)
	}
	fmt.Fprintf(w, "  %s %d ticks in %s\n", key.Sprint("clock:"), res.Ticks, res.Elapsed)
	fmt.Fprintf(w, "  %s %d spawned, %d interrupts handled\n", key.Sprint("tasks:"), res.Spawned, res.Interrupts)

	m := res.Metrics
	fmt.Fprintf(w, "  %s %d cycles, %d polls, %d wakes, %d timer fires\n",
		key.Sprint("executor:"), m.Cycles, m.Polls, m.Wakes, m.TimerFires)
	fmt.Fprintf(w, "  %s p50=%s p99=%s max=%s\n",
		key.Sprint("poll latency:"), m.PollLatency.P50, m.PollLatency.P99, m.PollLatency.Max)
	fmt.Fprintf(w, "  %s max=%d avg=%.2f\n", key.Sprint("batch:"), m.Batch.Max, m.Batch.Avg)

	if failures := res.PoolExhausted + res.OutOfMemory + res.OtherFailures; failures > 0 {
		fmt.Fprintln(w, warn.Sprintf("  %d spawns retried: %d pool exhausted, %d out of memory, %d other",
			failures, res.PoolExhausted, res.OutOfMemory, res.OtherFailures))
	}
	if m.Orphans > 0 {
		fmt.Fprintln(w, warn.Sprintf("  %d orphaned tasks", m.Orphans))
	}
	if res.HeapInUse > 0 {
		fmt.Fprintln(w, warn.Sprintf("  %d heap bytes still in use", res.HeapInUse))
	}
}
