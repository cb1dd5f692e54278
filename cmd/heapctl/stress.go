package main

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/bucket"
	"github.com/joshuapare/heapkit/heap/pagetrack"
	"github.com/joshuapare/heapkit/heap/pool"
	"github.com/joshuapare/heapkit/heap/provider"
	"github.com/joshuapare/heapkit/internal/config"
	"github.com/joshuapare/heapkit/internal/logger"
)

var (
	stressWorkers int
	stressOps     int
	stressMode    string
	stressSeed    int64
	stressTrack   bool
)

func init() {
	rootCmd.AddCommand(newStressCmd())
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a random allocation workload and verify it",
		Long: `The stress command runs concurrent random allocate, reallocate and free
operations. Every allocation is filled with a tag byte and checked before it is
freed or moved; any mismatch fails the command.

In heap mode all workers share one allocator. In pool mode every worker owns a
pool thread and hands a share of its frees to the next worker.

Example:
  heapctl stress
  heapctl stress --mode pool --workers 4 --ops 200000
  heapctl stress --config heapkit.toml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyStressFlags(cmd, &cfg.Stress)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runStress(cmd.OutOrStdout(), cfg)
		},
	}
	addStressFlags(cmd)
	cmd.Flags().BoolVar(&stressTrack, "track-pages", false, "Record bucket page traffic")
	return cmd
}

func addStressFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&stressWorkers, "workers", "w", 0, "Number of concurrent workers")
	cmd.Flags().IntVarP(&stressOps, "ops", "n", 0, "Total operations per round")
	cmd.Flags().StringVarP(&stressMode, "mode", "m", "", "Workload mode: heap or pool")
	cmd.Flags().Int64Var(&stressSeed, "seed", 0, "Random seed")
}

// applyStressFlags overrides s with the flags given on the command line.
func applyStressFlags(cmd *cobra.Command, s *config.Stress) {
	if cmd.Flags().Changed("workers") {
		s.Workers = stressWorkers
	}
	if cmd.Flags().Changed("ops") {
		s.Ops = stressOps
	}
	if cmd.Flags().Changed("mode") {
		s.Mode = stressMode
	}
	if cmd.Flags().Changed("seed") {
		s.Seed = stressSeed
	}
}

// newWorkload builds the allocator or registry of c.Stress.Mode over p. The
// returned close function releases it.
func newWorkload(c *config.Config, p provider.Provider, tracker *pagetrack.Tracker) (*workload, func() error) {
	w := &workload{cfg: c.Stress}
	var hook bucket.PageHook
	if tracker != nil {
		w.tracker = tracker
		hook = tracker
	}

	if c.Stress.Mode == config.ModePool {
		w.reg = pool.NewRegistry(p, &pool.Options{PageHook: hook, Logger: logger.Named("pool")})
		return w, func() error {
			w.reg.Close()
			return nil
		}
	}

	opts := c.HeapOptions(p)
	opts.Logger = logger.Named("heap")
	opts.PageHook = hook
	w.heap = heap.New(opts)
	return w, w.heap.Close
}

func runStress(out io.Writer, c *config.Config) (err error) {
	var tracker *pagetrack.Tracker
	if stressTrack {
		tracker = pagetrack.New()
	}
	w, closeFn := newWorkload(c, c.Provider(), tracker)
	defer func() {
		if cerr := closeFn(); err == nil {
			err = cerr
		}
	}()

	log := logger.Named("stress")
	log.Debug("starting workload",
		zap.String("mode", c.Stress.Mode),
		zap.Int("workers", c.Stress.Workers),
		zap.Int("ops", c.Stress.Ops),
		zap.Int64("seed", c.Stress.Seed))

	r, err := w.run()
	if r != nil {
		if jsonOut {
			if perr := printJSON(out, r); perr != nil {
				return perr
			}
		} else {
			printReport(out, r)
		}
	}
	return err
}

func printReport(out io.Writer, r *report) {
	printInfo(out, "Mode:          %s (%d workers)\n", r.Mode, r.Workers)
	printInfo(out, "Operations:    %d in %v\n", r.Ops, r.Elapsed)
	printInfo(out, "Allocations:   %d\n", r.Allocs)
	printInfo(out, "Frees:         %d\n", r.Frees)
	if r.Reallocs > 0 {
		printInfo(out, "Reallocations: %d\n", r.Reallocs)
	}
	if r.CrossFrees > 0 {
		printInfo(out, "Cross frees:   %d\n", r.CrossFrees)
	}
	printInfo(out, "Failures:      %d\n", r.Failures)
	printInfo(out, "Corruptions:   %d\n", r.Corruptions)

	if h := r.Heap; h != nil {
		printInfo(out, "\nHeap:\n")
		printInfo(out, "  Allocated:     %d bytes\n", h.Allocated)
		printInfo(out, "  Unused:        %d bytes\n", h.UnusedMemory)
		printInfo(out, "  Max block:     %d bytes\n", h.MaxAllocation)
		printInfo(out, "  Tree extents:  %d\n", h.Tree.Extents)
		printInfo(out, "  Bucket pages:  %d\n", h.Bucket.PagesInUse)
		printInfo(out, "  Purges:        %d (%d retries, %d out of memory)\n", h.Purges, h.Retries, h.OutOfMemory)
	}
	if p := r.Pool; p != nil {
		printInfo(out, "\nPool:\n")
		printInfo(out, "  Threads:        %d (%d retired)\n", p.Threads, p.Retired)
		printInfo(out, "  Deferred frees: %d\n", p.DeferredFrees)
		printInfo(out, "  Pages:          %d (%d on stack)\n", p.Pages, p.StackPages)
	}
	if r.Pages.Acquired > 0 {
		printInfo(out, "\nPages:\n")
		printInfo(out, "  Acquired: %d\n", r.Pages.Acquired)
		printInfo(out, "  Released: %d\n", r.Pages.Released)
		printInfo(out, "  Distinct: %d (%d reused)\n", r.Pages.Distinct, r.Pages.Reused)
		for i, n := range r.Pages.ByBucket {
			if n > 0 {
				printVerbose(out, "  Bucket %2d: %d\n", i, n)
			}
		}
	}
}
