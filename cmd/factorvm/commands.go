package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stephenalindsay/factorcore/internal/cell"
	"github.com/stephenalindsay/factorcore/internal/objmodel"
	"github.com/stephenalindsay/factorcore/internal/vm"
)

// buildVM translates the CLI's flags into a vm.Config and constructs a
// fresh VM for one subcommand invocation.
func (c *cliConfig) buildVM() (*vm.VM, error) {
	return vm.New(vm.Config{
		DSSize:      uintptr(c.dsSize),
		RSSize:      uintptr(c.rsSize),
		HasAging:    c.hasAging,
		NurserySize: uintptr(c.nurserySize),
		AgingSize:   uintptr(c.agingSize),
		TenuredSize: uintptr(c.tenuredSize),
		UserEnvSize: 8,
		Model:       objmodel.RefModel{},
		Logger:      c.logger(),
	})
}

// immediateInt packs a small integer as an immediate cell (tag 0, spec.md
// §3 "Cell"): never traced, round-trips through the data stack unchanged.
func immediateInt(v int64) cell.Cell { return cell.Cell(v << 3) }

func newGCCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Run a synchronous full collection (garbage_collection(TENURED, false, 0))",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cfg.buildVM()
			if err != nil {
				return err
			}
			defer v.Release()
			if err := v.GC(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newMinorGCCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "minor-gc",
		Short: "Run a nursery-only collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cfg.buildVM()
			if err != nil {
				return err
			}
			defer v.Release()
			if err := v.MinorGC(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newGCStatsCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "gc-stats",
		Short: "Print the packed gc-stats counter array",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cfg.buildVM()
			if err != nil {
				return err
			}
			defer v.Release()
			packed := v.GCStats()
			out := cmd.OutOrStdout()
			for i, g := range packed.PerGen {
				fmt.Fprintf(out, "gen %d: collections=%d gc_time=%d max_gc_time=%d avg_gc_time=%d objects=%d bytes_copied=%d\n",
					i, g.Collections, g.GCTime, g.MaxGCTime, g.AvgGCTime, g.ObjectCount, g.BytesCopied)
			}
			fmt.Fprintf(out, "total_gc_time=%d cards_scanned=%d decks_scanned=%d card_scan_time=%d code_heap_scans=%d\n",
				packed.TotalGCTime, packed.CardsScanned, packed.DecksScanned, packed.CardScanTime, packed.CodeHeapScans)
			return nil
		},
	}
}

func newClearGCStatsCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-gc-stats",
		Short: "Zero every gc-stats counter",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cfg.buildVM()
			if err != nil {
				return err
			}
			defer v.Release()
			v.ClearGCStats()
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newDataStackCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "datastack",
		Short: "Print the current context's data stack as a fresh VM sees it (empty)",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cfg.buildVM()
			if err != nil {
				return err
			}
			defer v.Release()
			vals, err := v.DataStack()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatCells(vals))
			return nil
		},
	}
}

func newSetDataStackCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "set-datastack [ints...]",
		Short: "Install the given integers as the data stack, then print it back",
		RunE: func(cmd *cobra.Command, args []string) error {
			vals := make([]cell.Cell, len(args))
			for i, a := range args {
				n, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return fmt.Errorf("set-datastack: %q is not an integer: %w", a, err)
				}
				vals[i] = immediateInt(n)
			}

			v, err := cfg.buildVM()
			if err != nil {
				return err
			}
			defer v.Release()

			v.SetDataStack(vals)
			out, err := v.DataStack()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatCells(out))
			return nil
		},
	}
}

func newBecomeCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "become",
		Short: "Allocate two objects, forward the first to the second, then gc",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cfg.buildVM()
			if err != nil {
				return err
			}
			defer v.Release()

			oldAddr, ok := objmodel.AllotRaw(v.Heap.Nursery(), 8)
			if !ok {
				return fmt.Errorf("become: nursery exhausted allocating the old object")
			}
			newAddr, ok := objmodel.AllotRaw(v.Heap.Nursery(), 8)
			if !ok {
				return fmt.Errorf("become: nursery exhausted allocating the new object")
			}

			const demoTag = cell.Cell(1)
			oldCell := cell.Tagged(oldAddr, demoTag)
			newCell := cell.Tagged(newAddr, demoTag)

			if err := v.Become([]cell.Cell{oldCell}, []cell.Cell{newCell}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func formatCells(vals []cell.Cell) string {
	s := "["
	for i, c := range vals {
		if i > 0 {
			s += " "
		}
		if c.Immediate() {
			s += strconv.FormatInt(int64(c)>>3, 10)
		} else {
			s += fmt.Sprintf("%#x", uintptr(c))
		}
	}
	return s + "]"
}
