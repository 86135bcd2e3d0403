// bbf: bad block finder and burn-in tester for block devices.
//
// The burnin instruction walks a device in batches, pattern-tests each
// batch (0x00, 0x55, 0xAA, 0xFF) and restores the original contents; the
// bad-block list is persisted across runs. Destructive instructions are
// gated behind a per-device captcha token.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/swipswaps/bbf/badblocks"
	"github.com/swipswaps/bbf/blockdev"
	"github.com/swipswaps/bbf/burnin"
	"github.com/swipswaps/bbf/captcha"
	"github.com/swipswaps/bbf/filemap"
	"github.com/swipswaps/bbf/surface"
)

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func human(b uint64) string {
	switch {
	case b >= 1<<40:
		return fmt.Sprintf("%.1fT", float64(b)/(1<<40))
	case b >= 1<<30:
		return fmt.Sprintf("%.1fG", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%dM", b/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%dK", b/(1<<10))
	}
	return fmt.Sprintf("%dB", b)
}

// runOpts are the flags shared by the scan, burnin and fix instructions.
type runOpts struct {
	rwtype     string
	startBlock uint64
	endBlock   uint64
	stepping   uint64
	retries    int
	maxErrors  uint64
	inputFile  string
	outputFile string
	captcha    string
	force      bool
	quiet      bool
}

func addRunFlags(cmd *cobra.Command, o *runOpts, destructive bool) {
	fl := cmd.Flags()
	fl.StringVarP(&o.rwtype, "rwtype", "t", viper.GetString("rwtype"), "read/write mode: os|direct")
	fl.Uint64VarP(&o.startBlock, "start-block", "s", 0, "block to start from")
	fl.Uint64VarP(&o.endBlock, "end-block", "e", 0, "block to stop at, exclusive (0 = last block)")
	fl.Uint64Var(&o.stepping, "stepping", viper.GetUint64("stepping"), "blocks per batch (0 = device default)")
	fl.IntVarP(&o.retries, "retries", "r", viper.GetInt("retries"), "retries for failed reads and writes")
	fl.Uint64Var(&o.maxErrors, "max-errors", viper.GetUint64("max-errors"), "stop after recording more than this many bad blocks")
	fl.StringVarP(&o.inputFile, "input", "i", "", "bad block file to import (default: the output file)")
	fl.StringVarP(&o.outputFile, "output", "o", "", "bad block file to write (default: badblocks.<token>)")
	fl.BoolVar(&o.force, "force", false, "operate even if the device is mounted")
	fl.BoolVarP(&o.quiet, "quiet", "q", false, "plain progress lines instead of the fullscreen view")
	if destructive {
		fl.StringVarP(&o.captcha, "captcha", "c", "", "confirmation token from 'bbf captcha <device>'")
		_ = cmd.MarkFlagRequired("captcha")
	}
}

// cancelCtx returns a context cancelled by SIGINT/SIGTERM.
func cancelCtx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newReporter picks the fullscreen view when possible and falls back to
// plain progress lines on stderr (no terminal, or --quiet).
func newReporter(quiet bool) (surface.Reporter, *surface.UI) {
	if quiet {
		return &surface.PlainReporter{W: os.Stderr}, nil
	}
	ui, err := surface.NewUI()
	if err != nil {
		return &surface.PlainReporter{W: os.Stderr}, nil
	}
	return ui, ui
}

// runVerification drives both scan (read-only) and burnin (destructive).
func runVerification(path string, o runOpts, destructive bool) error {
	dev, err := blockdev.Open(path, !destructive, o.force)
	if err != nil {
		return err
	}
	defer dev.Close()

	token := captcha.Calculate(dev.Identity())
	if destructive && !captcha.Verify(dev.Identity(), o.captcha) {
		return fmt.Errorf("captcha mismatch for %s; obtain the token with 'bbf captcha %s'", path, path)
	}

	mode, err := blockdev.ParseMode(o.rwtype)
	if err != nil {
		return err
	}
	if err := dev.SetMode(mode); err != nil {
		return err
	}

	output := o.outputFile
	if output == "" {
		output = badblocks.DefaultPath(token)
	}
	input := o.inputFile
	if input == "" {
		input = output
	}

	addrs, err := badblocks.Load(input)
	if err != nil {
		// Non-fatal: a first run has no file yet.
		fmt.Fprintf(os.Stderr, "warning: unable to load %s: %v\n", input, err)
	} else {
		fmt.Printf("Imported %d bad blocks from %s\n", len(addrs), input)
	}
	list := badblocks.NewList(addrs)

	end := o.endBlock
	if end == 0 {
		end = dev.LogicalBlockCount()
	}
	if o.startBlock >= end {
		return fmt.Errorf("start block %d >= end block %d", o.startBlock, end)
	}

	rep, ui := newReporter(o.quiet)
	runner, err := burnin.New(dev, burnin.Params{
		StartBlock: o.startBlock,
		EndBlock:   end,
		Stepping:   o.stepping,
		Retries:    o.retries,
		MaxErrors:  o.maxErrors,
	}, list, rep)
	if err != nil {
		if ui != nil {
			ui.Close()
		}
		return err
	}

	instr := "scan"
	if destructive {
		instr = "burnin"
	}
	rangeStart, rangeEnd := runner.Range()
	summary := []string{
		fmt.Sprintf("blocks: %d - %d   stepping: %d   rwtype: %s", rangeStart, rangeEnd, runner.Stepping(), mode),
		fmt.Sprintf("logical block: %dB   physical block: %dB   capacity: %s",
			dev.LogicalBlockSize(), dev.PhysicalBlockSize(), human(dev.SizeBytes())),
		fmt.Sprintf("retries: %d   max errors: %d   bad block file: %s", o.retries, o.maxErrors, output),
	}

	ctx, cancel := cancelCtx()
	defer cancel()
	if ui != nil {
		ui.SetTitle(fmt.Sprintf(" BBF %s - %s ", instr, path))
		ui.SetSummaryLines(summary)
		ui.SetLegend([]string{"Legend:  █ tested   ░ not yet   |   Q or Esc to stop"})
		go func() {
			select {
			case <-ui.StopRequested():
				cancel()
			case <-ctx.Done():
			}
		}()
		defer ui.Close()
	} else {
		for _, line := range summary {
			fmt.Println(line)
		}
	}

	began := time.Now()
	var outcome burnin.Outcome
	var runErr error
	if destructive {
		outcome, runErr = runner.Run(ctx)
	} else {
		outcome, runErr = runner.Scan(ctx)
	}

	if ui != nil {
		ui.Close()
	} else {
		fmt.Fprintln(os.Stderr)
	}

	fmt.Printf("%s %s: %s after %s, %d bad blocks\n",
		instr, path, outcome, time.Since(began).Truncate(time.Second), list.Len())

	if err := badblocks.Save(output, list.Addrs()); err != nil {
		// A failed save must not mask a run failure that already happened.
		if runErr == nil {
			runErr = fmt.Errorf("writing bad block file: %w", err)
		} else {
			fmt.Fprintf(os.Stderr, "warning: writing bad block file: %v\n", err)
		}
	} else if list.Len() > 0 {
		fmt.Printf("Bad blocks written to %s\n", output)
	}

	return runErr
}

func main() {
	initDefaults()

	root := &cobra.Command{
		Use:   "bbf",
		Short: "Bad block finder and burn-in tester for block devices",
		Long: `bbf qualifies drives before deployment and locates failing sectors on
in-service drives.

  info        print device geometry and identity (read-only)
  captcha     print the confirmation token for a device
  scan        look for bad blocks by reading the whole range
  burnin      destructive-but-restorable pattern test:
              read batch, write 0x00/0x55/0xAA/0xFF with verify,
              write the original contents back; a batch is bad only
              when that final restore write fails
  fix         rewrite listed blocks in place to force reallocation
  files       map files to blocks and find files on bad blocks
  device      list candidate devices (read-only)`,
	}

	// scan
	var scanOpts runOpts
	scanCmd := &cobra.Command{
		Use:   "scan <device>",
		Short: "Scan for bad blocks by reading (non-destructive)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runVerification(args[0], scanOpts, false)
		},
	}
	addRunFlags(scanCmd, &scanOpts, false)
	root.AddCommand(scanCmd)

	// burnin
	var burninOpts runOpts
	burninCmd := &cobra.Command{
		Use:   "burnin <device>",
		Short: "Pattern-test every batch and restore its contents [DESTRUCTIVE on failure]",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runVerification(args[0], burninOpts, true)
		},
	}
	addRunFlags(burninCmd, &burninOpts, true)
	root.AddCommand(burninCmd)

	// fix
	var fixOpts runOpts
	fixCmd := &cobra.Command{
		Use:   "fix <device>",
		Short: "Rewrite listed bad blocks to force the drive to reallocate them",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dev, err := blockdev.Open(args[0], false, fixOpts.force)
			if err != nil {
				return err
			}
			defer dev.Close()

			token := captcha.Calculate(dev.Identity())
			if !captcha.Verify(dev.Identity(), fixOpts.captcha) {
				return fmt.Errorf("captcha mismatch for %s; obtain the token with 'bbf captcha %s'", args[0], args[0])
			}
			mode, err := blockdev.ParseMode(fixOpts.rwtype)
			if err != nil {
				return err
			}
			if err := dev.SetMode(mode); err != nil {
				return err
			}

			input := fixOpts.inputFile
			if input == "" {
				input = badblocks.DefaultPath(token)
			}
			addrs, err := badblocks.Load(input)
			if err != nil {
				return fmt.Errorf("fix needs a bad block list: %w", err)
			}
			fmt.Printf("Fixing %d blocks from %s\n", len(addrs), input)

			ctx, cancel := cancelCtx()
			defer cancel()
			res, err := burnin.Fix(ctx, dev, addrs, fixOpts.retries, &surface.PlainReporter{W: os.Stderr})
			fmt.Fprintln(os.Stderr)
			fmt.Printf("rewritten: %d   zeroed: %d   still failing: %d\n",
				res.Rewritten, res.Zeroed, res.Failed)
			return err
		},
	}
	addRunFlags(fixCmd, &fixOpts, true)
	root.AddCommand(fixCmd)

	// info
	infoCmd := &cobra.Command{
		Use:   "info <device>",
		Short: "Print device geometry and identity (read-only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dev, err := blockdev.Open(args[0], true, true)
			if err != nil {
				return err
			}
			defer dev.Close()
			fmt.Printf("device:              %s\n", dev.Path())
			fmt.Printf("capacity:            %s (%d bytes)\n", human(dev.SizeBytes()), dev.SizeBytes())
			fmt.Printf("logical block size:  %d\n", dev.LogicalBlockSize())
			fmt.Printf("physical block size: %d\n", dev.PhysicalBlockSize())
			fmt.Printf("logical block count: %d\n", dev.LogicalBlockCount())
			fmt.Printf("default stepping:    %d blocks\n", dev.DefaultStepping())
			fmt.Printf("identity:            %s\n", dev.Identity())
			return nil
		},
	}
	root.AddCommand(infoCmd)

	// captcha
	captchaCmd := &cobra.Command{
		Use:   "captcha <device>",
		Short: "Print the confirmation token required by destructive instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dev, err := blockdev.Open(args[0], true, true)
			if err != nil {
				return err
			}
			defer dev.Close()
			fmt.Println(captcha.Calculate(dev.Identity()))
			return nil
		},
	}
	root.AddCommand(captchaCmd)

	// files
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "Map files to blocks and find files sitting on bad blocks",
	}

	var blocksBS uint64
	fileBlocksCmd := &cobra.Command{
		Use:   "blocks <file>",
		Short: "List the device block ranges a file occupies",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			extents, err := filemap.FileExtents(args[0])
			if err != nil {
				return err
			}
			total := uint64(0)
			for _, r := range filemap.BlockRanges(extents, blocksBS) {
				fmt.Printf("%d +%d\n", r.Start, r.Count)
				total += r.Count
			}
			fmt.Printf("total: %d blocks of %d bytes\n", total, blocksBS)
			return nil
		},
	}
	fileBlocksCmd.Flags().Uint64Var(&blocksBS, "block-size", 512, "logical block size of the backing device")
	filesCmd.AddCommand(fileBlocksCmd)

	var findInput string
	var findBS uint64
	findFilesCmd := &cobra.Command{
		Use:   "find <directory>",
		Short: "Find files whose data sits on listed bad blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			addrs, err := badblocks.Load(findInput)
			if err != nil {
				return err
			}
			files, err := filemap.FindAffected(args[0], addrs, findBS)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Println(f)
			}
			if len(files) == 0 {
				fmt.Fprintln(os.Stderr, "no files affected")
			}
			return nil
		},
	}
	findFilesCmd.Flags().StringVarP(&findInput, "input", "i", "", "bad block file to read")
	findFilesCmd.Flags().Uint64Var(&findBS, "block-size", 512, "logical block size of the backing device")
	_ = findFilesCmd.MarkFlagRequired("input")
	filesCmd.AddCommand(findFilesCmd)

	var dumpBS uint64
	dumpFilesCmd := &cobra.Command{
		Use:   "dump <directory>",
		Short: "Dump the block ranges backing every file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			files, err := filemap.WalkRanges(args[0], dumpBS)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Println(f.Path)
				for _, r := range f.Ranges {
					fmt.Printf("  %d +%d\n", r.Start, r.Count)
				}
			}
			return nil
		},
	}
	dumpFilesCmd.Flags().Uint64Var(&dumpBS, "block-size", 512, "logical block size of the backing device")
	filesCmd.AddCommand(dumpFilesCmd)
	root.AddCommand(filesCmd)

	// device
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Device utilities (safe, read-only)",
	}
	deviceCmd.AddCommand(listDevicesCmd())
	root.AddCommand(deviceCmd)

	must(root.Execute())
}
