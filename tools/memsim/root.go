package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envMapFile   = "MEMSIM_MAP"
	envStackSize = "MEMSIM_STACK_SIZE"
)

type options struct {
	mapFile   string
	stackSize uint64
	verbose   bool
	envFile   string
}

func newRootCmd() *cobra.Command {
	opts := new(options)

	cmd := &cobra.Command{
		Use:   "memsim",
		Short: "Simulate the kernel memory hand-off on the host",
		Long: `memsim builds the frame bytemap and the kernel page tables from a
memory map, exactly as the kernel does at boot, using host memory in place of
physical RAM.

Defaults for the flags may be supplied through a .env file:
  MEMSIM_MAP         path to a JSON machine description
  MEMSIM_STACK_SIZE  bytes mapped on each side of the stack pointer`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyEnv(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.mapFile, "map", "", "JSON machine description (default: built-in 128Mb machine)")
	cmd.PersistentFlags().Uint64Var(&opts.stackSize, "stack-size", 0, "Bytes mapped on each side of the stack pointer (0: use the machine value)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Report every privileged operation")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "File with default flag values")

	cmd.AddCommand(newRunCmd(opts), newLayoutCmd(opts))
	return cmd
}

// applyEnv fills flags that were not set on the command line from the
// environment, after loading the env file if it exists.
func applyEnv(cmd *cobra.Command, opts *options) error {
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}

	flags := cmd.Flags()
	if v, ok := os.LookupEnv(envMapFile); ok && !flags.Changed("map") {
		opts.mapFile = v
	}

	if v, ok := os.LookupEnv(envStackSize); ok && !flags.Changed("stack-size") {
		size, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", envStackSize, v, err)
		}
		opts.stackSize = size
	}

	return nil
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
