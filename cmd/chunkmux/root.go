package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chunkmux/chunkmux/internal/utils"
)

// Version is set via ldflags during build.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "chunkmux",
	Short:   "A concurrent, range-based, work-stealing file fetcher",
	Long:    `chunkmux downloads a resource over many concurrent range requests; workers that finish early steal remaining work from busy ones.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.SetVersionTemplate("chunkmux version {{.Version}}\n")
}

// dataDir returns (creating if needed) the directory chunkmux stores its
// run-history database and debug logs under.
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dir := filepath.Join(home, ".chunkmux")
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not create %s: %v\n", dir, err)
	}
	utils.ConfigureDebug(filepath.Join(dir, "logs"))
	utils.CleanupLogs(20)
	return dir
}
