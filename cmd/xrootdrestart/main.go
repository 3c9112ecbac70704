// xrootdrestart performs rolling, availability-gated restarts of the
// cmsd/xrootd service pair across a storage cluster.
package main

import (
	"fmt"
	"os"

	"github.com/gridpp-storage/xrootdrestart/pkg/supervisor"
	"github.com/spf13/cobra"
)

var (
	version   = "1.0.0"
	buildTime = "dev"
	gitCommit = "unknown"
)

var (
	cfgFile     string
	auditDBPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "xrootdrestart",
		Short:   "Rolling restart supervisor for paired cmsd/xrootd services",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: platform-dependent, see docs)")

	rootCmd.AddCommand(newRunCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the supervisor until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			code := supervisor.Run(supervisor.Options{
				ConfigPath:  cfgFile,
				AuditDBPath: auditDBPath,
			})
			os.Exit(code)
			return nil
		},
	}
	cmd.Flags().StringVar(&auditDBPath, "audit-db", "", "optional path to a SQLite restart-attempt ledger")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("xrootdrestart %s\n", version)
			fmt.Printf("  Commit:  %s\n", gitCommit)
			fmt.Printf("  Built:   %s\n", buildTime)
		},
	}
}
