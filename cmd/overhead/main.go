// Command overhead shows the aircraft nearest to a fixed home position.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "overhead",
	Short: "Show the flights nearest to home",
	Long: `overhead queries flight-data providers for a box around a configured home
position, ranks the aircraft by distance and shows the nearest three.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.json", "Path to configuration file")

	rootCmd.AddCommand(runCmd, fetchCmd, configCmd, hashPasswordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
