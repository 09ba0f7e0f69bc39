package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "conn-guard",
	Short: "conn-guard - connection rate anomaly detector and enforcement engine",
	Long: `conn-guard reads connection records window by window, flags connections to
suspicious ports and sources with too many connections, blocks offending
sources once per window and writes a per-source tally after every window.

Records can come from a log file, a followed log, Kafka, Hubble or a pcap
capture. Sources are blocked through ufw or iptables, or only logged in
dry-run mode.`,
	SilenceUsage: true,
}

func getVersion() string {
	content, err := os.ReadFile("VERSION")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(content))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the conn-guard version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("conn-guard %s\n", getVersion())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/conn_guard.yaml",
		"configuration file path (YAML)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
