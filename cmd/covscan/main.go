package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "covscan",
		Short: "Discover and dedupe game coverage across feeds, search and social sources",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(scanCmd())
	root.AddCommand(clusterCmd())
	root.AddCommand(trafficCmd())
	root.AddCommand(itemsCmd())
	root.AddCommand(sourcesCmd())
	root.AddCommand(credentialCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runDaemonCmd())

	return root
}

func scanCmd() *cobra.Command {
	var (
		sourceID int64
		all      bool
		freq     string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run coverage scan for one source, a frequency bucket, or all active sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(sourceID, all, freq)
		},
	}

	cmd.Flags().Int64Var(&sourceID, "source", 0, "scan a single source by id")
	cmd.Flags().BoolVar(&all, "all", false, "scan all active sources")
	cmd.Flags().StringVar(&freq, "frequency", "", "scan one frequency bucket (hourly, 6h, daily, weekly)")
	return cmd
}

func clusterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cluster",
		Short: "Group recent items into syndication clusters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCluster()
		},
	}
}

func trafficCmd() *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "traffic",
		Short: "Refresh an outlet's monthly visitor estimate",
		RunE: func(cmd *cobra.Command, args []string) error {
			if domain == "" {
				return fmt.Errorf("--domain is required")
			}
			return runTraffic(domain)
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "outlet domain, e.g. ign.com")
	return cmd
}

func itemsCmd() *cobra.Command {
	var (
		status     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List discovered coverage items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItems(status, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by approval status")
	cmd.Flags().IntVar(&limit, "limit", 50, "max items to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources and their run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSources()
		},
	}
}

func credentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential <service> <api-key>",
		Short: "Store an API credential (tavily, apify, youtube, twitch, reddit)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredential(args[0], args[1])
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runDaemonCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
