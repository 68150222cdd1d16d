// Package cmd is the cloudcore CLI, mirroring the teacher's
// pkg/kubernetes-mcp-server/cmd/root.go conventions: cobra for the command
// tree, viper for flag/env/config-file binding, klog's textlogger wired
// from a --v verbosity flag.
package cmd

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/textlogger"

	"github.com/x8labs/cloudcore/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "cloudcore [command] [options]",
	Short: "Multi-cloud compute and object-storage control plane",
	Long: `
cloudcore drives the ContainerDeployment and ObjectStore components
against a pluggable cloud backend.

  # show this help
  cloudcore -h

  # print version information
  cloudcore --version

  # apply a service definition to the configured Kubernetes context
  cloudcore service create -f service.yaml

  # put an object into the local filesystem object store
  cloudcore object put a --store-dir ./data --collection docs --file ./a.bin`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
	Run: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("version") {
			fmt.Println(version.String())
			return
		}
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().IntP("log-level", "v", 2, "Set the log verbosity (0-9)")
	rootCmd.PersistentFlags().String("kubeconfig", "", "Path to a kubeconfig file; empty uses in-cluster or default config")
	rootCmd.PersistentFlags().String("namespace", "default", "Kubernetes namespace the service commands operate against")
	rootCmd.PersistentFlags().String("store-dir", "./data", "Root directory for the local filesystem object store")
	rootCmd.Flags().BoolP("version", "V", false, "Print version information and quit")
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
	_ = viper.BindPFlags(rootCmd.Flags())

	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(objectCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(clusterCmd)
}

// Execute runs the command tree; errors are fatal, matching the teacher's
// panic-on-Execute-error convention.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}

func initLogging() {
	logLevel := viper.GetInt("log-level")
	if logLevel < 0 {
		logLevel = 2
	}
	config := textlogger.NewConfig(
		textlogger.Output(os.Stderr),
		textlogger.Verbosity(logLevel),
	)
	klog.SetLoggerWithOptions(textlogger.NewLogger(config))

	flagSet := flag.NewFlagSet("cloudcore", flag.ContinueOnError)
	klog.InitFlags(flagSet)
	if err := flagSet.Parse([]string{"--v", strconv.Itoa(logLevel)}); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing log level: %v\n", err)
	}
}
