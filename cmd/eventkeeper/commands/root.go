/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package commands implements the eventkeeper CLI.
package commands

import (
	"flag"

	"github.com/spf13/cobra"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/mikelane/eventkeeper/internal/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
	envFile string

	zapOpts = zap.Options{Development: true}
	v       = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "eventkeeper",
	Short: "Temporary Discord channels for scheduled events",
	Long: `eventkeeper creates a text channel when a Discord scheduled event becomes
active and deletes it 24 hours after the event starts or completes.

State survives restarts in a JSON document kept in a file, a Kubernetes
ConfigMap or Redis.

Use "eventkeeper [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logf.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))
		return config.LoadDotEnv(envFile)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./eventkeeper.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")
	rootCmd.PersistentFlags().String("timezone", "", "IANA time zone of stored and displayed times")
	rootCmd.PersistentFlags().String("store-backend", "", "state store backend: file, configmap or redis")
	rootCmd.PersistentFlags().String("store-path", "", "state file for the file backend")
	bindFlag("timezone", "timezone")
	bindFlag("store.backend", "store-backend")
	bindFlag("store.path", "store-path")

	goFlags := flag.NewFlagSet("zap", flag.ExitOnError)
	zapOpts.BindFlags(goFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(goFlags)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(eventsCmd)
}

func bindFlag(key, name string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
		panic(err)
	}
}

func bindLocalFlag(cmd *cobra.Command, key, name string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
		panic(err)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}
