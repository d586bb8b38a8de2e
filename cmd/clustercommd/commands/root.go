// Package commands implements the clustercommd CLI: a demo/harness binary
// exercising the transport core end to end.
package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hackshare/clustercomm/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "clustercommd",
	Short: "Demo harness for the clustercomm transport core",
	Long: `clustercommd exercises the clustercomm transport library end to end:
binding a server, dialing it, and running the in-process local transport,
all from the command line.

Configuration sources (in order of precedence): CLI flags, CLUSTERCOMM_*
environment variables, a config file named by --config.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg := viper.GetString("config"); cfg != "" {
			viper.SetConfigFile(cfg)
			if err := viper.ReadInConfig(); err != nil {
				return err
			}
		}
		return initLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to a config file (yaml/toml/json)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text, json")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	viper.SetEnvPrefix("clustercomm")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dialCmd)
	rootCmd.AddCommand(localDemoCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initLogger() error {
	logger.SetLevel(viper.GetString("log_level"))
	logger.SetFormat(viper.GetString("log_format"))
	return nil
}
