// Command pgmem runs the in-memory PostgreSQL stand-in, either as a wire
// protocol server or as an interactive shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pgmem/internal/config"
	"pgmem/internal/logging"
)

// app carries state shared by the subcommands.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "pgmem",
		Short:         "In-memory PostgreSQL-compatible database for tests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logging.Init(cfg.Log.Logging())
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ./pgmem.yaml or $HOME/.pgmem/pgmem.yaml)")
	flags.String("log-level", "INFO", "log level: DEBUG, INFO, WARN or ERROR")
	flags.String("log-format", "text", "log format: text or json")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(newServeCmd(a), newShellCmd(a))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pgmem:", err)
		os.Exit(1)
	}
}
