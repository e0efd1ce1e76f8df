package cmds

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/socratic/pkg/config"
	"github.com/go-go-golems/socratic/pkg/logging"
)

const defaultConfigPath = "socratic.yaml"

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	logLevel   string
	logFormat  string
	logFile    string
	configPath string
	backend    string
	model      string

	logCloser io.Closer
}

func NewRootCommand(version string) *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:           "socratic",
		Short:         "socratic is a step-by-step math tutor backed by Gemini",
		SilenceUsage:  true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.initLogging(g.logFile)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			g.closeLog()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", string(logging.FormatConsole), "log format (console, json)")
	pf.StringVar(&g.logFile, "log-file", "", "write logs to this file instead of stderr")
	pf.StringVar(&g.configPath, "config", defaultConfigPath, "path to the YAML config file")
	pf.StringVar(&g.backend, "backend", "", "model backend (gemini, vertex, scripted)")
	pf.StringVar(&g.model, "model", "", "model name")

	rootCmd.AddCommand(
		newChatCommand(g),
		newServeCommand(g),
		newAskCommand(g),
		newVersionCommand(version),
	)
	return rootCmd
}

func (g *globals) initLogging(file string) error {
	g.closeLog()
	closer, err := logging.Init(logging.Settings{
		Level:  g.logLevel,
		Format: logging.Format(g.logFormat),
		File:   file,
	})
	if err != nil {
		return err
	}
	g.logCloser = closer
	return nil
}

func (g *globals) closeLog() {
	if g.logCloser != nil {
		_ = g.logCloser.Close()
		g.logCloser = nil
	}
}

// loadConfig reads the config file and applies flag overrides. The default
// path may be absent.
func (g *globals) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(g.configPath)
	} else {
		cfg, err = config.LoadOptional(g.configPath)
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading config")
	}
	if g.backend != "" {
		cfg.Model.Backend = config.BackendKind(g.backend)
	}
	if g.model != "" {
		cfg.Model.Name = g.model
	}
	return cfg, nil
}
