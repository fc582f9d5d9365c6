// Command portraitctl runs and inspects the layered portrait engine.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/normanking/cortexportrait/internal/config"
	"github.com/normanking/cortexportrait/internal/logging"
)

// Version information (set at build time)
var version = "dev"

type globals struct {
	configPath string
	logLevel   string
	quiet      bool
}

// loadEnvFiles loads ~/.cortex/.env (shared with the rest of the cortex
// tools), ~/.cortexportrait/.env and ./.env. Variables already set win.
func loadEnvFiles() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".cortex", ".env"),
			filepath.Join(home, ".cortexportrait", ".env"),
		)
	}
	paths = append(paths, ".env")

	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			loaded = append(loaded, p)
		}
	}
	return loaded
}

func (g *globals) load() (*config.Config, *logging.Logger, error) {
	envFiles := loadEnvFiles()

	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFrom(g.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.quiet {
		cfg.Log.Console = false
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	if len(envFiles) > 0 {
		log := logger.Component("main")
		log.Debug().Strs("files", envFiles).Msg("Loaded environment files")
	}
	return cfg, logger, nil
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "portraitctl",
		Short:         "Layered 2D portrait animation engine",
		Long:          "Drives per-character expression, lip-sync, blink and idle layers and streams the selected textures to a compositor.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default ~/.cortexportrait/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "disable console logging")

	root.AddCommand(
		newRunCmd(g),
		newDemoCmd(g),
		newResolveCmd(g),
		newNormalizeCmd(),
		newVisemesCmd(),
		newTreeCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
