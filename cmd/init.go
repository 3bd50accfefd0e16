package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/lscope/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.lscope with a default config, .env template and data directory",
	Long: `Initialize lscope at ~/.lscope/.

Writes lscope.yaml and a .env template when they are missing and creates the
configured data directory. Existing files are left untouched.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	// ── 1. Resolve ~/.lscope directory ────────────────────────────────────────
	homeDir, err := config.HomeDir()
	if err != nil {
		return err
	}
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", homeDir, err)
	}
	printOK("", fmt.Sprintf("lscope directory ready: %s", homeDir))

	// ── 2. Write lscope.yaml if missing ───────────────────────────────────────
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg, err := config.DefaultConfig()
		if err != nil {
			return err
		}
		if flagDataDir != "" {
			if cfg.DataDir, err = config.ExpandPath(flagDataDir); err != nil {
				return err
			}
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Config written: %s", cfgPath))
	} else {
		printSkip("", fmt.Sprintf("Config already exists: %s", cfgPath))
	}

	// ── 3. Write .env template ────────────────────────────────────────────────
	if err := config.EnsureDotEnvTemplate(); err != nil {
		return err
	}
	if p, err := config.DotEnvPath(); err == nil {
		printInfo("", fmt.Sprintf("Secrets and endpoints: %s", p))
	}

	// ── 4. Create the data directory ──────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dataDir := cfg.DataDir
	if flagDataDir != "" {
		if dataDir, err = config.ExpandPath(flagDataDir); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("cannot create data directory %s: %w", dataDir, err)
	}
	printOK("", fmt.Sprintf("Data directory ready: %s", dataDir))
	return nil
}
