// Package cli implements the genlux command line: local video generation
// against the Gemini API and a per-profile history of saved videos.
package cli

import (
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"genlux/internal/config"
)

type commandContext struct {
	viper      *viper.Viper
	configFlag string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load(c.viper, c.configFlag)
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(w io.Writer) zerolog.Logger {
	level := zerolog.WarnLevel
	if cfg, err := c.ensureConfig(); err == nil {
		if parsed, perr := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); perr == nil && parsed != zerolog.NoLevel {
			level = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: !isTerminal(w)}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// NewRootCommand builds the genlux command tree.
func NewRootCommand() *cobra.Command {
	ctx := &commandContext{viper: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "genlux",
		Short:         "Generate short videos from text prompts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default <profile>/config.toml)")
	flags.String("profile", "", "Profile directory holding config, history and the generation lock")
	flags.String("provider", "", "Video provider: gemini or synthetic")
	flags.String("api-key", "", "Gemini API key")
	flags.String("model", "", "Veo model name")
	flags.String("locale", "", "Language for progress messages (en, id)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")

	bindings := map[string]string{
		"profile_dir": "profile",
		"provider":    "provider",
		"api_key":     "api-key",
		"model":       "model",
		"locale":      "locale",
		"log_level":   "log-level",
	}
	for key, flag := range bindings {
		_ = ctx.viper.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))

	return rootCmd
}
