package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"genlux/internal/config"
	"genlux/internal/infra"
	"genlux/internal/infra/credentials"
	"genlux/internal/localstore"
	"genlux/internal/providers/genai"
	videoprovider "genlux/internal/providers/video"
	"genlux/internal/videojob"
)

type generateOptions struct {
	prompt string
	aspect string
	length string
	out    string
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate a video and save it locally",
		Long: `Generate submits the prompt, waits for the clip, extends it for medium
and long targets, then downloads the result and records it in the profile
history. Only one generation runs per profile at a time.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.prompt == "" && len(args) > 0 {
				opts.prompt = strings.Join(args, " ")
			}
			return runGenerate(cmd, ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", "", "Text prompt describing the video")
	cmd.Flags().StringVarP(&opts.aspect, "aspect", "a", string(videojob.AspectLandscape), "Aspect ratio: 16:9 (landscape) or 9:16 (portrait)")
	cmd.Flags().StringVarP(&opts.length, "length", "l", string(videojob.LengthShort), "Target length: short, medium or long")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output file (default <output_dir>/genlux-<time>.mp4)")
	cmd.Flags().String("poll-interval", "", "Time between status checks, e.g. 10s")
	cmd.Flags().String("max-wait", "", "Give up on a step after this long, e.g. 20m")
	cmd.Flags().String("output-dir", "", "Directory for videos saved without --out")
	_ = ctx.viper.BindPFlag("poll_interval", cmd.Flags().Lookup("poll-interval"))
	_ = ctx.viper.BindPFlag("max_wait", cmd.Flags().Lookup("max-wait"))
	_ = ctx.viper.BindPFlag("output_dir", cmd.Flags().Lookup("output-dir"))

	return cmd
}

func buildRequest(opts generateOptions) (videojob.Request, error) {
	prompt := strings.TrimSpace(opts.prompt)
	if prompt == "" {
		return videojob.Request{}, errors.New("a prompt is required (--prompt or positional text)")
	}
	aspect, err := videojob.ParseAspectRatio(opts.aspect)
	if err != nil {
		return videojob.Request{}, err
	}
	length, err := videojob.ParseTargetLength(opts.length)
	if err != nil {
		return videojob.Request{}, err
	}
	req := videojob.Request{Prompt: prompt, AspectRatio: aspect, Length: length}
	return req, req.Validate()
}

func newOrchestrator(cfg *config.Config, logger *infra.Logger) (*videojob.Orchestrator, error) {
	client := genai.NewClient(genai.Options{
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
		Logger:     logger,
	})
	provider, err := videoprovider.NewProvider(cfg.Provider, client)
	if err != nil {
		return nil, err
	}
	key := cfg.APIKey
	if key == "" && cfg.Provider == config.ProviderSynthetic {
		key = config.ProviderSynthetic
	}
	return videojob.New(videojob.Options{
		Provider:     provider,
		Credentials:  credentials.Static(key),
		PollInterval: cfg.PollInterval,
		MaxWait:      cfg.MaxWait,
		MaxPolls:     cfg.MaxPolls,
		Logger:       logger,
	})
}

func runGenerate(cmd *cobra.Command, cc *commandContext, opts generateOptions) error {
	req, err := buildRequest(opts)
	if err != nil {
		return err
	}
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("ensure profile dir: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another generation is already running for profile %s", cfg.ProfileDir)
	}
	defer func() { _ = lock.Unlock() }()

	store, err := localstore.Open(cfg.ProfileDir)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := cc.logger(cmd.ErrOrStderr())
	orchestrator, err := newOrchestrator(cfg, &logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	printer := newProgressPrinter(cmd.ErrOrStderr(), cfg.Locale)
	asset, err := orchestrator.Generate(ctx, req, printer.Update)
	printer.Finish()
	if err != nil {
		switch videojob.KindOf(err) {
		case videojob.KindCredentialMissing, videojob.KindCredentialInvalid:
			return fmt.Errorf("%w\nset a key with --api-key, GENLUX_API_KEY or api_key in %s", err, filepath.Join(cfg.ProfileDir, "config.toml"))
		}
		return err
	}

	started := time.Now()
	outPath := opts.out
	if outPath == "" {
		outPath = filepath.Join(cfg.OutputDir, defaultFileName(started, asset.MimeType))
	}
	if err := writeVideo(outPath, asset.Data); err != nil {
		return err
	}
	if abs, err := filepath.Abs(outPath); err == nil {
		outPath = abs
	}

	entry, err := store.Add(ctx, localstore.Entry{
		Prompt:      req.Prompt,
		AspectRatio: string(req.AspectRatio),
		Length:      string(req.Length),
		Path:        outPath,
		MimeType:    asset.MimeType,
		Bytes:       int64(len(asset.Data)),
		Extensions:  asset.Extensions,
		CreatedAt:   started,
	})
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s, id %s)\n", outPath, formatBytes(entry.Bytes), shortID(entry.ID))
	return nil
}

func defaultFileName(now time.Time, mimeType string) string {
	ext := ".mp4"
	switch mimeType {
	case "video/webm":
		ext = ".webm"
	case "video/quicktime":
		ext = ".mov"
	}
	return "genlux-" + now.Format("20060102-150405") + ext
}

func writeVideo(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure output dir: %w", err)
		}
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize video: %w", err)
	}
	return nil
}
