package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"genlux/internal/localstore"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved videos for this profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *localstore.Store) error {
				entries, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(historyJSON(entries))
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No videos yet. Run `genlux generate` to create one.")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						shortID(e.ID),
						e.CreatedAt.Local().Format("2006-01-02 15:04"),
						e.AspectRatio,
						e.Length,
						formatBytes(e.Bytes),
						truncate(e.Prompt, 40),
						e.Path,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Created", "Aspect", "Length", "Size", "Prompt", "File"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")

	cmd.AddCommand(newHistoryShowCommand(ctx))
	cmd.AddCommand(newHistoryRemoveCommand(ctx))
	cmd.AddCommand(newHistoryClearCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one saved video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *localstore.Store) error {
				e, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, statErr := os.Stat(e.Path)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:         %s\n", e.ID)
				fmt.Fprintf(out, "Created:    %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "Prompt:     %s\n", e.Prompt)
				fmt.Fprintf(out, "Aspect:     %s\n", e.AspectRatio)
				fmt.Fprintf(out, "Length:     %s (%d extensions)\n", e.Length, e.Extensions)
				fmt.Fprintf(out, "File:       %s\n", e.Path)
				fmt.Fprintf(out, "Size:       %s\n", formatBytes(e.Bytes))
				if statErr != nil {
					fmt.Fprintln(out, "Status:     file missing")
				}
				return nil
			})
		},
	}
}

func newHistoryRemoveCommand(ctx *commandContext) *cobra.Command {
	var deleteFile bool
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Forget a saved video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *localstore.Store) error {
				e, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := store.Delete(cmd.Context(), e.ID); err != nil {
					return err
				}
				if deleteFile {
					if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("remove %s: %w", e.Path, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", shortID(e.ID))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&deleteFile, "delete-file", false, "Also delete the video file")
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget every saved video (files are kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *localstore.Store) error {
				n, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries\n", n)
				return nil
			})
		},
	}
}

func withStore(ctx *commandContext, fn func(*localstore.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := localstore.Open(cfg.ProfileDir)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

type historyEntryJSON struct {
	ID          string `json:"id"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Length      string `json:"length"`
	Path        string `json:"path"`
	MimeType    string `json:"mime_type"`
	Bytes       int64  `json:"bytes"`
	Extensions  int    `json:"extensions"`
	CreatedAt   string `json:"created_at"`
}

func historyJSON(entries []localstore.Entry) []historyEntryJSON {
	out := make([]historyEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryJSON{
			ID:          e.ID,
			Prompt:      e.Prompt,
			AspectRatio: e.AspectRatio,
			Length:      e.Length,
			Path:        e.Path,
			MimeType:    e.MimeType,
			Bytes:       e.Bytes,
			Extensions:  e.Extensions,
			CreatedAt:   e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return out
}
