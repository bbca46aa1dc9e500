package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reportrag/internal/app"
	"reportrag/internal/config"
	"reportrag/internal/contextutil"
	"reportrag/internal/rag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Results go to out, logs to logOut.
func newRootCmd(out, logOut io.Writer) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "ragctl",
		Short:         "ingest annual reports and query them",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (overrides CONFIG_FILE)")

	// open loads the configuration and wires the application for one command run.
	open := func(cmd *cobra.Command) (context.Context, *app.App, error) {
		if configPath != "" {
			if err := os.Setenv("CONFIG_FILE", configPath); err != nil {
				return nil, nil, err
			}
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		logger := app.NewLogger(cfg, logOut)
		slog.SetDefault(logger)
		ctx := contextutil.WithLogger(cmd.Context(), logger)

		a, err := app.New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return ctx, a, nil
	}

	rootCmd.AddCommand(
		newIngestCmd(out, open),
		newQueryCmd(out, open),
		newAskCmd(out, open),
		newDocsCmd(out, open),
	)
	return rootCmd
}

type openFunc func(cmd *cobra.Command) (context.Context, *app.App, error)

func newIngestCmd(out io.Writer, open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "ingest files or directories (default RAW_DATA_DIR)",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, a, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			if len(args) == 0 {
				args = []string{a.Config.RawDataDir}
			}

			failed := 0
			for _, path := range args {
				info, statErr := os.Stat(path)
				if statErr != nil {
					return statErr
				}
				if info.IsDir() {
					stats, err := a.Pipeline.IngestDir(ctx, path)
					if stats != nil {
						if encErr := writeJSON(out, stats); encErr != nil {
							return encErr
						}
						failed += stats.DocsFailed
					}
					if err != nil && stats == nil {
						return err
					}
					continue
				}
				n, err := a.Pipeline.IngestFile(ctx, path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: error: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "%s: %d chunks\n", path, n)
			}
			if failed > 0 {
				return fmt.Errorf("%d documents failed", failed)
			}
			return nil
		},
	}
}

func newQueryCmd(out io.Writer, open openFunc) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "print the k most similar chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, a, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			results, err := a.Pipeline.Search(ctx, args[0], k)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. [%s] score=%.4f\n%s\n\n", i+1, r.ID, r.Score, r.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of results (0 uses DEFAULT_TOP_K)")
	return cmd
}

func newAskCmd(out io.Writer, open openFunc) *cobra.Command {
	var (
		k      int
		stream bool
		debug  bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "answer a question from the ingested documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, a, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			req := rag.AskRequest{Question: args[0], K: k, Debug: debug}
			var resp rag.AskResponse
			if stream {
				resp, err = a.Engine.AskStream(ctx, req, func(chunk string) error {
					_, werr := io.WriteString(out, chunk)
					return werr
				})
				fmt.Fprintln(out)
			} else {
				resp, err = a.Engine.Ask(ctx, req)
				if err == nil {
					fmt.Fprintln(out, resp.Answer)
				}
			}
			if err != nil {
				return err
			}

			if len(resp.References) > 0 {
				fmt.Fprintln(out, "\nReferences:")
				for _, ref := range resp.References {
					fmt.Fprintf(out, "  %s#%d (%.4f)\n", ref.DocumentID, ref.ChunkIndex, ref.Score)
				}
			}
			if resp.Debug != nil {
				return writeJSON(out, resp.Debug)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of chunks to retrieve (0 uses DEFAULT_TOP_K)")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it is generated")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the retrieved chunks and prompt")
	return cmd
}

func newDocsCmd(out io.Writer, open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "list ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, a, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			docs, err := a.Documents.List(ctx, a.Config.CollectionName)
			if err != nil {
				return err
			}
			count, err := a.Index.Count(ctx)
			if err != nil {
				return err
			}
			for _, d := range docs {
				fmt.Fprintf(out, "%s\t%d chunks\t%s\t%s\n", d.ID, d.ChunkCount, d.IngestedAt.Format("2006-01-02 15:04:05"), d.SourcePath)
			}
			fmt.Fprintf(out, "%d documents, %d records in %s\n", len(docs), count, a.Config.CollectionName)
			return nil
		},
	}
}

func closeApp(a *app.App, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
