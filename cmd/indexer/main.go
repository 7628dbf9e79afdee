// Command indexer runs the offline index build and inspects its artifacts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/barrel"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
)

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:           "indexer",
		Short:         "Build and inspect the repository search index",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			loaded, err := config.Load(path)
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("dataset"); v != "" {
				loaded.Index.DatasetPath = v
			}
			if v, _ := cmd.Flags().GetInt("barrels"); v > 0 {
				loaded.Index.NumBarrels = v
			}
			if v, _ := cmd.Flags().GetString("compression"); v != "" {
				loaded.Index.Compression = v
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			cfg = loaded
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}
	rootCmd.PersistentFlags().String("config", "configs/development.yaml", "path to config file")
	rootCmd.PersistentFlags().String("dataset", "", "override index.datasetPath")
	rootCmd.PersistentFlags().Int("barrels", 0, "override index.numBarrels")
	rootCmd.PersistentFlags().String("compression", "", "override index.compression (none or zstd)")

	rootCmd.AddCommand(lexiconCmd(), forwardCmd(), buildCmd(), directoryCmd(), offsetsCmd(), inspectCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
}

func newBuilder() *indexer.Builder {
	tk := tokenizer.New(tokenizer.Options{
		MinLength: cfg.Tokenizer.MinLength,
		Stem:      cfg.Tokenizer.Stem,
	})
	return indexer.NewBuilder(cfg.Index, tk, nil)
}

func lexiconCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lexicon",
		Short: "Scan the dataset and write the lexicon",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := newBuilder().BuildLexicon(cmd.Context())
			return err
		},
	}
}

func forwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forward",
		Short: "Write the forward index using the saved lexicon",
		RunE: func(cmd *cobra.Command, args []string) error {
			lex, err := lexicon.Load(cfg.Index.LexiconPath)
			if err != nil {
				return err
			}
			_, err = newBuilder().BuildForward(cmd.Context(), lex)
			return err
		},
	}
}

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the full build: lexicon, forward index, barrels, directory and manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromForward, _ := cmd.Flags().GetBool("from-forward")
			publish, _ := cmd.Flags().GetBool("publish")

			start := time.Now()
			b := newBuilder()
			var (
				m   *indexer.Manifest
				err error
			)
			if fromForward {
				m, err = b.RunFromForward(cmd.Context())
			} else {
				m, err = b.Run(cmd.Context())
			}
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			fmt.Fprintf(cmd.OutOrStdout(), "build %s: %d docs, %d words, %d postings in %d barrels (%s)\n",
				m.BuildID, m.TotalDocs, m.VocabularySize, m.PostingCount, m.NumBarrels, elapsed.Round(time.Millisecond))

			if publish {
				return publishBuild(cmd.Context(), m, elapsed)
			}
			return nil
		},
	}
	cmd.Flags().Bool("from-forward", false, "build barrels from the saved lexicon and forward index")
	cmd.Flags().Bool("publish", false, "publish a build event to the analytics topic")
	return cmd
}

func publishBuild(ctx context.Context, m *indexer.Manifest, elapsed time.Duration) error {
	if !cfg.Kafka.Enabled {
		slog.Warn("kafka disabled, build event not published")
		return nil
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer producer.Close()

	e := analytics.NewBuildEvent(analytics.BuildEvent{
		BuildID:        m.BuildID,
		TotalDocs:      m.TotalDocs,
		VocabularySize: m.VocabularySize,
		PostingCount:   m.PostingCount,
		NumBarrels:     m.NumBarrels,
		DurationMs:     float64(elapsed.Microseconds()) / 1000,
	})
	if err := producer.Publish(ctx, kafka.Event{Key: e.Key(), Value: e}); err != nil {
		return fmt.Errorf("publishing build event: %w", err)
	}
	slog.Info("build event published", "build_id", m.BuildID, "topic", cfg.Kafka.Topics.AnalyticsEvents)
	return nil
}

func directoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "directory",
		Short: "Rescan the barrels and rewrite the offset directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := newBuilder().RebuildDirectory(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "offset directory rebuilt: %d words\n", dir.Len())
			return nil
		},
	}
}

func offsetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offsets",
		Short: "Print the byte offset of every dataset record",
		RunE: func(cmd *cobra.Command, args []string) error {
			offsets, err := dataset.Offsets(cfg.Index.DatasetPath)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				return enc.Encode(offsets)
			}
			data, err := json.Marshal(offsets)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d offsets written to %s\n", len(offsets), out)
			return nil
		},
	}
	cmd.Flags().String("out", "", "write offsets to this file instead of stdout")
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [word...]",
		Short: "Print the manifest, or the postings of the given words",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			m, err := indexer.ReadManifest(cfg.Index.ManifestPath())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			}

			lex, err := lexicon.Load(cfg.Index.LexiconPath)
			if err != nil {
				return err
			}
			store := barrel.NewStore(cfg.Index.BarrelPath(), m.NumBarrels, nil)
			dir, err := directory.LoadOrRebuild(cmd.Context(), cfg.Index.DirectoryPath(), store)
			if err != nil {
				return err
			}
			tk := tokenizer.New(tokenizer.Options{MinLength: cfg.Tokenizer.MinLength, Stem: cfg.Tokenizer.Stem})
			for _, term := range tk.Terms(strings.Join(args, " ")) {
				id, ok := lex.Lookup(term)
				if !ok {
					fmt.Fprintf(w, "%s: not in lexicon\n", term)
					continue
				}
				barrelID, ok := dir.Lookup(id)
				if !ok {
					fmt.Fprintf(w, "%s (word %d): no postings\n", term, id)
					continue
				}
				b, err := store.Load(cmd.Context(), barrelID)
				if err != nil {
					return err
				}
				postings := b[id]
				fmt.Fprintf(w, "%s (word %d, barrel %d): %d documents\n", term, id, barrelID, len(postings))
				docs := make([]int, 0, len(postings))
				for doc := range postings {
					docs = append(docs, int(doc))
				}
				sort.Ints(docs)
				for _, doc := range docs {
					p := postings[index.DocID(doc)]
					fmt.Fprintf(w, "  doc %d freq=%d density=%.4f positions=%v offset=%v\n",
						doc, p.Freq, p.Density, p.Positions, p.ByteOffset)
				}
			}
			return nil
		},
	}
}
