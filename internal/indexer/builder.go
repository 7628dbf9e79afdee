// Package indexer runs the offline build: dataset to lexicon, forward index,
// inverted index, barrels, offset directory and manifest.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/barrel"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/forward"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/metrics"
)

type Builder struct {
	cfg     config.IndexConfig
	tk      *tokenizer.Tokenizer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewBuilder creates a Builder. m may be nil.
func NewBuilder(cfg config.IndexConfig, tk *tokenizer.Tokenizer, m *metrics.Metrics) *Builder {
	return &Builder{
		cfg:     cfg,
		tk:      tk,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
}

// Run performs a full build from the dataset.
func (b *Builder) Run(ctx context.Context) (*Manifest, error) {
	start := time.Now()
	lex, err := b.BuildLexicon(ctx)
	if err != nil {
		return nil, err
	}
	fwd, err := b.BuildForward(ctx, lex)
	if err != nil {
		return nil, err
	}
	m, err := b.BuildBarrels(ctx, fwd, lex.Len())
	if err != nil {
		return nil, err
	}
	b.logger.Info("build complete", "build_id", m.BuildID, "duration", time.Since(start))
	return m, nil
}

// RunFromForward builds barrels from the persisted lexicon and forward index
// instead of rescanning the dataset for terms.
func (b *Builder) RunFromForward(ctx context.Context) (*Manifest, error) {
	lex, err := lexicon.Load(b.cfg.LexiconPath)
	if err != nil {
		return nil, err
	}
	res, err := forward.Load(b.cfg.ForwardIndexPath)
	if err != nil {
		return nil, err
	}
	if res.SkippedDocs > 0 || res.SkippedWords > 0 {
		b.logger.Warn("forward index had malformed entries",
			"skipped_docs", res.SkippedDocs,
			"skipped_words", res.SkippedWords,
		)
	}
	return b.BuildBarrels(ctx, res.Index, lex.Len())
}

func (b *Builder) BuildLexicon(ctx context.Context) (*lexicon.Lexicon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lex, err := lexicon.BuildFromDataset(b.cfg.DatasetPath, b.tk)
	if err != nil {
		return nil, err
	}
	if err := lex.Save(b.cfg.LexiconPath); err != nil {
		return nil, fmt.Errorf("saving lexicon: %w", err)
	}
	b.logger.Info("lexicon saved", "path", b.cfg.LexiconPath, "words", lex.Len())
	return lex, nil
}

func (b *Builder) BuildForward(ctx context.Context, lex *lexicon.Lexicon) (index.ForwardIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := forward.BuildFromDataset(b.cfg.DatasetPath, lex, b.tk)
	if err != nil {
		return nil, err
	}
	if err := forward.Save(b.cfg.ForwardIndexPath, res.Index); err != nil {
		return nil, fmt.Errorf("saving forward index: %w", err)
	}
	if b.metrics != nil {
		b.metrics.DocsIndexedTotal.Add(float64(len(res.Index)))
	}
	b.logger.Info("forward index saved",
		"path", b.cfg.ForwardIndexPath,
		"documents", len(res.Index),
		"skipped", res.Skipped,
	)
	return res.Index, nil
}

// BuildBarrels inverts fwd, partitions it, writes the barrels, rebuilds the
// offset directory from what was written and finally writes the manifest.
func (b *Builder) BuildBarrels(ctx context.Context, fwd index.ForwardIndex, vocabulary int) (*Manifest, error) {
	policy, err := barrel.NewModuloPolicy(b.cfg.NumBarrels)
	if err != nil {
		return nil, err
	}
	fp, err := dataset.ComputeFingerprint(b.cfg.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting dataset: %w", err)
	}

	inv := index.Invert(fwd)
	stats := index.ComputeStats(fwd)
	idfMode := ""
	if b.cfg.ComputeIDF {
		idfMode = b.cfg.IDFMode
		if idfMode == "" {
			idfMode = index.IDFPlain
		}
		inv.ApplyIDF(stats.TotalDocs, idfMode)
	}
	b.logger.Info("inverted index built",
		"words", len(inv),
		"postings", inv.PostingCount(),
		"idf", idfMode,
	)

	barrels := barrel.Partition(inv, policy)
	w := barrel.NewWriter(b.cfg.BarrelPath(), b.cfg.Compression, 4)
	if err := w.WriteAll(ctx, barrels); err != nil {
		return nil, fmt.Errorf("writing barrels: %w", err)
	}
	if b.metrics != nil {
		b.metrics.BarrelsWrittenTotal.Add(float64(len(barrels)))
	}

	dir, err := directory.BuildByScan(ctx, barrel.NewStore(b.cfg.BarrelPath(), policy.NumBarrels(), nil))
	if err != nil {
		return nil, err
	}
	if err := dir.Save(b.cfg.DirectoryPath()); err != nil {
		return nil, fmt.Errorf("saving offset directory: %w", err)
	}

	compression := b.cfg.Compression
	if compression == "" {
		compression = barrel.CompressionNone
	}
	m := &Manifest{
		BuildID:        uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		NumBarrels:     policy.NumBarrels(),
		Compression:    compression,
		IDFMode:        idfMode,
		TotalDocs:      stats.TotalDocs,
		AvgDocLength:   stats.AvgDocLength,
		VocabularySize: vocabulary,
		PostingCount:   inv.PostingCount(),
		DatasetPath:    b.cfg.DatasetPath,
		Dataset:        fp,
	}
	if err := WriteManifest(b.cfg.ManifestPath(), m); err != nil {
		return nil, err
	}
	b.logger.Info("barrels written",
		"barrels", policy.NumBarrels(),
		"directory_words", dir.Len(),
		"dir", b.cfg.BarrelPath(),
	)
	return m, nil
}

// RebuildDirectory rescans the barrels on disk and rewrites the offset
// directory.
func (b *Builder) RebuildDirectory(ctx context.Context) (*directory.Directory, error) {
	numBarrels := b.cfg.NumBarrels
	if m, err := ReadManifest(b.cfg.ManifestPath()); err == nil {
		numBarrels = m.NumBarrels
	}
	dir, err := directory.BuildByScan(ctx, barrel.NewStore(b.cfg.BarrelPath(), numBarrels, nil))
	if err != nil {
		return nil, err
	}
	if err := dir.Save(b.cfg.DirectoryPath()); err != nil {
		return nil, fmt.Errorf("saving offset directory: %w", err)
	}
	return dir, nil
}
