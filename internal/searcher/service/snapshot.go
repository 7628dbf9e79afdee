package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/barrel"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/metrics"
)

// Snapshot is one immutable, fully loaded index build. Queries hold on to the
// snapshot they started with even if a newer one is swapped in.
type Snapshot struct {
	Manifest  *indexer.Manifest
	Lexicon   *lexicon.Lexicon
	Directory *directory.Directory
	Barrels   *barrel.Store
	LoadedAt  time.Time

	docs   *dataset.Materializer
	source *executor.Source
}

// BuildID identifies the build, or "unversioned" when no manifest exists.
func (s *Snapshot) BuildID() string {
	if s.Manifest == nil {
		return "unversioned"
	}
	return s.Manifest.BuildID
}

func (s *Snapshot) Source() *executor.Source {
	return s.source
}

// Close releases the dataset file handles.
func (s *Snapshot) Close() error {
	if s.docs == nil {
		return nil
	}
	return s.docs.Close()
}

// unavailableDocs stands in for a dataset file that could not be opened:
// every fetch fails, so results are skipped rather than the service refusing
// to start.
type unavailableDocs struct{ err error }

func (u unavailableDocs) Fetch(context.Context, dataset.ByteOffset) (dataset.Record, error) {
	return dataset.Record{}, u.err
}

// LoadSnapshot loads the artifacts named by cfg. A missing manifest falls
// back to cfg.NumBarrels; a missing offset directory is rebuilt from the
// barrels before LoadSnapshot returns. A dataset that no longer matches the
// build's fingerprint is refused.
func LoadSnapshot(ctx context.Context, cfg config.IndexConfig, search config.SearchConfig, m *metrics.Metrics) (*Snapshot, error) {
	log := logger.WithComponent("snapshot")
	start := time.Now()

	manifest, err := indexer.ReadManifest(cfg.ManifestPath())
	numBarrels := cfg.NumBarrels
	switch {
	case err == nil:
		numBarrels = manifest.NumBarrels
	case errors.Is(err, apperrors.ErrArtifactMissing):
		log.Warn("no build manifest, using configured barrel count", "num_barrels", numBarrels)
	default:
		return nil, err
	}

	lex, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("loading lexicon: %w", err)
	}

	snap := &Snapshot{
		Manifest: manifest,
		Lexicon:  lex,
		Barrels:  barrel.NewStore(cfg.BarrelPath(), numBarrels, m),
		LoadedAt: time.Now(),
	}
	snap.Directory, err = directory.LoadOrRebuild(ctx, cfg.DirectoryPath(), snap.Barrels)
	if err != nil {
		return nil, err
	}

	src := &executor.Source{
		Lexicon:   snap.Lexicon,
		Directory: snap.Directory,
		Barrels:   snap.Barrels,
	}
	if manifest != nil {
		src.TotalDocs = manifest.TotalDocs
		src.AvgDocLength = manifest.AvgDocLength
	}

	docs, err := dataset.OpenMaterializer(cfg.DatasetPath, search.FileHandles)
	switch {
	case err == nil:
		if manifest != nil && cfg.VerifyDataset {
			if err := manifest.VerifyDataset(cfg.DatasetPath); err != nil {
				docs.Close()
				return nil, err
			}
		}
		snap.docs = docs
		src.Docs = docs
	case errors.Is(err, apperrors.ErrArtifactMissing):
		log.Error("dataset unavailable, results will be empty", "path", cfg.DatasetPath, "error", err)
		src.Docs = unavailableDocs{err: err}
	default:
		return nil, err
	}
	snap.source = src

	if search.PreloadBarrels {
		if err := snap.Barrels.Preload(ctx, search.Workers); err != nil {
			snap.Close()
			return nil, err
		}
	}

	log.Info("snapshot loaded",
		"build_id", snap.BuildID(),
		"vocabulary", lex.Len(),
		"directory_words", snap.Directory.Len(),
		"num_barrels", numBarrels,
		"total_docs", src.TotalDocs,
		"duration", time.Since(start),
	)
	return snap, nil
}
