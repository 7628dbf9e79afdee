package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
)

// ManifestFileName is written last by a build; its appearance marks a
// complete, consistent set of artifacts.
const ManifestFileName = "manifest.json"

// Manifest describes one build.
type Manifest struct {
	BuildID        string              `json:"build_id"`
	CreatedAt      time.Time           `json:"created_at"`
	NumBarrels     int                 `json:"num_barrels"`
	Compression    string              `json:"compression"`
	IDFMode        string              `json:"idf_mode,omitempty"`
	TotalDocs      int                 `json:"total_docs"`
	AvgDocLength   float64             `json:"avg_doc_length"`
	VocabularySize int                 `json:"vocabulary_size"`
	PostingCount   int                 `json:"posting_count"`
	DatasetPath    string              `json:"dataset_path"`
	Dataset        dataset.Fingerprint `json:"dataset"`
}

func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return os.Rename(tmp, path)
}

// ReadManifest returns ErrArtifactMissing when no build has completed.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: manifest %s", apperrors.ErrArtifactMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// VerifyDataset checks that the dataset at path is the one the build
// computed offsets against.
func (m *Manifest) VerifyDataset(path string) error {
	fp, err := dataset.ComputeFingerprint(path)
	if err != nil {
		return err
	}
	if fp != m.Dataset {
		return fmt.Errorf("%w: %s has fingerprint %s/%d, build %s expects %s/%d",
			apperrors.ErrDatasetMismatch, path, fp.Hash, fp.Size, m.BuildID, m.Dataset.Hash, m.Dataset.Size)
	}
	return nil
}
