package forward

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
)

type rawDoc struct {
	WordData   map[string]json.RawMessage `json:"word_data"`
	ByteOffset *dataset.ByteOffset        `json:"byte_offset"`
}

type rawStats struct {
	Freq      *int     `json:"freq"`
	Density   *float64 `json:"density"`
	Positions *[]int   `json:"positions"`
}

// LoadResult is a decoded forward index and the number of entries dropped.
type LoadResult struct {
	Index        index.ForwardIndex
	SkippedDocs  int
	SkippedWords int
}

// Load reads a forward index written by Save. Entries that are missing freq
// or positions, or whose freq disagrees with the number of positions, are
// skipped and logged; they never fail the load.
func Load(path string) (LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: forward index %s: %v", apperrors.ErrArtifactMissing, path, err)
	}
	return Decode(data)
}

func Decode(data []byte) (LoadResult, error) {
	log := logger.WithComponent("forward-loader")
	var docs map[string]json.RawMessage
	if err := json.Unmarshal(data, &docs); err != nil {
		return LoadResult{}, fmt.Errorf("parsing forward index: %w", err)
	}

	res := LoadResult{Index: make(index.ForwardIndex, len(docs))}
	for key, raw := range docs {
		docID, err := index.ParseDocID(key)
		if err != nil {
			res.SkippedDocs++
			log.Warn("skipping forward entry", "doc_id", key, "error", err)
			continue
		}
		var rd rawDoc
		if err := json.Unmarshal(raw, &rd); err != nil || rd.ByteOffset == nil {
			res.SkippedDocs++
			log.Warn("skipping forward entry", "doc_id", key, "error", err, "has_offset", rd.ByteOffset != nil)
			continue
		}
		doc := index.ForwardDoc{
			Words:      make(map[index.WordID]index.WordStats, len(rd.WordData)),
			ByteOffset: *rd.ByteOffset,
		}
		for wkey, wraw := range rd.WordData {
			ws, err := decodeStats(wkey, wraw)
			if err != nil {
				res.SkippedWords++
				log.Warn("skipping malformed word entry", "doc_id", key, "word_id", wkey, "error", err)
				continue
			}
			wordID, _ := index.ParseWordID(wkey)
			doc.Words[wordID] = ws
		}
		res.Index[docID] = doc
	}
	return res, nil
}

func decodeStats(key string, raw json.RawMessage) (index.WordStats, error) {
	if _, err := index.ParseWordID(key); err != nil {
		return index.WordStats{}, err
	}
	var rs rawStats
	if err := json.Unmarshal(raw, &rs); err != nil {
		return index.WordStats{}, err
	}
	if rs.Freq == nil || rs.Positions == nil {
		return index.WordStats{}, fmt.Errorf("%w: missing freq or positions", apperrors.ErrMalformedRecord)
	}
	ws := index.WordStats{Freq: *rs.Freq, Positions: *rs.Positions}
	if rs.Density != nil {
		ws.Density = *rs.Density
	}
	if err := ws.Validate(); err != nil {
		return index.WordStats{}, fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err)
	}
	return ws, nil
}
