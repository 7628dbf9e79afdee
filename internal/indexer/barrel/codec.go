package barrel

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/indexer/index"
)

// Barrel is the decoded content of one barrel file.
type Barrel map[index.WordID]index.PostingList

// Compression modes.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// zstdDec is shared by all loads; DecodeAll is safe for concurrent use.
var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("zstd: init decoder: " + err.Error())
	}
}

// wire is the on-disk layout: WordID -> DocID -> Posting with string keys.
type wire map[string]map[string]index.Posting

// Encode serializes b as msgpack, optionally zstd-compressed.
func Encode(b Barrel, compression string) ([]byte, error) {
	w := make(wire, len(b))
	for wordID, postings := range b {
		docs := make(map[string]index.Posting, len(postings))
		for docID, p := range postings {
			docs[docID.String()] = p
		}
		w[wordID.String()] = docs
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(w); err != nil {
		return nil, fmt.Errorf("encoding barrel: %w", err)
	}
	if compression != CompressionZstd {
		return buf.Bytes(), nil
	}
	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer zenc.Close()
	return zenc.EncodeAll(buf.Bytes(), nil), nil
}

// Decode parses a barrel file. Compressed files are recognized by the zstd
// frame magic, so readers need not know how the barrel was written.
func Decode(data []byte) (Barrel, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := zstdDec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing barrel: %w", err)
		}
		data = raw
	}
	var w wire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding barrel: %w", err)
	}
	b := make(Barrel, len(w))
	for wkey, docs := range w {
		wordID, err := index.ParseWordID(wkey)
		if err != nil {
			return nil, fmt.Errorf("decoding barrel: %w", err)
		}
		postings := make(index.PostingList, len(docs))
		for dkey, p := range docs {
			docID, err := index.ParseDocID(dkey)
			if err != nil {
				return nil, fmt.Errorf("decoding barrel: %w", err)
			}
			postings[docID] = p
		}
		b[wordID] = postings
	}
	return b, nil
}
