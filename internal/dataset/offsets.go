// Package dataset reads the repository CSV: it locates every record by byte
// offset, fingerprints the file, parses single records, and materializes
// records on demand for search results.
package dataset

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spaolacci/murmur3"
)

// ByteOffset locates one raw record: [start, length] in bytes. The length
// includes the record's trailing line terminator.
type ByteOffset [2]int64

func (b ByteOffset) Start() int64  { return b[0] }
func (b ByteOffset) Length() int64 { return b[1] }

// RawRecord is one record as it appears in the file together with its
// position.
type RawRecord struct {
	Ordinal int // 1-based, header excluded
	Offset  ByteOffset
	Data    []byte
}

// Scan reads r sequentially, skips the header record and calls fn for every
// data record. Record boundaries are newlines outside double-quoted fields,
// so descriptions with embedded newlines stay in one record. Returning an
// error from fn stops the scan.
func Scan(r io.Reader, fn func(RawRecord) error) error {
	br := bufio.NewReaderSize(r, 1<<20)
	var (
		pos     int64
		ordinal int
		buf     []byte
		inQuote bool
		header  = true
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			buf = append(buf, chunk...)
			for _, c := range chunk {
				if c == '"' {
					inQuote = !inQuote
				}
			}
		}
		atEOF := err == io.EOF
		if err != nil && err != bufio.ErrBufferFull && !atEOF {
			return fmt.Errorf("scanning dataset at byte %d: %w", pos, err)
		}
		if err == bufio.ErrBufferFull || (inQuote && !atEOF) {
			continue
		}
		if len(buf) > 0 {
			length := int64(len(buf))
			if header {
				header = false
			} else if !blank(buf) {
				ordinal++
				rec := RawRecord{Ordinal: ordinal, Offset: ByteOffset{pos, length}, Data: buf}
				if err := fn(rec); err != nil {
					return err
				}
			}
			pos += length
			buf = nil
		}
		if atEOF {
			return nil
		}
	}
}

// Offsets returns the byte offset of every data record in the file at path.
func Offsets(path string) ([]ByteOffset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	var offsets []ByteOffset
	err = Scan(f, func(rec RawRecord) error {
		offsets = append(offsets, rec.Offset)
		return nil
	})
	return offsets, err
}

// Fingerprint identifies a dataset file by content: the hex murmur3-128
// digest and the size in bytes. Stored offsets are only valid against a file
// with the same fingerprint.
type Fingerprint struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

func ComputeFingerprint(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	h := murmur3.New128()
	n, err := io.Copy(h, f)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("hashing dataset: %w", err)
	}
	return Fingerprint{Hash: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

func blank(b []byte) bool {
	for _, c := range b {
		if c != '\n' && c != '\r' && c != ' ' && c != '\t' {
			return false
		}
	}
	return true
}
