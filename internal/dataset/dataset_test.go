package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
)

const sampleCSV = `Name,Description,URL,Created At,Stars,Forks,Issues,Watchers,Language,Topics
tokio,"A runtime for writing reliable, asynchronous applications",https://github.com/tokio-rs/tokio,1000,25000,2300,300,25000,Rust,"['async', 'rust']"
multi,"first line
second line",https://github.com/x/multi,10,5,1,0,5,Go,[]
short,only,three
gin,HTTP web framework,https://github.com/gin-gonic/gin,500,abc,7000,10,70000,Go,"[""web"", ""http""]"
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repositories.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	return path
}

func TestScanFindsQuoteAwareBoundaries(t *testing.T) {
	var recs []RawRecord
	err := Scan(strings.NewReader(sampleCSV), func(r RawRecord) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, recs, 4)

	for i, r := range recs {
		assert.Equal(t, i+1, r.Ordinal)
		got := sampleCSV[r.Offset.Start() : r.Offset.Start()+r.Offset.Length()]
		assert.Equal(t, string(r.Data), got)
	}
	assert.Contains(t, string(recs[1].Data), "second line")
	assert.True(t, strings.HasPrefix(string(recs[3].Data), "gin,"))
}

func TestScanWithoutTrailingNewline(t *testing.T) {
	var n int
	err := Scan(strings.NewReader("h1,h2\na,b\nc,d"), func(r RawRecord) error {
		n++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord([]byte(`gin,HTTP web framework,https://github.com/gin-gonic/gin,500,abc,7000,10,70000,Go,"[""web"", ""http""]"` + "\n"))
	require.NoError(t, err)
	assert.Equal(t, "gin", rec.Name)
	assert.Equal(t, int64(0), rec.Stars)
	assert.Equal(t, int64(7000), rec.Forks)
	assert.Equal(t, int64(70000), rec.Watchers)
	assert.Equal(t, "Go", rec.Language)
	assert.Equal(t, []string{"web", "http"}, rec.Topics)

	_, err = ParseRecord([]byte("short,only,three\n"))
	assert.True(t, errors.Is(err, apperrors.ErrMalformedRecord))
}

func TestParseTopics(t *testing.T) {
	assert.Equal(t, []string{"async", "rust"}, ParseTopics("['async', 'rust']"))
	assert.Equal(t, []string{}, ParseTopics("[]"))
	assert.Equal(t, []string{}, ParseTopics(""))
	assert.Equal(t, []string{}, ParseTopics("async"))
}

func TestMaterializerFetch(t *testing.T) {
	path := writeSample(t)
	offsets, err := Offsets(path)
	require.NoError(t, err)
	require.Len(t, offsets, 4)

	m, err := OpenMaterializer(path, 2)
	require.NoError(t, err)
	defer m.Close()

	rec, err := m.Fetch(context.Background(), offsets[0])
	require.NoError(t, err)
	assert.Equal(t, "tokio", rec.Name)
	assert.Equal(t, int64(25000), rec.Stars)

	rec, err = m.Fetch(context.Background(), offsets[1])
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line", rec.Description)

	_, err = m.Fetch(context.Background(), offsets[2])
	assert.True(t, errors.Is(err, apperrors.ErrMalformedRecord))

	_, err = m.Fetch(context.Background(), ByteOffset{1 << 30, 10})
	assert.Error(t, err)
}

func TestMaterializerRejectsOffsetsOutsideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\n"), 0o644))
	m, err := OpenMaterializer(path, 1)
	require.NoError(t, err)
	defer m.Close()

	for _, off := range []ByteOffset{
		{0, 1 << 62},
		{7, 1},
		{1 << 40, 4},
		{3, 4},
		{-1, 2},
	} {
		_, err := m.Fetch(context.Background(), off)
		assert.True(t, errors.Is(err, apperrors.ErrMalformedRecord), "offset %v: %v", off, err)
	}
}

func TestMaterializerCloseWhileHandleBorrowed(t *testing.T) {
	path := writeSample(t)
	offsets, err := Offsets(path)
	require.NoError(t, err)

	m, err := OpenMaterializer(path, 1)
	require.NoError(t, err)

	f, err := m.acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Close())
	m.release(f)

	// The borrowed handle was closed on return instead of pooled.
	_, err = f.Stat()
	assert.True(t, errors.Is(err, os.ErrClosed))
	assert.Zero(t, len(m.handles))

	_, err = m.Fetch(context.Background(), offsets[0])
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestMaterializerCloseWakesWaiters(t *testing.T) {
	path := writeSample(t)
	offsets, err := Offsets(path)
	require.NoError(t, err)

	m, err := OpenMaterializer(path, 1)
	require.NoError(t, err)
	f, err := m.acquire(context.Background())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := m.Fetch(context.Background(), offsets[0])
		errc <- err
	}()
	require.NoError(t, m.Close())
	m.release(f)
	assert.True(t, errors.Is(<-errc, ErrClosed))
}

func TestOpenMaterializerMissingFile(t *testing.T) {
	_, err := OpenMaterializer(filepath.Join(t.TempDir(), "nope.csv"), 1)
	assert.True(t, errors.Is(err, apperrors.ErrArtifactMissing))
}

func TestFingerprintChangesWithContent(t *testing.T) {
	path := writeSample(t)
	a, err := ComputeFingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(sampleCSV)), a.Size)
	assert.Len(t, a.Hash, 32)

	require.NoError(t, os.WriteFile(path, []byte(sampleCSV+"x\n"), 0o644))
	b, err := ComputeFingerprint(path)
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, b.Hash)
}
