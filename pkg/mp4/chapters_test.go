package mp4_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/mp4chapters/internal/testgen"
	"github.com/shishobooks/mp4chapters/pkg/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extract(t *testing.T, opts testgen.M4BOptions) []mp4.Chapter {
	t.Helper()
	ctx := logger.New().WithContext(context.Background())
	chapters, err := mp4.ExtractChapters(ctx, bytes.NewReader(testgen.GenerateM4BBytes(t, opts)))
	require.NoError(t, err)
	return chapters
}

// assertContinuous checks that every chapter of a track starts where the
// previous one ended, and the first one at zero.
func assertContinuous(t *testing.T, chapters []mp4.Chapter) {
	t.Helper()
	require.NotEmpty(t, chapters)
	assert.Zero(t, chapters[0].Start)
	for i := 1; i < len(chapters); i++ {
		assert.GreaterOrEqual(t, chapters[i].Start, chapters[i-1].Start)
		assert.Equal(t, chapters[i-1].Start+chapters[i-1].Duration, chapters[i].Start, "chapter %d", i)
		assert.Equal(t, chapters[i-1].End(), chapters[i].Start)
	}
}

func TestExtractChapters_GeneratedFile(t *testing.T) {
	t.Parallel()

	chapters := extract(t, testgen.M4BOptions{
		Tracks: []testgen.M4BTrack{{
			Titles:      []string{"Intro", "Chapter 2"},
			DurationsMs: []uint32{2000, 3000},
		}},
	})

	assert.Equal(t, []mp4.Chapter{
		{Title: "Intro", Start: 0, Duration: 2},
		{Title: "Chapter 2", Start: 2, Duration: 3},
	}, chapters)
}

func TestExtractChapters_MultipleChunks(t *testing.T) {
	t.Parallel()

	chapters := extract(t, testgen.M4BOptions{
		Tracks: []testgen.M4BTrack{{
			Titles:      []string{"Opening Credits", "Prologue", "Chapter 1", "Chapter 2", "Épilogue"},
			ChunkSizes:  []int{2, 1, 1, 1},
			DurationsMs: []uint32{12345, 600001, 1799999, 1, 42},
		}},
	})

	require.Len(t, chapters, 5)
	assert.Equal(t, "Opening Credits", chapters[0].Title)
	assert.Equal(t, "Prologue", chapters[1].Title)
	assert.Equal(t, "Chapter 1", chapters[2].Title)
	assert.Equal(t, "Chapter 2", chapters[3].Title)
	assert.Equal(t, "Épilogue", chapters[4].Title)
	assert.InDelta(t, 12.345, chapters[0].Duration, 1e-9)
	assert.InDelta(t, 0.042, chapters[4].Duration, 1e-9)
	assertContinuous(t, chapters)
}

func TestExtractChapters_SkipsNonTextTracks(t *testing.T) {
	t.Parallel()

	chapters := extract(t, testgen.M4BOptions{
		Tracks: []testgen.M4BTrack{
			{Handler: "soun", Titles: []string{"not a title"}, DurationsMs: []uint32{1000}},
			{Titles: []string{"Part 1", "Part 2"}, DurationsMs: []uint32{1000, 2000}},
			{Handler: "vide"},
		},
	})

	assert.Equal(t, []mp4.Chapter{
		{Title: "Part 1", Start: 0, Duration: 1},
		{Title: "Part 2", Start: 1, Duration: 2},
	}, chapters)
}

func TestExtractChapters_TracksAreConcatenatedInOrder(t *testing.T) {
	t.Parallel()

	chapters := extract(t, testgen.M4BOptions{
		Tracks: []testgen.M4BTrack{
			{Titles: []string{"A1", "A2"}, DurationsMs: []uint32{1000, 1000}},
			{Titles: []string{"B1"}, DurationsMs: []uint32{5000}},
		},
	})

	assert.Equal(t, []mp4.Chapter{
		{Title: "A1", Start: 0, Duration: 1},
		{Title: "A2", Start: 1, Duration: 1},
		{Title: "B1", Start: 0, Duration: 5},
	}, chapters)
}

func TestExtractChapters_BrokenTrackDoesNotAffectOthers(t *testing.T) {
	t.Parallel()

	good := testgen.M4BTrack{Titles: []string{"Kept"}, DurationsMs: []uint32{1000}}

	tests := []struct {
		name   string
		broken testgen.M4BTrack
	}{
		{"count mismatch", testgen.M4BTrack{Titles: []string{"a", "b"}, DurationsMs: []uint32{1, 2, 3}}},
		{"missing mdia", testgen.M4BTrack{Titles: []string{"a"}, DurationsMs: []uint32{1}, Omit: []string{"mdia"}}},
		{"missing hdlr", testgen.M4BTrack{Titles: []string{"a"}, DurationsMs: []uint32{1}, Omit: []string{"hdlr"}}},
		{"missing minf", testgen.M4BTrack{Titles: []string{"a"}, DurationsMs: []uint32{1}, Omit: []string{"minf"}}},
		{"missing stbl", testgen.M4BTrack{Titles: []string{"a"}, DurationsMs: []uint32{1}, Omit: []string{"stbl"}}},
		{"missing stsc", testgen.M4BTrack{Titles: []string{"a"}, DurationsMs: []uint32{1}, Omit: []string{"stsc"}}},
		{"missing stco", testgen.M4BTrack{Titles: []string{"a"}, DurationsMs: []uint32{1}, Omit: []string{"stco"}}},
		{"missing stts", testgen.M4BTrack{Titles: []string{"a"}, DurationsMs: []uint32{1}, Omit: []string{"stts"}}},
		{"invalid utf-8", testgen.M4BTrack{Titles: []string{"ok", "\xc3\x28", "never read"}, DurationsMs: []uint32{1, 2, 3}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			chapters := extract(t, testgen.M4BOptions{Tracks: []testgen.M4BTrack{tc.broken, good}})
			assert.Equal(t, []mp4.Chapter{{Title: "Kept", Start: 0, Duration: 1}}, chapters)
		})
	}
}

func TestExtractChapters_SingleBrokenTrackGivesEmptyList(t *testing.T) {
	t.Parallel()

	chapters := extract(t, testgen.M4BOptions{
		Tracks: []testgen.M4BTrack{{
			Titles:      []string{"Intro", "Chapter 2"},
			DurationsMs: []uint32{2000, 3000, 4000},
		}},
	})

	assert.NotNil(t, chapters)
	assert.Empty(t, chapters)
}

func TestExtractChapters_InvalidUTF8KeepsEarlierTitles(t *testing.T) {
	t.Parallel()

	chapters := extract(t, testgen.M4BOptions{
		Tracks: []testgen.M4BTrack{{
			Titles:      []string{"Readable", "\xff", "Unreachable"},
			ChunkSizes:  []int{2, 1},
			DurationsMs: []uint32{7000},
		}},
	})

	assert.Equal(t, []mp4.Chapter{{Title: "Readable", Start: 0, Duration: 7}}, chapters)
}

func TestExtractChapters_NoMoov(t *testing.T) {
	t.Parallel()

	data := testgen.GenerateM4BBytes(t, testgen.M4BOptions{
		Tracks:   []testgen.M4BTrack{{Titles: []string{"a"}, DurationsMs: []uint32{1}}},
		OmitMoov: true,
	})

	_, err := mp4.ExtractChapters(context.Background(), bytes.NewReader(data))
	var notFound *mp4.AtomNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "moov", notFound.Type)
}

func TestExtractChaptersFromFile(t *testing.T) {
	t.Parallel()

	dir := testgen.TempDir(t, "mp4-chapters-*")
	path := testgen.GenerateM4B(t, dir, "book.m4b", testgen.M4BOptions{
		Tracks: []testgen.M4BTrack{
			{Handler: "soun"},
			{Titles: []string{"One", "Two", "Three"}, ChunkSizes: []int{1, 1, 1}, DurationsMs: []uint32{100, 200, 300}},
		},
	})
	ctx := logger.New().WithContext(context.Background())

	sequential, err := mp4.ExtractChaptersFromFile(ctx, path, 1)
	require.NoError(t, err)
	require.Len(t, sequential, 3)
	assertContinuous(t, sequential)

	concurrent, err := mp4.ExtractChaptersFromFile(ctx, path, 4)
	require.NoError(t, err)
	assert.Equal(t, sequential, concurrent)

	_, err = mp4.ExtractChaptersFromFile(ctx, dir+"/missing.m4b", 1)
	require.Error(t, err)
}
