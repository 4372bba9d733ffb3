package mp4

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	gomp4 "github.com/abema/go-mp4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Chapter is one entry of a QuickTime chapter track. Start and Duration are in
// seconds; Start is the sum of the durations of the chapters before it in the
// same track.
type Chapter struct {
	Title    string  `json:"title"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the time the chapter finishes.
func (ch Chapter) End() float64 {
	return ch.Start + ch.Duration
}

// stscEntry represents a sample-to-chunk entry.
type stscEntry struct {
	firstChunk      uint32
	samplesPerChunk uint32
}

// trackResult is the outcome of one trak. A failed track never carries
// chapters.
type trackResult struct {
	chapters []Chapter
	err      error
}

// ExtractChapters reads the chapters of every text track in an MP4 file, in
// track order. Tracks that aren't chapter tracks or whose tables are broken are
// skipped (and logged through the context's logger). Only a bad file type, a
// missing moov or an I/O failure makes the whole call fail.
func ExtractChapters(ctx context.Context, r io.ReadSeeker) ([]Chapter, error) {
	c, err := NewCursor(r)
	if err != nil {
		return nil, err
	}

	traks, err := locateTracks(c)
	if err != nil {
		return nil, err
	}

	chapters := make([]Chapter, 0)
	for i, trak := range traks {
		chapters, err = appendTrack(ctx, chapters, i, trak, readTrack(c, trak))
		if err != nil {
			return nil, err
		}
	}

	return chapters, nil
}

// locateTracks validates the file type and returns the trak atoms of the first
// moov.
func locateTracks(c *Cursor) ([]Atom, error) {
	if err := CheckFileType(c); err != nil {
		return nil, err
	}

	moov, err := findTopLevel(c, BoxTypeMoov)
	if err != nil {
		return nil, err
	}

	return ChildrenOfType(c, moov, BoxTypeTrak)
}

// appendTrack folds one track's result into the chapter list. Recoverable
// failures turn into an empty contribution; anything else is returned.
func appendTrack(ctx context.Context, chapters []Chapter, index int, trak Atom, res trackResult) ([]Chapter, error) {
	if res.err == nil {
		return append(chapters, res.chapters...), nil
	}
	if !IsRecoverable(res.err) {
		return nil, res.err
	}

	log := logger.FromContext(ctx)
	data := logger.Data{"track_index": index, "track_offset": trak.Offset, "error": res.err.Error()}
	var notText *NotTextTrackError
	if errors.As(res.err, &notText) {
		log.Debug("skipping non-text track", data)
	} else {
		log.Warn("skipping unreadable chapter track", data)
	}
	return chapters, nil
}

func readTrack(c *Cursor, trak Atom) trackResult {
	chapters, err := chaptersFromTrak(c, trak)
	if err != nil {
		return trackResult{err: err}
	}
	return trackResult{chapters: chapters}
}

// chaptersFromTrak follows trak/mdia/hdlr(text)/minf/stbl.
func chaptersFromTrak(c *Cursor, trak Atom) ([]Chapter, error) {
	mdia, err := FirstChildOfType(c, trak, BoxTypeMdia)
	if err != nil {
		return nil, err
	}

	hdlr, err := FirstChildOfType(c, mdia, BoxTypeHdlr)
	if err != nil {
		return nil, err
	}
	subtype, err := readHandlerSubtype(c, hdlr)
	if err != nil {
		return nil, err
	}
	if subtype != HandlerText {
		return nil, errors.WithStack(&NotTextTrackError{Subtype: decodeLatin1(subtype[:])})
	}

	minf, err := FirstChildOfType(c, mdia, BoxTypeMinf)
	if err != nil {
		return nil, err
	}
	stbl, err := FirstChildOfType(c, minf, BoxTypeStbl)
	if err != nil {
		return nil, err
	}

	return chaptersFromStbl(c, stbl)
}

// readHandlerSubtype decodes the hdlr box and returns its handler type.
func readHandlerSubtype(c *Cursor, hdlr Atom) ([4]byte, error) {
	box := &gomp4.Hdlr{}
	if err := unmarshalBox(c, hdlr, box); err != nil {
		return [4]byte{}, err
	}
	return box.HandlerType, nil
}

func chaptersFromStbl(c *Cursor, stbl Atom) ([]Chapter, error) {
	stsc, err := FirstChildOfType(c, stbl, BoxTypeStsc)
	if err != nil {
		return nil, err
	}
	stco, err := FirstChildOfType(c, stbl, BoxTypeStco)
	if err != nil {
		return nil, err
	}
	stts, err := FirstChildOfType(c, stbl, BoxTypeStts)
	if err != nil {
		return nil, err
	}

	samplesPerChunk, err := readSampleToChunk(c, stsc)
	if err != nil {
		return nil, err
	}
	chunkOffsets, err := readChunkOffsets(c, stco)
	if err != nil {
		return nil, err
	}

	titles, err := readTitles(c, samplesPerChunk, chunkOffsets)
	if err != nil {
		return nil, err
	}

	return readDurations(c, stts, titles)
}

// unmarshalBox reads the content of atom and decodes it into box. Content cut
// short by the end of the data, or fields that don't fit the declared size,
// make the box corrupt.
func unmarshalBox(c *Cursor, atom Atom, box gomp4.IBox) error {
	if err := c.Seek(atom.ContentOffset()); err != nil {
		return err
	}
	content, err := c.ReadBytes(int(atom.Size - headerSize))
	if err != nil {
		if isEndOfData(err) {
			return newCorrupt(atom.TypeName() + " box truncated")
		}
		return err
	}
	if _, err := gomp4.Unmarshal(bytes.NewReader(content), uint64(len(content)), box, gomp4.Context{}); err != nil {
		return newCorrupt(fmt.Sprintf("invalid %s box: %v", atom.TypeName(), err))
	}
	return nil
}

// readSampleToChunk decodes the stsc entries.
func readSampleToChunk(c *Cursor, stsc Atom) ([]stscEntry, error) {
	box := &gomp4.Stsc{}
	if err := unmarshalBox(c, stsc, box); err != nil {
		return nil, err
	}

	entries := make([]stscEntry, 0, len(box.Entries))
	for _, entry := range box.Entries {
		entries = append(entries, stscEntry{
			firstChunk:      entry.FirstChunk,
			samplesPerChunk: entry.SamplesPerChunk,
		})
	}
	return entries, nil
}

// readChunkOffsets decodes the absolute chunk offsets from stco, chunk 1 first.
func readChunkOffsets(c *Cursor, stco Atom) ([]uint32, error) {
	box := &gomp4.Stco{}
	if err := unmarshalBox(c, stco, box); err != nil {
		return nil, err
	}
	return box.ChunkOffset, nil
}

// samplesInChunk returns the samples-per-chunk of the last entry that starts
// at or before chunkNum (1-based), or 1 if none does.
func samplesInChunk(entries []stscEntry, chunkNum uint32) uint32 {
	samples := uint32(1)
	for _, entry := range entries {
		if entry.firstChunk > chunkNum {
			break
		}
		samples = entry.samplesPerChunk
	}
	return samples
}

// readTitles reads the text samples of every chunk. Each sample is a 2-byte
// length followed by UTF-8 text; the first sample that isn't valid UTF-8 ends
// the title list for the track.
func readTitles(c *Cursor, entries []stscEntry, chunkOffsets []uint32) ([]string, error) {
	var titles []string
	for idx, offset := range chunkOffsets {
		chunkNum := uint32(idx + 1)
		if err := c.Seek(int64(offset)); err != nil {
			return nil, err
		}

		samples := samplesInChunk(entries, chunkNum)
		for s := uint32(0); s < samples; s++ {
			length, err := c.ReadUint16()
			if err != nil {
				return nil, err
			}
			text, err := c.ReadBytes(int(length))
			if err != nil {
				return nil, err
			}
			if !utf8.Valid(text) {
				return titles, nil
			}
			titles = append(titles, string(text))
		}
	}
	return titles, nil
}

// readDurations pairs the titles with the stts durations. Each entry's sample
// count is ignored and its delta is taken as the duration of one chapter in
// milliseconds, so there must be exactly one entry per title.
func readDurations(c *Cursor, stts Atom, titles []string) ([]Chapter, error) {
	box := &gomp4.Stts{}
	if err := unmarshalBox(c, stts, box); err != nil {
		return nil, err
	}
	if int(box.EntryCount) != len(titles) {
		return nil, newCorrupt("duration/title count mismatch")
	}

	chapters := make([]Chapter, 0, len(titles))
	var start float64
	for i, entry := range box.Entries {
		duration := float64(entry.SampleDelta) / 1000

		chapters = append(chapters, Chapter{
			Title:    titles[i],
			Start:    start,
			Duration: duration,
		})
		start += duration
	}
	return chapters, nil
}
