package testgen

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	gomp4 "github.com/abema/go-mp4"
)

// M4BTrack configures one trak of a generated M4B file.
type M4BTrack struct {
	// Handler is the hdlr subtype, defaults to "text".
	Handler string
	// Titles are written as text samples (2-byte length + bytes) in mdat. They
	// aren't validated, so invalid UTF-8 can be used to test decoding failures.
	Titles []string
	// ChunkSizes splits the samples into chunks of the given sizes. Defaults to
	// every title in a single chunk.
	ChunkSizes []int
	// DurationsMs are written to stts as one entry per value.
	DurationsMs []uint32
	// Omit lists box types that are left out of this track (along with all of
	// their children), e.g. "stts" or "minf".
	Omit []string
}

// M4BOptions configures the generated M4B file.
type M4BOptions struct {
	Tracks []M4BTrack
	// OmitMoov leaves the moov box out entirely.
	OmitMoov bool
}

// GenerateM4B creates a synthetic M4B file at dir/filename with a QuickTime
// chapter track layout: ftyp, then mdat holding the text samples, then moov
// with one trak per configured track. Boxes are written with go-mp4, so the
// structure matches what real muxers produce, minus everything chapter
// extraction doesn't look at.
func GenerateM4B(t *testing.T, dir, filename string, opts M4BOptions) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create M4B file: %v", err)
	}
	defer f.Close()

	g := &m4bGenerator{t: t, w: gomp4.NewWriter(f)}
	g.writeFtyp()
	chunkOffsets := g.writeMdat(opts.Tracks)
	if !opts.OmitMoov {
		g.writeMoov(opts.Tracks, chunkOffsets)
	}

	return path
}

// GenerateM4BBytes is GenerateM4B returning the file content instead of the
// path.
func GenerateM4BBytes(t *testing.T, opts M4BOptions) []byte {
	t.Helper()
	dir := TempDir(t, "testgen-m4b-*")
	return ReadFile(t, GenerateM4B(t, dir, "generated.m4b", opts))
}

type m4bGenerator struct {
	t *testing.T
	w *gomp4.Writer
}

func (g *m4bGenerator) startBox(boxType gomp4.BoxType) {
	g.t.Helper()
	if _, err := g.w.StartBox(&gomp4.BoxInfo{Type: boxType}); err != nil {
		g.t.Fatalf("failed to start %s box: %v", boxType, err)
	}
}

func (g *m4bGenerator) endBox() {
	g.t.Helper()
	if _, err := g.w.EndBox(); err != nil {
		g.t.Fatalf("failed to end box: %v", err)
	}
}

// writeBox writes a leaf box with the given payload.
func (g *m4bGenerator) writeBox(box gomp4.IImmutableBox) {
	g.t.Helper()
	g.startBox(box.GetType())
	if _, err := gomp4.Marshal(g.w, box, gomp4.Context{}); err != nil {
		g.t.Fatalf("failed to marshal %s box: %v", box.GetType(), err)
	}
	g.endBox()
}

func (g *m4bGenerator) offset() uint32 {
	g.t.Helper()
	off, err := g.w.Seek(0, io.SeekCurrent)
	if err != nil {
		g.t.Fatalf("failed to get offset: %v", err)
	}
	return uint32(off) //nolint:gosec
}

func (g *m4bGenerator) writeFtyp() {
	g.t.Helper()
	g.writeBox(&gomp4.Ftyp{
		MajorBrand:   [4]byte{'M', '4', 'B', ' '},
		MinorVersion: 0,
		CompatibleBrands: []gomp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'M', '4', 'B', ' '}},
			{CompatibleBrand: [4]byte{'M', '4', 'A', ' '}},
			{CompatibleBrand: [4]byte{'m', 'p', '4', '2'}},
			{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
		},
	})
}

// writeMdat writes every track's text samples and returns the chunk offsets of
// each track.
func (g *m4bGenerator) writeMdat(tracks []M4BTrack) [][]uint32 {
	g.t.Helper()
	g.startBox(gomp4.BoxTypeMdat())

	offsets := make([][]uint32, len(tracks))
	for i, track := range tracks {
		sample := 0
		for _, size := range chunkSizes(track) {
			offsets[i] = append(offsets[i], g.offset())
			for s := 0; s < size && sample < len(track.Titles); s++ {
				g.writeTextSample(track.Titles[sample])
				sample++
			}
		}
	}

	g.endBox()
	return offsets
}

func (g *m4bGenerator) writeTextSample(title string) {
	g.t.Helper()
	buf := make([]byte, 2+len(title))
	binary.BigEndian.PutUint16(buf, uint16(len(title))) //nolint:gosec
	copy(buf[2:], title)
	if _, err := g.w.Write(buf); err != nil {
		g.t.Fatalf("failed to write text sample: %v", err)
	}
}

func (g *m4bGenerator) writeMoov(tracks []M4BTrack, chunkOffsets [][]uint32) {
	g.t.Helper()
	g.startBox(gomp4.BoxTypeMoov())
	for i, track := range tracks {
		g.writeTrak(track, chunkOffsets[i])
	}
	g.endBox()
}

func (g *m4bGenerator) writeTrak(track M4BTrack, chunkOffsets []uint32) {
	g.t.Helper()
	omitted := make(map[string]bool, len(track.Omit))
	for _, name := range track.Omit {
		omitted[name] = true
	}
	keep := func(boxType gomp4.BoxType) bool {
		return !omitted[boxType.String()]
	}

	g.startBox(gomp4.BoxTypeTrak())
	if keep(gomp4.BoxTypeMdia()) {
		g.startBox(gomp4.BoxTypeMdia())
		if keep(gomp4.BoxTypeHdlr()) {
			g.writeBox(&gomp4.Hdlr{
				HandlerType: handlerType(track.Handler),
				Name:        "Chapters",
			})
		}
		if keep(gomp4.BoxTypeMinf()) {
			g.startBox(gomp4.BoxTypeMinf())
			if keep(gomp4.BoxTypeStbl()) {
				g.startBox(gomp4.BoxTypeStbl())
				if keep(gomp4.BoxTypeStts()) {
					g.writeBox(sttsBox(track.DurationsMs))
				}
				if keep(gomp4.BoxTypeStsc()) {
					g.writeBox(stscBox(chunkSizes(track)))
				}
				if keep(gomp4.BoxTypeStco()) {
					g.writeBox(&gomp4.Stco{
						EntryCount:  uint32(len(chunkOffsets)), //nolint:gosec
						ChunkOffset: chunkOffsets,
					})
				}
				g.endBox()
			}
			g.endBox()
		}
		g.endBox()
	}
	g.endBox()
}

func handlerType(handler string) [4]byte {
	if handler == "" {
		handler = "text"
	}
	var ht [4]byte
	copy(ht[:], handler)
	return ht
}

func chunkSizes(track M4BTrack) []int {
	if len(track.ChunkSizes) > 0 {
		return track.ChunkSizes
	}
	return []int{len(track.Titles)}
}

// stscBox builds a sample-to-chunk table with a new entry wherever the chunk
// size changes.
func stscBox(sizes []int) *gomp4.Stsc {
	stsc := &gomp4.Stsc{}
	for i, size := range sizes {
		if n := len(stsc.Entries); n > 0 && stsc.Entries[n-1].SamplesPerChunk == uint32(size) { //nolint:gosec
			continue
		}
		stsc.Entries = append(stsc.Entries, gomp4.StscEntry{
			FirstChunk:             uint32(i + 1),
			SamplesPerChunk:        uint32(size),
			SampleDescriptionIndex: 1,
		})
	}
	stsc.EntryCount = uint32(len(stsc.Entries)) //nolint:gosec
	return stsc
}

func sttsBox(durations []uint32) *gomp4.Stts {
	stts := &gomp4.Stts{EntryCount: uint32(len(durations))} //nolint:gosec
	for _, d := range durations {
		stts.Entries = append(stts.Entries, gomp4.SttsEntry{SampleCount: 1, SampleDelta: d})
	}
	return stts
}
