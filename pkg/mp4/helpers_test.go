package mp4

import (
	"bytes"
	"encoding/binary"
	"io"
)

func u16(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func u32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// atom builds a compact atom of the given type around content.
func atom(typ string, content ...[]byte) []byte {
	body := bytes.Join(content, nil)
	buf := u32(uint32(headerSize + len(body)))
	buf = append(buf, typ...)
	return append(buf, body...)
}

func textSample(s string) []byte {
	return append(u16(uint16(len(s))), s...)
}

func hdlrAtom(subtype string) []byte {
	return atom("hdlr", u32(0), u32(0), []byte(subtype), make([]byte, 12), []byte{0})
}

func stscAtom(entries ...[2]uint32) []byte {
	content := [][]byte{u32(0), u32(uint32(len(entries)))}
	for _, e := range entries {
		content = append(content, u32(e[0]), u32(e[1]), u32(1))
	}
	return atom("stsc", content...)
}

func stcoAtom(offsets ...uint32) []byte {
	content := [][]byte{u32(0), u32(uint32(len(offsets)))}
	for _, o := range offsets {
		content = append(content, u32(o))
	}
	return atom("stco", content...)
}

func sttsAtom(durations ...uint32) []byte {
	content := [][]byte{u32(0), u32(uint32(len(durations)))}
	for _, d := range durations {
		content = append(content, u32(1), u32(d))
	}
	return atom("stts", content...)
}

func trakAtom(subtype string, stbl ...[]byte) []byte {
	return atom("trak", atom("mdia", hdlrAtom(subtype), atom("minf", atom("stbl", stbl...))))
}

var ftypAtom = atom("ftyp", []byte("M4A "), u32(0), []byte("M4A isom"))

// chapterFile lays out ftyp, an mdat holding samples, and a moov built by
// traks from the absolute offset of the mdat content.
func chapterFile(samples []byte, traks func(mdatContent uint32) [][]byte) []byte {
	mdatContent := uint32(len(ftypAtom) + headerSize)
	return bytes.Join([][]byte{
		ftypAtom,
		atom("mdat", samples),
		atom("moov", traks(mdatContent)...),
	}, nil)
}

// trackingReader records the highest offset read from the wrapped reader.
type trackingReader struct {
	r       *bytes.Reader
	maxRead int64
}

func newTrackingReader(b []byte) *trackingReader {
	return &trackingReader{r: bytes.NewReader(b)}
}

func (tr *trackingReader) Read(p []byte) (int, error) {
	pos, _ := tr.r.Seek(0, io.SeekCurrent)
	n, err := tr.r.Read(p)
	if end := pos + int64(n); end > tr.maxRead {
		tr.maxRead = end
	}
	return n, err
}

func (tr *trackingReader) Seek(offset int64, whence int) (int64, error) {
	return tr.r.Seek(offset, whence)
}

// failingReader fails every read with err.
type failingReader struct {
	err error
}

func (fr failingReader) Read([]byte) (int, error) {
	return 0, fr.err
}

func (fr failingReader) Seek(offset int64, _ int) (int64, error) {
	return offset, nil
}
