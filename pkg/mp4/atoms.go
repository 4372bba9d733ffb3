package mp4

import (
	gomp4 "github.com/abema/go-mp4"
	"golang.org/x/text/encoding/charmap"
)

// headerSize is the length of a compact atom header: a 4-byte size followed by
// a 4-byte type code.
const headerSize = 8

// Unbounded can be passed to SiblingAtoms to scan until the data runs out.
const Unbounded int64 = -1

// Box types for navigation.
var (
	BoxTypeFtyp = gomp4.BoxTypeFtyp() // ftyp - File type
	BoxTypeMoov = gomp4.BoxTypeMoov() // moov - Movie box
	BoxTypeTrak = gomp4.BoxTypeTrak() // trak - Track box
	BoxTypeMdia = gomp4.BoxTypeMdia() // mdia - Media box
	BoxTypeHdlr = gomp4.BoxTypeHdlr() // hdlr - Handler box
	BoxTypeMinf = gomp4.BoxTypeMinf() // minf - Media information
	BoxTypeStbl = gomp4.BoxTypeStbl() // stbl - Sample table
	BoxTypeStsc = gomp4.BoxTypeStsc() // stsc - Sample-to-chunk
	BoxTypeStco = gomp4.BoxTypeStco() // stco - Chunk offsets (32-bit)
	BoxTypeStts = gomp4.BoxTypeStts() // stts - Time-to-sample
	BoxTypeUdta = gomp4.BoxTypeUdta() // udta - User data box
	BoxTypeEdts = gomp4.BoxTypeEdts() // edts - Edit box
	BoxTypeDinf = gomp4.BoxTypeDinf() // dinf - Data information
)

// HandlerText is the hdlr subtype of timed-text tracks, which is where
// QuickTime-style chapter titles are stored.
var HandlerText = [4]byte{'t', 'e', 'x', 't'}

// Atom is the header of one atom (box). Its content occupies
// [Offset+8, Offset+Size).
type Atom struct {
	Offset int64
	Size   int64
	Type   gomp4.BoxType
}

// ContentOffset returns the position of the first byte after the header.
func (a Atom) ContentOffset() int64 {
	return a.Offset + headerSize
}

// End returns the position just past the atom.
func (a Atom) End() int64 {
	return a.Offset + a.Size
}

// TypeName returns the type code as text. Type codes aren't UTF-8 (iTunes
// atoms use 0xA9 for ©), so they're decoded as Latin-1.
func (a Atom) TypeName() string {
	return typeName(a.Type)
}

func typeName(t gomp4.BoxType) string {
	return decodeLatin1(t[:])
}

func decodeLatin1(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// IsContainer reports whether atoms of type t hold nothing but child atoms.
func IsContainer(t gomp4.BoxType) bool {
	switch t {
	case BoxTypeMoov, BoxTypeTrak, BoxTypeMdia, BoxTypeMinf, BoxTypeStbl, BoxTypeUdta, BoxTypeEdts, BoxTypeDinf:
		return true
	default:
		return false
	}
}

// ParseAtom reads the atom header at the cursor and leaves the cursor at the
// start of the atom's content. ok is false when there are no more atoms: the
// declared size is 0, the data ends inside the header, or the size is too
// small to cover its own header (which includes the 64-bit size marker 1,
// which isn't supported).
func ParseAtom(c *Cursor) (atom Atom, ok bool, err error) {
	offset := c.Offset()

	size, err := c.ReadUint32()
	if err != nil {
		if isEndOfData(err) {
			return Atom{}, false, nil
		}
		return Atom{}, false, err
	}
	if size == 0 {
		return Atom{}, false, nil
	}

	typ, err := c.ReadBytes(4)
	if err != nil {
		if isEndOfData(err) {
			return Atom{}, false, nil
		}
		return Atom{}, false, err
	}

	if size < headerSize {
		return Atom{}, false, nil
	}

	return Atom{
		Offset: offset,
		Size:   int64(size),
		Type:   gomp4.BoxType{typ[0], typ[1], typ[2], typ[3]},
	}, true, nil
}

// SiblingAtoms parses consecutive atoms starting at the cursor. With a bound
// (anything but Unbounded), no header is read at or past end, an atom that
// claims to extend past end stops the scan without being returned, and an atom
// ending exactly at end is the last one returned.
func SiblingAtoms(c *Cursor, end int64) ([]Atom, error) {
	bounded := end != Unbounded

	var atoms []Atom
	for {
		if bounded && c.Offset()+headerSize > end {
			break
		}

		atom, ok, err := ParseAtom(c)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if bounded && atom.End() > end {
			break
		}

		atoms = append(atoms, atom)

		if bounded && atom.End() >= end {
			break
		}
		if err := c.Seek(atom.End()); err != nil {
			return nil, err
		}
	}

	return atoms, nil
}

// ChildrenOf returns the atoms inside atom's content. The container is rescanned
// on every call.
func ChildrenOf(c *Cursor, atom Atom) ([]Atom, error) {
	if err := c.Seek(atom.ContentOffset()); err != nil {
		return nil, err
	}
	return SiblingAtoms(c, atom.End())
}

// ChildrenOfType returns the children of atom whose type is exactly t.
func ChildrenOfType(c *Cursor, atom Atom, t gomp4.BoxType) ([]Atom, error) {
	children, err := ChildrenOf(c, atom)
	if err != nil {
		return nil, err
	}

	matches := make([]Atom, 0, len(children))
	for _, child := range children {
		if child.Type == t {
			matches = append(matches, child)
		}
	}
	return matches, nil
}

// FirstChildOfType returns the first child of atom of type t, or an
// *AtomNotFoundError naming t.
func FirstChildOfType(c *Cursor, atom Atom, t gomp4.BoxType) (Atom, error) {
	matches, err := ChildrenOfType(c, atom, t)
	if err != nil {
		return Atom{}, err
	}
	if len(matches) == 0 {
		return Atom{}, newAtomNotFound(typeName(t))
	}
	return matches[0], nil
}

// findTopLevel scans the unbounded top level from offset 0 for the first atom
// of type t.
func findTopLevel(c *Cursor, t gomp4.BoxType) (Atom, error) {
	if err := c.Seek(0); err != nil {
		return Atom{}, err
	}
	atoms, err := SiblingAtoms(c, Unbounded)
	if err != nil {
		return Atom{}, err
	}
	for _, atom := range atoms {
		if atom.Type == t {
			return atom, nil
		}
	}
	return Atom{}, newAtomNotFound(typeName(t))
}
