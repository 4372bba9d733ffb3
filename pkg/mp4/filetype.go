package mp4

import (
	"github.com/pkg/errors"
)

// CheckFileType verifies that the resource starts with an ftyp box by reading
// the type code at offset 4. Resources too short to hold it fail the same way.
func CheckFileType(c *Cursor) error {
	if err := c.Seek(4); err != nil {
		return err
	}
	typ, err := c.ReadBytes(4)
	if err != nil {
		if isEndOfData(err) {
			return errors.WithStack(ErrInvalidFileType)
		}
		return err
	}
	if decodeLatin1(typ) != typeName(BoxTypeFtyp) {
		return errors.WithStack(ErrInvalidFileType)
	}
	return nil
}
