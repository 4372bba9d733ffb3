package mp4

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ExtractChaptersConcurrent is ExtractChapters over an io.ReaderAt, reading up
// to workers tracks at once. Every track gets its own Cursor, and the result is
// in the same track order as the sequential version.
func ExtractChaptersConcurrent(ctx context.Context, r io.ReaderAt, size int64, workers int) ([]Chapter, error) {
	c, err := NewCursor(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, err
	}

	traks, err := locateTracks(c)
	if err != nil {
		return nil, err
	}

	if workers <= 0 {
		workers = 1
	}

	results := make([]trackResult, len(traks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, trak := range traks {
		g.Go(func() error {
			// A fatal error on another track makes the rest pointless.
			if err := gctx.Err(); err != nil {
				return errors.WithStack(err)
			}
			tc, err := NewCursor(io.NewSectionReader(r, 0, size))
			if err != nil {
				return err
			}
			results[i] = readTrack(tc, trak)
			if results[i].err != nil && !IsRecoverable(results[i].err) {
				return results[i].err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	chapters := make([]Chapter, 0)
	for i, trak := range traks {
		chapters, err = appendTrack(ctx, chapters, i, trak, results[i])
		if err != nil {
			return nil, err
		}
	}

	return chapters, nil
}
