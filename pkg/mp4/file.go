package mp4

import (
	"context"
	"os"

	"github.com/pkg/errors"
)

// ExtractChaptersFromFile opens path and extracts its chapters. When workers is
// above 1 the tracks are read concurrently.
func ExtractChaptersFromFile(ctx context.Context, path string, workers int) ([]Chapter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	if workers <= 1 {
		return ExtractChapters(ctx, f)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ExtractChaptersConcurrent(ctx, f, info.Size(), workers)
}
