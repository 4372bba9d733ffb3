package chapters

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/mp4chapters/pkg/config"
	"github.com/shishobooks/mp4chapters/pkg/mp4"
)

// extensionsToScan maps the file extensions picked up by Scan to the mime
// types their content has to match.
var extensionsToScan = map[string]map[string]struct{}{
	".m4b": {"audio/mp4": {}, "audio/x-m4a": {}, "video/mp4": {}},
	".m4a": {"audio/mp4": {}, "audio/x-m4a": {}, "video/mp4": {}},
	".mp4": {"audio/mp4": {}, "audio/x-m4a": {}, "video/mp4": {}, "video/x-m4v": {}},
	".m4v": {"video/mp4": {}, "video/x-m4v": {}},
	".mov": {"video/quicktime": {}},
}

// FileChapters holds the chapters found in one file. Error is set instead when
// the file couldn't be read.
type FileChapters struct {
	Path     string        `json:"path"`
	Chapters []mp4.Chapter `json:"chapters"`
	Error    string        `json:"error,omitempty"`
}

type Service struct {
	config *config.Config
}

func NewService(cfg *config.Config) *Service {
	return &Service{config: cfg}
}

// ExtractFile reads the chapters of a single file.
func (svc *Service) ExtractFile(ctx context.Context, path string) (*FileChapters, error) {
	chapters, err := mp4.ExtractChaptersFromFile(ctx, path, svc.config.TrackWorkers)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to extract chapters from %s", path)
	}
	return &FileChapters{Path: path, Chapters: chapters}, nil
}

// FindFiles walks root and returns the MP4-family files under it, sorted by
// path. Files whose content doesn't match their extension are skipped.
func (svc *Service) FindFiles(ctx context.Context, root string) ([]string, error) {
	log := logger.FromContext(ctx)

	var paths []string
	err := filepath.WalkDir(root, func(path string, info fs.DirEntry, err error) error {
		if err != nil {
			return errors.WithStack(err)
		}
		if info.IsDir() {
			return nil
		}
		expectedMimeTypes, ok := extensionsToScan[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		mtype, err := mimetype.DetectFile(path)
		if err != nil {
			log.Warn("can't detect the mime type of a file with a valid extension", logger.Data{"path": path, "err": err.Error()})
			return nil
		}
		if !matchesMimeType(mtype, expectedMimeTypes) {
			log.Warn("mime type is not expected for extension", logger.Data{"path": path, "mimetype": mtype.String()})
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sort.Strings(paths)
	return paths, nil
}

// matchesMimeType checks the detected type and its ancestors, so aliases like
// audio/x-m4a under a more specific type still count.
func matchesMimeType(mtype *mimetype.MIME, expected map[string]struct{}) bool {
	for mt := mtype; mt != nil; mt = mt.Parent() {
		if _, ok := expected[mt.String()]; ok {
			return true
		}
	}
	return false
}

// Scan extracts the chapters of every MP4-family file under root. A file that
// fails is reported with its error and doesn't stop the scan; a cancelled
// context does.
func (svc *Service) Scan(ctx context.Context, root string) ([]*FileChapters, error) {
	log := logger.FromContext(ctx)

	paths, err := svc.FindFiles(ctx, root)
	if err != nil {
		return nil, err
	}
	log.Debug("scanning files", logger.Data{"root": root, "count": len(paths)})

	results := make([]*FileChapters, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		result, err := svc.ExtractFile(ctx, path)
		if err != nil {
			log.Warn("skipping file", logger.Data{"path": path, "error": err.Error()})
			results = append(results, &FileChapters{Path: path, Chapters: []mp4.Chapter{}, Error: err.Error()})
			continue
		}
		results = append(results, result)
	}

	return results, nil
}
