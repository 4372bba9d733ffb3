package chapters

import (
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/mp4chapters/pkg/config"
)

// Write prints results in the given output format.
func Write(w io.Writer, format string, results []*FileChapters) error {
	switch format {
	case config.OutputFormatJSON:
		return writeJSON(w, results)
	case config.OutputFormatText, "":
		return writeText(w, results)
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func writeJSON(w io.Writer, results []*FileChapters) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return errors.WithStack(err)
}

func writeText(w io.Writer, results []*FileChapters) error {
	for _, result := range results {
		var err error
		switch {
		case result.Error != "":
			_, err = fmt.Fprintf(w, "%s: error: %s\n", result.Path, result.Error)
		case len(result.Chapters) == 0:
			_, err = fmt.Fprintf(w, "%s: no chapters\n", result.Path)
		default:
			_, err = fmt.Fprintf(w, "%s: %d chapters\n", result.Path, len(result.Chapters))
		}
		if err != nil {
			return errors.WithStack(err)
		}

		for i, ch := range result.Chapters {
			_, err := fmt.Fprintf(w, "  %d. [%s +%.3fs] %s\n", i+1, FormatTimestamp(ch.Start), ch.Duration, ch.Title)
			if err != nil {
				return errors.WithStack(err)
			}
		}
	}
	return nil
}

// FormatTimestamp renders seconds as HH:MM:SS.mmm.
func FormatTimestamp(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}
