package export

import (
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crash-cli/internal/model"
)

// Options selects the output format and crash map metric.
type Options struct {
	Format string // empty means by path extension
	Metric string // MetricSafety (default) or MetricARP
}

func (o Options) format(path string) (string, error) {
	if o.Format != "" {
		return o.Format, nil
	}
	return FormatFor(path)
}

// WriteScores writes ranked scores to path.
func WriteScores(path string, scores []model.SegmentScore, opts Options) error {
	format, err := opts.format(path)
	if err != nil {
		return err
	}

	switch format {
	case FormatCSV:
		err = writeFile(path, func(f *os.File) error { return WriteCSV(f, ScoreSheet(scores)) })
	case FormatXLSX:
		err = WriteXLSX(path, ScoreSheet(scores))
	case FormatGeoJSON:
		fc, ferr := CrashMap(scores, opts.Metric)
		if ferr != nil {
			return ferr
		}
		err = writeFile(path, func(f *os.File) error { return WriteGeoJSON(f, fc) })
	case FormatShapefile:
		_, err = WriteShapefile(path, scores, opts.Metric)
	default:
		return eris.Errorf("export: unsupported format %q", format)
	}
	if err != nil {
		return err
	}

	zap.L().Info("export: wrote scores",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("segments", len(scores)),
	)
	return nil
}

// WriteSheet writes a tabular sheet to a CSV or XLSX path.
func WriteSheet(path string, s *Sheet, opts Options) error {
	format, err := opts.format(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatCSV:
		return writeFile(path, func(f *os.File) error { return WriteCSV(f, s) })
	case FormatXLSX:
		return WriteXLSX(path, s)
	default:
		return eris.Errorf("export: %s output is not tabular", format)
	}
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := write(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}
