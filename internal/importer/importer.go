// Package importer copies an external parquet table into the data directory
// as a dataset's input table and seeds its meta.json.
package importer

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/kamusis/lscope/internal/dataset"
	"github.com/kamusis/lscope/internal/fsutil"
	"github.com/kamusis/lscope/internal/logging"
	"github.com/kamusis/lscope/internal/table"
)

// ErrConflict is returned when the dataset already holds a different input table.
var ErrConflict = errors.New("dataset already has a different input table")

// Options describes one import.
type Options struct {
	Dataset    string
	Source     string // path of a parquet file
	TextColumn string // optional; must name a column of the source
	Force      bool   // replace a different existing input table
}

// Result is returned by Import.
type Result struct {
	Dataset  string   `json:"dataset"`
	Rows     int      `json:"rows"`
	Columns  []string `json:"columns"`
	Skipped  bool     `json:"skipped"`  // identical input already present
	Replaced bool     `json:"replaced"` // a different input was overwritten
}

// Import validates opts.Source as a parquet table and copies it to
// <data>/<dataset>/input.parquet. An identical existing input is left alone;
// a different one is a conflict unless opts.Force is set. meta.json receives
// the row count, the column names and the text column.
func Import(ctx context.Context, layout dataset.Layout, opts Options, log *zap.Logger) (*Result, error) {
	log = logging.OrNop(log)

	tbl, err := table.ReadParquet(ctx, opts.Source, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", opts.Source, err)
	}
	res := &Result{Dataset: opts.Dataset, Rows: tbl.Len(), Columns: tbl.Columns()}
	if opts.TextColumn != "" {
		if _, err := tbl.Strings(opts.TextColumn); err != nil {
			return nil, err
		}
	}

	if _, err := layout.Create(opts.Dataset); err != nil {
		return nil, err
	}
	dst := layout.InputPath(opts.Dataset)

	// ── MD5 conflict resolution ───────────────────────────────────────────
	if _, err := os.Stat(dst); err == nil {
		srcMD5, err := fileMD5(opts.Source)
		if err != nil {
			return nil, fmt.Errorf("md5 %s: %w", opts.Source, err)
		}
		dstMD5, err := fileMD5(dst)
		if err != nil {
			return nil, fmt.Errorf("md5 %s: %w", dst, err)
		}
		switch {
		case srcMD5 == dstMD5:
			res.Skipped = true
		case !opts.Force:
			return nil, fmt.Errorf("%w: %s (use --force to replace)", ErrConflict, opts.Dataset)
		default:
			res.Replaced = true
		}
	}

	if !res.Skipped {
		if err := copyFile(opts.Source, dst); err != nil {
			return nil, fmt.Errorf("copy %s → %s: %w", opts.Source, dst, err)
		}
	}

	fields := []struct {
		key string
		val any
	}{
		{"length", res.Rows},
		{"columns", res.Columns},
	}
	if opts.TextColumn != "" {
		fields = append(fields, struct {
			key string
			val any
		}{"text_column", opts.TextColumn})
	}
	for _, f := range fields {
		if _, err := layout.UpdateMeta(opts.Dataset, f.key, f.val); err != nil {
			return nil, err
		}
	}

	log.Info("Imported dataset",
		zap.String("dataset", opts.Dataset),
		zap.String("source", opts.Source),
		zap.Int("rows", res.Rows),
		zap.Bool("skipped", res.Skipped),
		zap.Bool("replaced", res.Replaced))
	return res, nil
}

// fileMD5 returns the hex-encoded MD5 digest of the file at path.
func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// copyFile copies src over dst atomically.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	return fsutil.WriteAtomic(dst, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}
