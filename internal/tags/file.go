package tags

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kamusis/lscope/internal/fsutil"
)

// FileExt is the extension of durable tag records.
const FileExt = ".indices"

// readRecord parses a tag record: one non-negative integer per line. Blank
// lines are ignored, so an empty file is the empty set and a file holding one
// integer is a one-element set.
func readRecord(path string) ([]int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []int
	sc := bufio.NewScanner(bytes.NewReader(b))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil || v < 0 || v > maxIndex {
			return nil, fmt.Errorf("%w: %s line %d: %q", ErrMalformedTagFile, path, line, text)
		}
		out = append(out, int(v))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedTagFile, path, err)
	}
	return out, nil
}

// writeRecord replaces the record at path with indices, one per line.
func writeRecord(path string, indices []int) error {
	err := fsutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		for _, i := range indices {
			if _, err := io.WriteString(w, strconv.Itoa(i)+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}
