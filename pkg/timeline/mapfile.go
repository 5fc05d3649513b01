package timeline

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/hushcut/hushcut/pkg/vad"
)

// mapHeader is the first row of every silence map file.
const mapHeader = "start_ms\tend_ms\tdur_ms"

// ReadMap parses silence spans from a tab-separated silence map. The header
// row, blank lines, rows with fewer than two columns, non-integer values and
// spans with end < start are skipped individually; one bad row never fails
// the rest of the parse. The result is sorted by start.
func ReadMap(r io.Reader) ([]vad.Span, error) {
	var spans []vad.Span
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(strings.ToLower(line), "start_ms") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}
		end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		if end < start {
			continue
		}
		spans = append(spans, vad.Span{StartMs: start, EndMs: end})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("timeline: read silence map: %w", err)
	}
	slices.SortFunc(spans, func(a, b vad.Span) int { return cmp.Compare(a.StartMs, b.StartMs) })
	return spans, nil
}

// ReadMapFile reads the silence map at path. A missing file is an error;
// malformed rows inside an existing file are not.
func ReadMapFile(path string) ([]vad.Span, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("timeline: open %s: %w", path, err)
	}
	defer f.Close()

	spans, err := ReadMap(f)
	if err != nil {
		return nil, fmt.Errorf("timeline: parse %s: %w", path, err)
	}
	return spans, nil
}

// WriteMap writes spans as a silence map: a header row and one tab-separated
// integer row per span, ending with a trailing newline.
func WriteMap(w io.Writer, spans []vad.Span) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, mapHeader); err != nil {
		return fmt.Errorf("timeline: write header: %w", err)
	}
	for _, s := range spans {
		if _, err := fmt.Fprintf(bw, "%d\t%d\t%d\n", s.StartMs, s.EndMs, s.EndMs-s.StartMs); err != nil {
			return fmt.Errorf("timeline: write span: %w", err)
		}
	}
	return bw.Flush()
}

// WriteMapFile writes the silence map to path, replacing any existing file.
// The file handle is closed on every path; a close error is reported when the
// write itself succeeded.
func WriteMapFile(path string, spans []vad.Span) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("timeline: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("timeline: close %s: %w", path, cerr)
		}
	}()
	return WriteMap(f, spans)
}
