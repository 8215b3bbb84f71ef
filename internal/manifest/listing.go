package manifest

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/objsync/objtypes"
)

// maxLineSize bounds a single listing line.
const maxLineSize = 1024 * 1024

// ParseListing reads listing records from r.
//
// Blank lines are ignored. Lines with fewer than three fields or with a
// size that is not a non-negative integer are skipped with a warning. The
// last two fields are the fingerprint and size, so paths may contain spaces.
func ParseListing(r io.Reader, logger *slog.Logger) ([]Record, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			logger.Warn("skipping malformed listing line", "line", lineNo, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}

	return records, nil
}

func parseLine(line string) (Record, error) {
	sizeStart := strings.LastIndexAny(line, " \t")
	if sizeStart < 0 {
		return Record{}, fmt.Errorf("expected 3 fields, got 1")
	}
	sizeField := line[sizeStart+1:]
	rest := strings.TrimRight(line[:sizeStart], " \t")

	fpStart := strings.LastIndexAny(rest, " \t")
	if fpStart < 0 {
		return Record{}, fmt.Errorf("expected 3 fields, got 2")
	}
	fingerprint := rest[fpStart+1:]
	path := strings.TrimRight(rest[:fpStart], " \t")
	if path == "" {
		return Record{}, fmt.Errorf("expected 3 fields, got 2")
	}

	size, err := strconv.ParseInt(sizeField, 10, 64)
	if err != nil || size < 0 {
		return Record{}, fmt.Errorf("invalid size %q", sizeField)
	}

	return Record{Path: path, Fingerprint: fingerprint, Size: size}, nil
}

// FormatListing writes records to w, one per line, in the given order.
func FormatListing(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := fmt.Fprintf(bw, "%s %s %d\n", r.Path, r.Fingerprint, r.Size); err != nil {
			return fmt.Errorf("write listing: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write listing: %w", err)
	}
	return nil
}

// ParseVersion parses version file content. Anything other than a single
// non-negative integer is Unknown.
func ParseVersion(data []byte) objtypes.Version {
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || n < 0 {
		return objtypes.Unknown()
	}
	return objtypes.Known(n)
}

// FormatVersion returns version file content for n.
func FormatVersion(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10) + "\n")
}
