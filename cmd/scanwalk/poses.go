package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scanwalk/engine/internal/parser"
	"github.com/scanwalk/engine/internal/util"
)

// readRawRecords tokenizes a pose listing file into raw records. Each
// non-blank, non-comment line is "id|label|m00 m01 ... m33" with a
// sixteen-number row-major transform. Field values may be quoted.
func readRawRecords(path string) ([]parser.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open poses file: %w", err)
	}
	defer f.Close()

	var raw []parser.RawRecord
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%s:%d: want id|label|transform, got %d fields",
				path, lineNo, len(parts))
		}

		raw = append(raw, parser.RawRecord{
			ID:        util.TrimQuotes(strings.TrimSpace(parts[0])),
			Label:     util.FixEscapeQuotes(util.TrimQuotes(strings.TrimSpace(parts[1]))),
			Transform: strings.TrimSpace(parts[2]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read poses file: %w", err)
	}
	return raw, nil
}

// tourNameFromPath derives a default tour name from the poses file name.
func tourNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
