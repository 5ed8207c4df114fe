package parsers

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/haukened/ipguard/internal/firewall/common/log"
	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
)

// ParsePlainList parses a newline-delimited list of address patterns.
//
// Behavior:
// - One pattern per line, optionally followed by whitespace and a note
// - Supports comments starting with '#' (inline or whole-line)
// - Skips empty lines and a leading BOM
// - Skips invalid patterns instead of failing the whole list
// - De-duplicates by canonical pattern while preserving first-seen order
func ParsePlainList(r io.Reader, logger logpkg.Logger) ([]iplist.ImportItem, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[domain.Pattern]struct{})
	out := make([]iplist.ImportItem, 0, 64)
	logger.Debug(nil, "parse_plain_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimPrefix(scanner.Text(), "\uFEFF")

		s := strings.TrimSpace(stripComment(line))
		if s == "" {
			logger.Debug(map[string]any{"line": lineNum}, "skip_empty")
			continue
		}

		raw, note := splitNote(s)
		p, err := domain.ParsePattern(raw)
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "raw": raw, "error": err}, "skip_invalid_pattern")
			continue
		}
		if _, ok := seen[p]; ok {
			logger.Debug(map[string]any{"line": lineNum, "pattern": p.String()}, "skip_duplicate")
			continue
		}
		seen[p] = struct{}{}
		out = append(out, iplist.ImportItem{Pattern: p, Note: note})
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"error": err}, "parse_plain_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"count": len(out)}, "parse_plain_list_done")
	return out, nil
}
