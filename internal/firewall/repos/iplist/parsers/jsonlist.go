package parsers

import (
	"encoding/json"
	"fmt"
	"io"

	logpkg "github.com/haukened/ipguard/internal/firewall/common/log"
	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
)

// ParseEntryList reads a JSON array of entries, as produced by a JSON report,
// so one instance's list can be loaded into another. Only pattern and note
// are kept; list, source and timestamps are reassigned on import. Duplicates
// are dropped. A malformed pattern fails the whole document.
func ParseEntryList(r io.Reader, logger logpkg.Logger) ([]iplist.ImportItem, error) {
	var entries []struct {
		Pattern domain.Pattern `json:"pattern"`
		Note    string         `json:"note"`
	}
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}

	seen := make(map[domain.Pattern]struct{}, len(entries))
	out := make([]iplist.ImportItem, 0, len(entries))
	for i, e := range entries {
		if e.Pattern.IsZero() {
			return nil, fmt.Errorf("entry %d: missing pattern", i)
		}
		if _, ok := seen[e.Pattern]; ok {
			continue
		}
		seen[e.Pattern] = struct{}{}
		out = append(out, iplist.ImportItem{Pattern: e.Pattern, Note: e.Note})
	}
	logger.Debug(map[string]any{"count": len(out)}, "parse_entry_list_done")
	return out, nil
}
