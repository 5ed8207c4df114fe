package parsers

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/ipguard/internal/firewall/common/log"
	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
)

func patterns(items []iplist.ImportItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Pattern.String())
	}
	return out
}

func TestParsePlainList_Basics(t *testing.T) {
	input := "\uFEFF# office ranges\n" +
		"192.168.1.1   front desk\n" +
		"10.0.0.0/8#inline comment\n" +
		"\n" +
		"\t172.16.*.*\tlab  \n" +
		"2001:db8::/32\n" +
		"# another comment\n" +
		"not-an-ip\n" +
		"10.0.0.0/99\n" +
		"10.1.2.3/8 duplicate after masking\n" +
		"::ffff:192.168.1.1 mapped duplicate\n"

	got, err := ParsePlainList(strings.NewReader(input), log.NewNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"192.168.1.1", "10.0.0.0/8", "172.16.*.*", "2001:db8::/32"}, patterns(got))
	assert.Equal(t, "front desk", got[0].Note)
	assert.Equal(t, "", got[1].Note)
	assert.Equal(t, "lab", got[2].Note)
}

func TestParsePlainList_EmptyAndCommentsOnly(t *testing.T) {
	got, err := ParsePlainList(bytes.NewBufferString("\n# nothing\n   \n"), log.NewNoopLogger())
	require.NoError(t, err)
	assert.Empty(t, got)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestParsePlainList_ReadError(t *testing.T) {
	_, err := ParsePlainList(errReader{}, log.NewNoopLogger())
	assert.EqualError(t, err, "read failed")
}

func TestSplitNote(t *testing.T) {
	tests := []struct {
		in, pattern, note string
	}{
		{"10.0.0.1", "10.0.0.1", ""},
		{"  10.0.0.1  ", "10.0.0.1", ""},
		{"10.0.0.1 office", "10.0.0.1", "office"},
		{"10.0.0.1\tmain  office ", "10.0.0.1", "main  office"},
	}
	for _, tt := range tests {
		p, n := splitNote(tt.in)
		assert.Equal(t, tt.pattern, p, tt.in)
		assert.Equal(t, tt.note, n, tt.in)
	}
}

func TestParseEntryList(t *testing.T) {
	input := `[
		{"pattern": "10.0.0.0/8", "list": "blacklist", "note": "corp", "added_at": "2024-01-01T00:00:00Z"},
		{"pattern": "10.0.0.0/8", "note": "dup"},
		{"pattern": "203.0.113.*"}
	]`
	got, err := ParseEntryList(strings.NewReader(input), log.NewNoopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "203.0.113.*"}, patterns(got))
	assert.Equal(t, "corp", got[0].Note)
	assert.Equal(t, domain.PatternWildcard, got[1].Pattern.Kind())
}

func TestParseEntryList_Errors(t *testing.T) {
	_, err := ParseEntryList(strings.NewReader(`[{"pattern": "1.2.3"}]`), log.NewNoopLogger())
	assert.ErrorIs(t, err, domain.ErrInvalidPattern)

	_, err = ParseEntryList(strings.NewReader(`[{"note": "x"}]`), log.NewNoopLogger())
	assert.ErrorContains(t, err, "missing pattern")

	_, err = ParseEntryList(strings.NewReader(`{`), log.NewNoopLogger())
	assert.Error(t, err)
}
