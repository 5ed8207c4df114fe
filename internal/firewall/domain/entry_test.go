package domain

import (
	"encoding/json"
	"net/netip"
	"testing"
	"time"
)

func TestParseListKind(t *testing.T) {
	cases := []struct {
		in      string
		want    ListKind
		wantErr bool
	}{
		{"whitelist", Whitelist, false},
		{" Allow ", Whitelist, false},
		{"BLACKLIST", Blacklist, false},
		{"deny", Blacklist, false},
		{"", 0, true},
		{"graylist", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseListKind(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseListKind(%q) expected error, got nil", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseListKind(%q) unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseListKind(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestListKind_StringAndIndex(t *testing.T) {
	if Whitelist.String() != "whitelist" || Blacklist.String() != "blacklist" {
		t.Fatalf("unexpected list strings")
	}
	if ListKind(9).String() != "ListKind(9)" || ListKind(9).IsValid() {
		t.Fatalf("unexpected handling of unknown list")
	}
	if Whitelist.Index() != 0 || Blacklist.Index() != 1 {
		t.Fatalf("unexpected indexes")
	}
}

func TestNewEntry_Validation(t *testing.T) {
	now := time.Now()
	p := MustParsePattern("10.0.0.0/8")

	e, err := NewEntry(p, Blacklist, "  scanner  ", " cli ", now)
	if err != nil {
		t.Fatalf("NewEntry unexpected error: %v", err)
	}
	if e.Note != "scanner" || e.Source != "cli" {
		t.Fatalf("expected trimmed metadata, got %+v", e)
	}
	if e.Key() != "blacklist|10.0.0.0/8" {
		t.Fatalf("unexpected key: %s", e.Key())
	}

	if _, err := NewEntry(Pattern{}, Blacklist, "", "", now); err == nil {
		t.Fatalf("expected error for zero pattern")
	}
	if _, err := NewEntry(p, ListKind(0), "", "", now); err == nil {
		t.Fatalf("expected error for invalid list")
	}
	if _, err := NewEntry(p, Whitelist, "", "", time.Time{}); err == nil {
		t.Fatalf("expected error for zero addedAt")
	}
}

func TestEntry_JSON(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e, err := NewEntry(MustParsePattern("192.168.*.*"), Whitelist, "office", "api", now)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Entry
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Pattern != e.Pattern || got.List != e.List || !got.AddedAt.Equal(e.AddedAt) || got.Note != e.Note {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, e)
	}
}

func TestDecision(t *testing.T) {
	d := Decision{Verdict: BlockedByBlacklist, Address: netip.MustParseAddr("1.2.3.4"), MatchedList: Blacklist}
	if !d.IsBlocked() {
		t.Fatalf("expected blocked")
	}
	if (Decision{Verdict: Allowed}).IsBlocked() {
		t.Fatalf("allowed must not be blocked")
	}
	if BlockedByNotWhitelisted.String() != "blocked_by_not_whitelisted" || Verdict(7).String() != "Verdict(7)" {
		t.Fatalf("unexpected verdict strings")
	}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"verdict":"blocked_by_blacklist","address":"1.2.3.4","list":"blacklist"}` {
		t.Fatalf("unexpected json: %s", b)
	}
}

func TestDecision_JSONRoundTrip(t *testing.T) {
	in := Decision{Verdict: BlockedByNotWhitelisted, Address: netip.MustParseAddr("2001:db8::1")}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Decision
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
	var v Verdict
	if err := v.UnmarshalText([]byte("maybe")); err == nil {
		t.Fatalf("expected error for unknown verdict")
	}
}
