package domain

import (
	"fmt"
	"strings"
	"time"
)

// Entry is one pattern stored on one list.
//
// Notes:
// - Entries are unique per (Pattern, List) and are never edited in place.
// - Source identifies who added the entry (CLI, API, import file).
// - AddedAt records when the entry was first persisted.
type Entry struct {
	Pattern Pattern   `json:"pattern"`
	List    ListKind  `json:"list"`
	AddedAt time.Time `json:"added_at"`
	Note    string    `json:"note,omitempty"`
	Source  string    `json:"source,omitempty"`
}

// NewEntry constructs an Entry and validates its fields.
func NewEntry(p Pattern, list ListKind, note, source string, addedAt time.Time) (Entry, error) {
	e := Entry{
		Pattern: p,
		List:    list,
		AddedAt: addedAt,
		Note:    strings.TrimSpace(note),
		Source:  strings.TrimSpace(source),
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Validate checks the Entry for required fields and supported values.
func (e Entry) Validate() error {
	if e.Pattern.IsZero() {
		return fmt.Errorf("entry pattern must be set")
	}
	if !e.List.IsValid() {
		return fmt.Errorf("unsupported ListKind: %d", e.List)
	}
	if e.AddedAt.IsZero() {
		return fmt.Errorf("entry addedAt must be set")
	}
	return nil
}

// Key returns the identity of the entry, "list|pattern".
// Uses pipe (|) separator to avoid conflicts with colons in IPv6 addresses.
func (e Entry) Key() string {
	return EntryKey(e.Pattern, e.List)
}

// EntryKey builds the identity key for a (pattern, list) pair.
func EntryKey(p Pattern, list ListKind) string {
	return list.String() + "|" + p.String()
}

// MarshalText implements encoding.TextMarshaler.
func (l ListKind) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("unsupported ListKind: %d", l)
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *ListKind) UnmarshalText(text []byte) error {
	parsed, err := ParseListKind(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
