package adminapi

import (
	"github.com/haukened/ipguard/internal/firewall/domain"
)

// AddRequest is the body of POST /v1/lists/{list}/entries.
type AddRequest struct {
	Pattern string `json:"pattern"`
	Note    string `json:"note,omitempty"`
}

// AddResponse reports the stored entry and whether it was new.
type AddResponse struct {
	Entry   domain.Entry `json:"entry"`
	Created bool         `json:"created"`
}

// RemoveResponse reports whether an entry was removed.
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// ReportResponse lists the entries of one list in store order.
type ReportResponse struct {
	List    domain.ListKind `json:"list"`
	Entries []domain.Entry  `json:"entries"`
}

// Enforcement is the body of GET and PUT /v1/guard/enforcement.
type Enforcement struct {
	EnforceWhitelist bool `json:"enforce_whitelist"`
}

type errorBody struct {
	Error string `json:"error"`
}
