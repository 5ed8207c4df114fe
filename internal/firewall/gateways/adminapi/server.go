// Package adminapi exposes list administration over a JSON HTTP API and
// provides the matching client.
package adminapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/haukened/ipguard/internal/firewall/common/log"
	"github.com/haukened/ipguard/internal/firewall/common/metrics"
	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist/parsers"
)

// maxBodyBytes bounds request bodies, imports included.
const maxBodyBytes = 8 << 20

// errUnknownList is returned for a {list} path segment that names no list.
var errUnknownList = errors.New("unknown list")

type Options struct {
	Lists  Lists
	Guard  Guard
	Logger log.Logger
	// Token, when set, must be presented as "Authorization: Bearer <token>".
	Token string
}

// Server routes admin requests to the repository and guard.
type Server struct {
	lists  Lists
	guard  Guard
	logger log.Logger
	token  string
	router *mux.Router
}

func NewServer(opts Options) *Server {
	s := &Server{lists: opts.Lists, guard: opts.Guard, logger: opts.Logger, token: opts.Token}
	if s.logger == nil {
		s.logger = log.NewNoopLogger()
	}

	r := mux.NewRouter()
	r.Use(s.instrument, s.authenticate)
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/lists/{list}", s.handleReport).Methods(http.MethodGet)
	v1.HandleFunc("/lists/{list}", s.handleClear).Methods(http.MethodDelete)
	v1.HandleFunc("/lists/{list}/entries", s.handleAdd).Methods(http.MethodPost)
	v1.HandleFunc("/lists/{list}/entries", s.handleRemove).Methods(http.MethodDelete)
	v1.HandleFunc("/lists/{list}/import", s.handleImport).Methods(http.MethodPost)
	v1.HandleFunc("/cache/flush", s.handleFlush).Methods(http.MethodPost)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/guard/check", s.handleCheck).Methods(http.MethodGet)
	v1.HandleFunc("/guard/enforcement", s.handleGetEnforcement).Methods(http.MethodGet)
	v1.HandleFunc("/guard/enforcement", s.handleSetEnforcement).Methods(http.MethodPut)
	s.router = r
	return s
}

// Router returns the underlying router so callers can mount extra routes.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.code = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = r.Method + " " + tpl
			}
		}
		metrics.AdminRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func listFrom(r *http.Request) (domain.ListKind, error) {
	l, err := domain.ParseListKind(mux.Vars(r)["list"])
	if err != nil {
		return 0, errUnknownList
	}
	return l, nil
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	list, err := listFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req AddRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "decoding body: " + err.Error()})
		return
	}

	e, created, err := s.lists.Add(r.Context(), req.Pattern, list, req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, AddResponse{Entry: e, Created: created})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	list, err := listFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing pattern query parameter"})
		return
	}
	removed, err := s.lists.Remove(r.Context(), pattern, list)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RemoveResponse{Removed: removed})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	list, err := listFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.lists.Clear(r.Context(), list); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	list, err := listFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.lists.Report(r.Context(), list)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	writeJSON(w, http.StatusOK, ReportResponse{List: list, Entries: entries})
}

// handleImport accepts a plain pattern list, or a JSON entry array when the
// content type is application/json.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	list, err := listFrom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	parse := parsers.ParsePlainList
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		parse = parsers.ParseEntryList
	}
	items, err := parse(body, s.logger)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	res, err := s.lists.Import(r.Context(), list, items)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info(map[string]any{"list": list.String(), "created": res.Created, "existing": res.Existing}, "list imported")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFlush(w http.ResponseWriter, _ *http.Request) {
	s.lists.Flush()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.lists.Stats())
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddr(r.URL.Query().Get("ip"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.guard.Check(r.Context(), addr))
}

func (s *Server) handleGetEnforcement(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Enforcement{EnforceWhitelist: s.guard.WhitelistEnforced()})
}

func (s *Server) handleSetEnforcement(w http.ResponseWriter, r *http.Request) {
	var req Enforcement
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "decoding body: " + err.Error()})
		return
	}
	s.guard.SetWhitelistEnforcement(req.EnforceWhitelist)
	writeJSON(w, http.StatusOK, Enforcement{EnforceWhitelist: s.guard.WhitelistEnforced()})
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidPattern):
		code = http.StatusBadRequest
	case errors.Is(err, errUnknownList):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		code = http.StatusServiceUnavailable
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error(map[string]any{"path": r.URL.Path, "error": err}, "admin request failed")
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
