package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
	"github.com/cadre-oss/agentmem/internal/index"
	"github.com/cadre-oss/agentmem/internal/memory"
)

// --- Helpers ---

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]string{"error": msg})
}

// writeError maps a store error to its HTTP status and a coded body.
func writeError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error()}
	if code := memerrors.AsCode(err); code != "" {
		body["code"] = code
	}
	if sug := memerrors.Suggestion(err); sug != "" {
		body["suggestion"] = sug
	}
	jsonResponse(w, statusFor(err), body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, memerrors.ErrValidation), errors.Is(err, memerrors.ErrInvalidRef):
		return http.StatusBadRequest
	case errors.Is(err, memerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, memerrors.ErrCapacityExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// refFromRequest reads {scope} from the path and ?agent= from the query.
func refFromRequest(r *http.Request) (memory.Ref, error) {
	scope, err := memory.ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		return memory.Ref{}, err
	}
	return memory.Ref{Scope: scope, AgentID: r.URL.Query().Get("agent")}.Normalize()
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return def
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.opts.Version,
		"name":    s.opts.Name,
		"index":   s.opts.Index != nil,
	})
}

// --- Memories ---

type refSummary struct {
	memory.Ref
	Entries int               `json:"entries"`
	Size    int               `json:"size"`
	Status  memory.SizeStatus `json:"status"`
}

func (s *Server) handleListRefs(w http.ResponseWriter, r *http.Request) {
	refs, err := s.opts.Store.Refs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]refSummary, 0, len(refs))
	for _, ref := range refs {
		l, err := s.opts.Store.List(r.Context(), ref)
		if err != nil {
			s.logger.Warn("Skipping unreadable memory file", "ref", ref.String(), "error", err)
			continue
		}
		out = append(out, refSummary{
			Ref:     ref,
			Entries: len(l.Entries),
			Size:    l.Size,
			Status:  s.opts.Store.Limits().Status(l.Size),
		})
	}
	jsonResponse(w, http.StatusOK, out)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var opts []memory.ListOption
	if r.URL.Query().Get("strict") == "true" {
		opts = append(opts, memory.RequireExisting())
	}
	l, err := s.opts.Store.List(r.Context(), ref, opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Entry string `json:"entry"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.opts.Store.Update(r.Context(), ref, body.Entry); err != nil {
		writeError(w, err)
		return
	}
	s.respondUsage(w, r, ref, http.StatusCreated)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.opts.Store.Clear(r.Context(), ref); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Pattern  string   `json:"pattern"`
		Contains string   `json:"contains"`
		Exact    []string `json:"exact"`
	}
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var preds []memory.Predicate
	if body.Pattern != "" {
		p, err := memory.MatchGlob(body.Pattern)
		if err != nil {
			writeError(w, err)
			return
		}
		preds = append(preds, p)
	}
	if body.Contains != "" {
		preds = append(preds, memory.Contains(body.Contains))
	}
	if len(body.Exact) > 0 {
		preds = append(preds, memory.Exact(body.Exact...))
	}
	if len(preds) == 0 {
		jsonError(w, http.StatusBadRequest, "one of pattern, contains or exact is required")
		return
	}

	removed, err := s.opts.Store.Prune(r.Context(), ref, memory.Any(preds...))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"ref": ref, "removed": removed})
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Strategy string `json:"strategy"`
		Keep     int    `json:"keep"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	var merge memory.MergeFunc
	if body.Strategy == "command" {
		if s.opts.Merger == nil {
			jsonError(w, http.StatusBadRequest, "no consolidation command configured")
			return
		}
		merge = s.opts.Merger.Merge
	} else if merge, err = memory.ParseStrategy(body.Strategy, body.Keep); err != nil {
		writeError(w, err)
		return
	}

	if err := s.opts.Store.Consolidate(r.Context(), ref, merge); err != nil {
		writeError(w, err)
		return
	}
	l, err := s.opts.Store.List(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.respondUsage(w, r, ref, http.StatusOK)
}

func (s *Server) respondUsage(w http.ResponseWriter, r *http.Request, ref memory.Ref, status int) {
	u, err := s.opts.Store.SizeStatus(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, status, u)
}

// --- Context ---

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	c, err := s.opts.Loader.Assemble(r.Context(), chi.URLParam(r, "agent"))
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("X-Context-Truncated", strconv.FormatBool(c.Truncated))
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, c.Text)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// --- Index ---

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.opts.Index == nil {
		jsonError(w, http.StatusServiceUnavailable, "search index is disabled")
		return
	}
	q := r.URL.Query()
	filter := index.Filter{AgentID: q.Get("agent"), Limit: queryInt(r, "limit", 100)}
	if sc := q.Get("scope"); sc != "" {
		scope, err := memory.ParseScope(sc)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Scope = scope
	}
	hits, err := s.opts.Index.Search(r.Context(), q.Get("q"), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, hits)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.Index == nil {
		jsonError(w, http.StatusServiceUnavailable, "search index is disabled")
		return
	}
	ref, err := refFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ops, err := s.opts.Index.History(r.Context(), ref, queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, ops)
}

// --- Metrics ---

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, s.opts.Metrics.GetSummary())
}

// --- SSE events ---

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	client := s.broker.Subscribe(r.Context(), clientID, r.URL.Query().Get("agent"))

	// Send initial connected event.
	data, _ := json.Marshal(map[string]string{"type": "connected", "client_id": clientID})
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()

	for ev := range client.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}
