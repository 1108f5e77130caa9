package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rcliao/hybrid-memory/internal/memory"
	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
)

type statsResponse struct {
	*memory.Stats
	Dimension int `json:"dimension"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	e := s.manager.Engine()
	st, err := e.Stats(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	st.Sessions = len(s.manager.Sessions())
	writeJSON(w, http.StatusOK, statsResponse{Stats: st, Dimension: e.Dimension()})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, r, http.StatusBadRequest, "query parameter q is required")
		return
	}
	k, err := intParam(q.Get("k"), 0)
	if err != nil {
		handleError(w, r, err)
		return
	}
	results, err := s.manager.Engine().Search(r.Context(), query, memory.SearchOptions{K: k, SessionID: q.Get("session_id")})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"query": query, "results": results})
}

func (s *Server) listMemories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		handleError(w, r, err)
		return
	}
	list, err := s.manager.Engine().List(r.Context(), store.ListParams{
		SessionID: q.Get("session_id"),
		PersonaID: q.Get("persona_id"),
		Limit:     limit,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"memories": list})
}

type createMemoryRequest struct {
	SessionID        string   `json:"session_id"`
	PersonaID        string   `json:"persona_id"`
	Content          string   `json:"content"`
	CanonicalSummary string   `json:"canonical_summary"`
	PersonaSummary   string   `json:"persona_summary"`
	Importance       *float64 `json:"importance"`
}

func (s *Server) createMemory(w http.ResponseWriter, r *http.Request) {
	var req createMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	m, err := s.manager.Engine().AddLongTerm(r.Context(), memory.NewMemory{
		SessionID:        req.SessionID,
		PersonaID:        req.PersonaID,
		Content:          req.Content,
		CanonicalSummary: req.CanonicalSummary,
		PersonaSummary:   req.PersonaSummary,
		Importance:       req.Importance,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) getMemory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	m, err := s.manager.Engine().Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type updateMemoryRequest struct {
	Content          *string  `json:"content"`
	CanonicalSummary *string  `json:"canonical_summary"`
	PersonaSummary   *string  `json:"persona_summary"`
	Importance       *float64 `json:"importance"`
}

func (s *Server) updateMemory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req updateMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	m, err := s.manager.Engine().Update(r.Context(), id, memory.Update{
		Content:          req.Content,
		CanonicalSummary: req.CanonicalSummary,
		PersonaSummary:   req.PersonaSummary,
		Importance:       req.Importance,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) deleteMemory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := s.manager.Engine().Delete(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.manager.Sessions()})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := s.manager.Conversation(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	turns, _ := s.manager.Buffer(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": conv,
		"buffered":     len(turns),
	})
}

func (s *Server) sessionTurns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns, ok := s.manager.Buffer(id)
	if !ok {
		handleError(w, r, fmt.Errorf("%w: session %s", model.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "turns": turns})
}

type ingestRequest struct {
	PersonaID string `json:"persona_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

func (s *Server) ingestTurn(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	res, err := s.manager.Ingest(r.Context(), memory.TurnInput{
		SessionID: chi.URLParam(r, "id"),
		PersonaID: req.PersonaID,
		Role:      req.Role,
		Content:   req.Content,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) distill(w http.ResponseWriter, r *http.Request) {
	id, err := s.manager.Distill(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"memory_id": id})
}

func (s *Server) sessionContext(w http.ResponseWriter, r *http.Request) {
	sc, err := s.manager.Context(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("q"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.manager.ClearSession(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "archived": n})
}

type reclaimRequest struct {
	OlderThanDays *int  `json:"older_than_days"`
	Limit         int   `json:"limit"`
	DryRun        *bool `json:"dry_run"`
}

// reclaim defaults to a dry run; the caller commits with "dry_run": false.
func (s *Server) reclaim(w http.ResponseWriter, r *http.Request) {
	var req reclaimRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			handleError(w, r, err)
			return
		}
	}

	opts := s.opts.Reclaim
	opts.DryRun = true
	if req.DryRun != nil {
		opts.DryRun = *req.DryRun
	}
	if req.OlderThanDays != nil {
		if *req.OlderThanDays < 0 {
			writeError(w, r, http.StatusBadRequest, "older_than_days must not be negative")
			return
		}
		opts.OlderThan = time.Duration(*req.OlderThanDays) * 24 * time.Hour
	}
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}

	res, err := s.manager.Engine().Reclaim(r.Context(), opts)
	if err != nil {
		// Partial progress is part of the answer.
		writeJSON(w, statusFromError(err), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) rebuild(w http.ResponseWriter, r *http.Request) {
	reembed, _ := strconv.ParseBool(r.URL.Query().Get("reembed"))
	res, err := s.manager.Engine().Rebuild(r.Context(), reembed)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad memory id %q", model.ErrInvalidInput, raw)
	}
	return id, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad integer %q", model.ErrInvalidInput, raw)
	}
	return n, nil
}
