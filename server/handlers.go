package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/toolmesh/artifact"
	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/runner"
	"github.com/hupe1980/toolmesh/session"
	"github.com/hupe1980/toolmesh/toolset"
)

const defaultConversationLimit = 20

type chatRequest struct {
	Message string `json:"message"`
	// RunID optionally names the run so it can be cancelled while in flight.
	RunID string `json:"run_id,omitempty"`
}

type chatResponse struct {
	Response   string     `json:"response"`
	RunID      string     `json:"run_id"`
	Iterations int        `json:"iterations"`
	Usage      core.Usage `json:"usage"`
	Cost       float64    `json:"cost"`
	Timestamp  time.Time  `json:"timestamp"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Tools     int       `json:"tools"`
	Timestamp time.Time `json:"timestamp"`
}

type toolsResponse struct {
	Count      int                `json:"count"`
	Categories []toolset.Category `json:"categories"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxRequestBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	res, err := s.mesh.RunWithID(ctx, req.RunID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, runner.ErrRunExists):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, context.Canceled) && r.Context().Err() == nil:
			s.opts.Logger.Info("server.chat.cancelled", "run_id", req.RunID)
			writeError(w, http.StatusConflict, "run cancelled")
		default:
			s.opts.Logger.Error("server.chat.failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, err.Error())
		}

		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:   res.Text,
		RunID:      res.RunID,
		Iterations: res.Iterations,
		Usage:      res.Usage,
		Cost:       res.Cost,
		Timestamp:  s.opts.Now().UTC(),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	if err := s.mesh.Cancel(runID); err != nil {
		if errors.Is(err, runner.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "cancelled": true})
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.mesh.Active()})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	cat := s.mesh.Catalog()
	writeJSON(w, http.StatusOK, toolsResponse{Count: cat.Len(), Categories: cat.Categories})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit := defaultConversationLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}

		limit = n
	}

	list, err := s.mesh.Transcripts().List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	t, err := s.mesh.Transcripts().Get(r.Context(), r.PathValue("run_id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	store := s.mesh.Artifacts()
	if store == nil {
		writeError(w, http.StatusNotFound, artifact.ErrNotFound.Error())
		return
	}

	data, err := store.Get(r.PathValue("run_id"), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Tools:     s.mesh.Catalog().Len(),
		Timestamp: s.opts.Now().UTC(),
	})
}
