package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/woffyai/woffyd/pkg/models"
	"github.com/woffyai/woffyd/pkg/relay"
)

type addModelRequest struct {
	NameToShow  string `json:"nameToShow"`
	APIName     string `json:"apiName"`
	Description string `json:"description"`
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	list, err := s.models.Load()
	if err != nil {
		writeStatus(w, http.StatusInternalServerError, "Failed to load models: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSaveModels(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAdminBodyBytes))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	list, err := models.ParseRecords(raw)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			writeStatus(w, http.StatusBadRequest, verr.Message)
			return
		}
		writeStatus(w, http.StatusInternalServerError, "Failed to save models: "+err.Error())
		return
	}
	s.logger.Info("save models requested", "count", len(list))
	if err := s.models.Save(list); err != nil {
		writeStatus(w, http.StatusInternalServerError, "Failed to save models: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Models saved successfully",
		"count":   len(list),
	})
}

func (s *Server) handleAddModel(w http.ResponseWriter, r *http.Request) {
	var req addModelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body: " + err.Error()})
		return
	}
	d, err := s.models.Add(req.NameToShow, req.APIName, req.Description)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": verr.Message})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Failed to save model data"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Model added successfully",
		"model":   d,
	})
}

const upstreamModelsKey = "upstream"

func (s *Server) handleUpstreamModels(w http.ResponseWriter, r *http.Request) {
	if ids, ok := s.upstreamModels.Fresh(upstreamModelsKey, time.Now()); ok {
		writeJSON(w, http.StatusOK, map[string]any{"models": ids})
		return
	}
	ids, err := s.relay.UpstreamModels(r.Context())
	if err != nil {
		if stale, ok := s.upstreamModels.Stale(upstreamModelsKey); ok && !errors.Is(err, context.Canceled) {
			s.logger.Warn("serving cached upstream models", "err", err)
			writeJSON(w, http.StatusOK, map[string]any{"models": stale})
			return
		}
		var upstreamErr *relay.UpstreamError
		switch {
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, relay.ErrConfiguration):
			writeDetail(w, http.StatusInternalServerError, "Server configuration error: API key not set.")
		case errors.As(err, &upstreamErr):
			writeDetail(w, upstreamErr.HTTPStatus(), upstreamErr.Error())
		default:
			writeDetail(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.upstreamModels.Set(upstreamModelsKey, ids, time.Now())
	writeJSON(w, http.StatusOK, map[string]any{"models": ids})
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
