package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/woffyai/woffyd/pkg/relay"
	"github.com/woffyai/woffyd/pkg/sse"
)

const maxChatBodyBytes = 1 << 20

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req relay.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		s.metrics.ObserveChat(req.Mode(), req.Stream, outcomeInvalid)
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if !req.Stream {
		turn, err := s.relay.Complete(r.Context(), req)
		s.metrics.ObserveChat(req.Mode(), false, outcomeFor(err))
		if err != nil {
			s.writeRelayError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, turn)
		return
	}

	sink := sse.NewWriter(w)
	err := s.relay.Stream(r.Context(), req, sink)
	s.metrics.ObserveChat(req.Mode(), true, outcomeFor(err))
	if err != nil && !sink.Opened() {
		s.writeRelayError(w, r, err)
		return
	}
	s.logger.Debug("chat stream finished", "events", sink.Events(), "terminated", sink.Closed(), "err", err)
}

// writeRelayError maps relay failures onto a {"detail": ...} body.
func (s *Server) writeRelayError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *relay.ValidationError
		upstreamErr   *relay.UpstreamError
	)
	switch {
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Client went away; nobody is listening for a response.
		return
	case errors.Is(err, relay.ErrConfiguration):
		writeDetail(w, http.StatusInternalServerError, "Server configuration error: API key not set.")
	case errors.As(err, &validationErr):
		writeDetail(w, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &upstreamErr):
		writeDetail(w, upstreamErr.HTTPStatus(), upstreamErr.Error())
	case errors.Is(err, relay.ErrInvalidUpstreamResponse):
		writeDetail(w, http.StatusInternalServerError, "Invalid response format from AI service")
	default:
		s.logger.Error("chat request failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Internal Server Error: %v", err))
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
