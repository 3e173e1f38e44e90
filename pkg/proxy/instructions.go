package proxy

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/woffyai/woffyd/pkg/instructions"
)

const maxAdminBodyBytes = 1 << 20

type setInstructionRequest struct {
	Instruction *string `json:"instruction"`
	Mode        string  `json:"mode"`
}

func (s *Server) handleGetInstructions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.instructions.All())
}

func (s *Server) handleSetInstruction(w http.ResponseWriter, r *http.Request) {
	var req setInstructionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBodyBytes)).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Instruction == nil {
		writeDetail(w, http.StatusBadRequest, "instruction is required")
		return
	}
	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = instructions.ModeWoffy
	}
	if err := s.instructions.Set(mode, *req.Instruction); err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to save instruction")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Instruction saved for " + mode,
	})
}
