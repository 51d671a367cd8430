package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// handleGetStructure handles GET /api/structures/{id}.
func (s *Server) handleGetStructure(w http.ResponseWriter, r *http.Request) {
	md, err := s.structures.Metadata(r.Context(), r.PathValue("id"))
	if err != nil {
		s.structureError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, md)
}

// handleGetCoordinates handles GET /api/structures/{id}/coordinates.
func (s *Server) handleGetCoordinates(w http.ResponseWriter, r *http.Request) {
	coords, err := s.structures.Coordinates(r.Context(), r.PathValue("id"))
	if err != nil {
		s.structureError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, coords)
}

// BatchRequest is the body of POST /api/structures/batch.
type BatchRequest struct {
	IDs []string `json:"ids"`
}

// handleStructureBatch handles POST /api/structures/batch. Per-id failures are
// reported inside the 200 response.
func (s *Server) handleStructureBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	ids := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		err := &ErrValidation{Field: "ids", Message: "at least one id is required"}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if len(ids) > maxBatchSize {
		err := &ErrValidation{Field: "ids", Message: fmt.Sprintf("at most %d ids per request", maxBatchSize)}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	results, err := s.structures.MetadataBatch(r.Context(), ids)
	if err != nil {
		s.structureError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) structureError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[server] structure lookup failed: %v", err)
	}
	s.errorResponse(w, status, errorMessage(err))
}
