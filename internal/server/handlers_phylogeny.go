package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/jonathan/bioview/internal/phylogeny"
	"github.com/jonathan/bioview/internal/server/middleware"
)

// maxSubmitBody bounds the submission body: 100 sequences of 20k residues plus headroom.
const maxSubmitBody = 8 << 20

// handleSubmitPhylogeny handles POST /api/phylogeny.
func (s *Server) handleSubmitPhylogeny(w http.ResponseWriter, r *http.Request) {
	var req phylogeny.SubmitRequest
	body := http.MaxBytesReader(w, r.Body, maxSubmitBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorResponse(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	env, err := s.phylogeny.Submit(r.Context(), req)
	if err != nil {
		status := HTTPStatus(err)
		// This endpoint only distinguishes input errors from everything else.
		if status != http.StatusBadRequest {
			log.Printf("[server] phylogeny submission failed: %v", err)
			status = http.StatusInternalServerError
		}
		s.errorResponse(w, status, errorMessage(err))
		return
	}

	log.Printf("[server] %s submitted %s job %s", clientName(r), env.Service, env.ExternalID)
	s.jsonResponse(w, http.StatusAccepted, env)
}

// clientName is the token subject when authentication is on, else the remote address.
func clientName(r *http.Request) string {
	if subject, err := middleware.GetSubject(r); err == nil {
		return subject
	}
	return r.RemoteAddr
}

// handlePollPhylogeny handles GET /api/phylogeny?jobId= and GET /api/phylogeny/{jobId}.
// Remote failures come back as FAILURE envelopes with 200.
func (s *Server) handlePollPhylogeny(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDFrom(r)

	env, err := s.phylogeny.Poll(r.Context(), jobID)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), errorMessage(err))
		return
	}

	s.jsonResponse(w, http.StatusOK, env)
}

func jobIDFrom(r *http.Request) string {
	if id := r.PathValue("jobId"); id != "" {
		return strings.TrimSpace(id)
	}
	return strings.TrimSpace(r.URL.Query().Get("jobId"))
}
