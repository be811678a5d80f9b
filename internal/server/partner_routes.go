package server

import (
	"net/http"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/go-chi/chi/v5"
)

func (s *Server) listPartnerships(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	ps, err := s.partners.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, PartnershipListResponse{Partnerships: ps})
}

func (s *Server) createPartnership(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	p, err := s.partners.Create(r.Context(), userID)
	if err != nil {
		RecordPartnershipEvent("create", "error")
		writeError(w, r, err)
		return
	}
	RecordPartnershipEvent("create", "success")
	respond(w, http.StatusCreated, p)
}

func (s *Server) acceptPartnership(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	var req AcceptInviteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.partners.Accept(r.Context(), req.Code, userID)
	if err != nil {
		RecordPartnershipEvent("accept", "rejected")
		writeError(w, r, err)
		return
	}
	RecordPartnershipEvent("accept", "success")
	respond(w, http.StatusOK, p)
}

func (s *Server) revokePartnership(w http.ResponseWriter, r *http.Request) {
	userID := s.requireUser(w, r)
	if userID == "" {
		return
	}
	p, err := s.partners.Revoke(r.Context(), chi.URLParam(r, "partnership_id"), userID)
	if err != nil {
		RecordPartnershipEvent("revoke", "rejected")
		writeError(w, r, err)
		return
	}
	RecordPartnershipEvent("revoke", "success")
	respond(w, http.StatusOK, p)
}

// getPartnerView serves an owner's shared habits to an active partner.
// RESISTANCE items are filtered below this layer.
func (s *Server) getPartnerView(w http.ResponseWriter, r *http.Request) {
	viewerID := s.requireUser(w, r)
	if viewerID == "" {
		return
	}
	ownerID := chi.URLParam(r, "owner_id")
	habits, err := s.partners.PartnerView(r.Context(), viewerID, ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.Debug("Partner view served", "viewer_id", viewerID, "owner_id", ownerID, "habits", len(habits))
	respond(w, http.StatusOK, PartnerViewResponse{OwnerID: ownerID, Habits: habits})
}
