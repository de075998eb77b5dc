package http

import (
	"net/http"

	"github.com/aretw0/tradeflow/pkg/domain"
)

type evaluateRequest struct {
	ID       string               `json:"id,omitempty"`
	Proposal domain.TradeProposal `json:"proposal"`
	Persona  string               `json:"persona,omitempty"`
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	var body evaluateRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.workflows.Submit(r.Context(), domain.EvaluateTradeInput{
		WorkflowID: body.ID,
		LeagueID:   body.Proposal.LeagueID,
		Proposal:   body.Proposal,
		Persona:    body.Persona,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.workflows.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
