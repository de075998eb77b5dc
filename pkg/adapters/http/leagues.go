package http

import (
	"fmt"
	"net/http"

	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/go-chi/chi/v5"
)

type putResponse struct {
	OK       bool   `json:"ok"`
	LeagueID string `json:"leagueId"`
}

type initRequest struct {
	LeagueID string         `json:"leagueId"`
	League   *domain.League `json:"league"`
}

type historyRequest struct {
	Proposal domain.TradeProposal   `json:"proposal"`
	Result   domain.TradeEvaluation `json:"result"`
}

type historyResponse struct {
	OK     bool                 `json:"ok"`
	Memory domain.MemorySummary `json:"memory"`
}

func (s *Server) putState(w http.ResponseWriter, r *http.Request) {
	var league domain.League
	if err := decodeJSON(w, r, &league); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.put(w, r, chi.URLParam(r, "leagueID"), &league)
}

func (s *Server) initLeague(w http.ResponseWriter, r *http.Request) {
	var body initRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.LeagueID == "" || body.League == nil {
		s.writeError(w, r, fmt.Errorf("%w: leagueId and league required", domain.ErrValidation))
		return
	}
	s.put(w, r, body.LeagueID, body.League)
}

// put stores league under leagueID. A body without its own id takes the route's.
func (s *Server) put(w http.ResponseWriter, r *http.Request, leagueID string, league *domain.League) {
	if league.LeagueID == "" {
		league.LeagueID = leagueID
	}
	if league.LeagueID != leagueID {
		s.writeError(w, r, fmt.Errorf("%w: body leagueId %q does not match %q", domain.ErrValidation, league.LeagueID, leagueID))
		return
	}
	if err := s.leagues.Put(r.Context(), league); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, putResponse{OK: true, LeagueID: league.LeagueID})
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	league, err := s.leagues.Get(r.Context(), chi.URLParam(r, "leagueID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, league)
}

func (s *Server) appendHistory(w http.ResponseWriter, r *http.Request) {
	var body historyRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	memory, err := s.leagues.AppendHistory(r.Context(), chi.URLParam(r, "leagueID"), body.Proposal, body.Result)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{OK: true, Memory: memory})
}

func (s *Server) getMemory(w http.ResponseWriter, r *http.Request) {
	s.memory(w, r, chi.URLParam(r, "leagueID"))
}

func (s *Server) getMemoryByQuery(w http.ResponseWriter, r *http.Request) {
	leagueID, err := requireParam(r, "leagueId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.memory(w, r, leagueID)
}

func (s *Server) memory(w http.ResponseWriter, r *http.Request, leagueID string) {
	memory, err := s.leagues.GetMemory(r.Context(), leagueID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memory)
}
