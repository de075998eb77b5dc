package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// HistoryLimit is the number of trade records a league retains.
	HistoryLimit = 10

	// MemoryRefreshEvery controls how often (in trades) the narrative is regenerated.
	MemoryRefreshEvery = 3

	// DefaultPersonaNotes is the narrative a league starts with.
	DefaultPersonaNotes = "No memory yet. Make a few trades to see insights."

	// DefaultPersona is used when a proposal is evaluated without a persona label.
	DefaultPersona = "Default"
)

// InjuryStatus is the availability flag attached to a player.
type InjuryStatus string

const (
	InjuryOut       InjuryStatus = "O"
	InjuryDayToDay  InjuryStatus = "DTD"
	InjuryAvailable InjuryStatus = "OK"
)

// Injury describes a player's current health.
type Injury struct {
	Status InjuryStatus `json:"status" yaml:"status" mapstructure:"status"`
	Note   string       `json:"note,omitempty" yaml:"note,omitempty" mapstructure:"note"`
}

// Player is a single roster entry inside a league.
type Player struct {
	ID     string   `json:"id" yaml:"id" mapstructure:"id"`
	Name   string   `json:"name" yaml:"name" mapstructure:"name"`
	Team   string   `json:"team" yaml:"team" mapstructure:"team"`
	Pos    []string `json:"pos,omitempty" yaml:"pos,omitempty" mapstructure:"pos"`
	Proj   float64  `json:"proj" yaml:"proj" mapstructure:"proj"` // projected value units
	Injury *Injury  `json:"injury,omitempty" yaml:"injury,omitempty" mapstructure:"injury"`
}

// Team groups player ids under a manager.
type Team struct {
	ID     string   `json:"id" yaml:"id" mapstructure:"id"`
	Name   string   `json:"name" yaml:"name" mapstructure:"name"`
	Needs  []string `json:"needs,omitempty" yaml:"needs,omitempty" mapstructure:"needs"`
	Roster []string `json:"roster,omitempty" yaml:"roster,omitempty" mapstructure:"roster"`
}

// League is the authoritative roster and configuration of one simulation universe.
type League struct {
	LeagueID string         `json:"leagueId" yaml:"leagueId" mapstructure:"leagueId"`
	Teams    []Team         `json:"teams" yaml:"teams" mapstructure:"teams"`
	Players  []Player       `json:"players" yaml:"players" mapstructure:"players"`
	Rules    map[string]any `json:"rules,omitempty" yaml:"rules,omitempty" mapstructure:"rules"`
}

// Validate checks the fields required to store a league.
func (l *League) Validate() error {
	if l == nil {
		return fmt.Errorf("%w: league is required", ErrValidation)
	}
	if strings.TrimSpace(l.LeagueID) == "" {
		return fmt.Errorf("%w: leagueId is required", ErrValidation)
	}
	return nil
}

// PlayerIndex returns the players keyed by id.
func (l *League) PlayerIndex() map[string]Player {
	idx := make(map[string]Player, len(l.Players))
	for _, p := range l.Players {
		idx[p.ID] = p
	}
	return idx
}

// TeamIndex returns the teams keyed by id.
func (l *League) TeamIndex() map[string]Team {
	idx := make(map[string]Team, len(l.Teams))
	for _, t := range l.Teams {
		idx[t.ID] = t
	}
	return idx
}

// TradeProposal is a requested exchange of players between two teams.
type TradeProposal struct {
	LeagueID   string   `json:"leagueId" yaml:"leagueId" mapstructure:"leagueId"`
	FromTeamID string   `json:"fromTeamId" yaml:"fromTeamId" mapstructure:"fromTeamId"`
	ToTeamID   string   `json:"toTeamId" yaml:"toTeamId" mapstructure:"toTeamId"`
	Give       []string `json:"give" yaml:"give" mapstructure:"give"` // player ids leaving fromTeam
	Get        []string `json:"get" yaml:"get" mapstructure:"get"`    // player ids leaving toTeam
}

// Validate checks the fields required to evaluate a proposal.
func (p TradeProposal) Validate() error {
	if strings.TrimSpace(p.LeagueID) == "" {
		return fmt.Errorf("%w: proposal.leagueId is required", ErrValidation)
	}
	if len(p.Give) == 0 && len(p.Get) == 0 {
		return fmt.Errorf("%w: proposal must move at least one player", ErrValidation)
	}
	return nil
}

// Text renders the proposal the way comparable trades are indexed.
func (p TradeProposal) Text() string {
	return fmt.Sprintf("%s sent %s for %s to %s",
		p.FromTeamID, strings.Join(p.Give, ", "), strings.Join(p.Get, ", "), p.ToTeamID)
}

// Query renders the proposal as a comparable-trades search query.
func (p TradeProposal) Query() string {
	return fmt.Sprintf("give:%s get:%s", strings.Join(p.Give, ","), strings.Join(p.Get, ","))
}

// Grade is the letter score of an evaluation.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// TradeEvaluation is the graded, narrated result of evaluating a proposal.
type TradeEvaluation struct {
	Grade          Grade    `json:"grade"`
	DeltaValueFrom float64  `json:"deltaValueFrom"`
	DeltaValueTo   float64  `json:"deltaValueTo"`
	Risks          []string `json:"risks"`
	Comps          []string `json:"comps"`
	PersonaWriteup string   `json:"personaWriteup"`
}

// TradeRecord is one entry of a league's trade history.
type TradeRecord struct {
	Proposal  TradeProposal   `json:"proposal"`
	Result    TradeEvaluation `json:"result"`
	Timestamp time.Time       `json:"timestamp"`
}

// MemorySummary is the rolling narrative a league keeps about its trades.
type MemorySummary struct {
	PersonaNotes string    `json:"personaNotes"`
	TradeCount   int       `json:"tradeCount"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// NewMemorySummary returns the summary of a league that has seen no trades.
func NewMemorySummary(now time.Time) MemorySummary {
	return MemorySummary{
		PersonaNotes: DefaultPersonaNotes,
		LastUpdated:  now,
	}
}

// LeagueSnapshot is everything persisted for one league key.
// History and Memory travel in the same document so they are written together.
type LeagueSnapshot struct {
	League  *League       `json:"league,omitempty"`
	History []TradeRecord `json:"history"`
	Memory  MemorySummary `json:"memory"`
}

// AppendHistory inserts a record at the tail, evicting the oldest past HistoryLimit.
// It returns the new trade count.
func (s *LeagueSnapshot) AppendHistory(rec TradeRecord) int {
	s.History = append(s.History, rec)
	if over := len(s.History) - HistoryLimit; over > 0 {
		s.History = append([]TradeRecord(nil), s.History[over:]...)
	}
	s.Memory.TradeCount++
	return s.Memory.TradeCount
}

// ShouldRefreshMemory reports whether a trade count triggers narrative regeneration.
func ShouldRefreshMemory(tradeCount int) bool {
	return tradeCount > 0 && tradeCount%MemoryRefreshEvery == 0
}

// Clone returns a copy of the league that shares no slices or maps with l.
// Rules values are copied one level deep.
func (l *League) Clone() *League {
	if l == nil {
		return nil
	}
	out := &League{
		LeagueID: l.LeagueID,
		Teams:    make([]Team, len(l.Teams)),
		Players:  make([]Player, len(l.Players)),
	}
	for i, t := range l.Teams {
		t.Needs = append([]string(nil), t.Needs...)
		t.Roster = append([]string(nil), t.Roster...)
		out.Teams[i] = t
	}
	for i, p := range l.Players {
		p.Pos = append([]string(nil), p.Pos...)
		if p.Injury != nil {
			inj := *p.Injury
			p.Injury = &inj
		}
		out.Players[i] = p
	}
	if l.Rules != nil {
		out.Rules = make(map[string]any, len(l.Rules))
		for k, v := range l.Rules {
			out.Rules[k] = v
		}
	}
	return out
}

// Clone returns a copy of the snapshot whose history can be appended without touching s.
func (s LeagueSnapshot) Clone() LeagueSnapshot {
	return LeagueSnapshot{
		League:  s.League.Clone(),
		History: append([]TradeRecord(nil), s.History...),
		Memory:  s.Memory,
	}
}
