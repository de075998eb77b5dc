package evaluation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/tradeflow/internal/logging"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/ports"
)

// DefaultCompsK is how many comparable trades an evaluation asks for.
const DefaultCompsK = 5

// Evaluator implements ports.Evaluator.
type Evaluator struct {
	comps     ports.CompsIndex
	generator ports.TextGenerator
	compsK    int
	logger    *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCompsIndex sets the comparable-trades lookup. Without one, comps are always empty.
func WithCompsIndex(idx ports.CompsIndex) Option {
	return func(e *Evaluator) { e.comps = idx }
}

// WithTextGenerator sets the persona writeup generator. Without one, a template is used.
func WithTextGenerator(g ports.TextGenerator) Option {
	return func(e *Evaluator) { e.generator = g }
}

// WithCompsK overrides how many comparable trades are requested.
func WithCompsK(k int) Option {
	return func(e *Evaluator) { e.compsK = k }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		compsK: DefaultCompsK,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate grades proposal against league and narrates the result as persona.
// A comps lookup failure degrades to no comps; a writeup failure fails the evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, league *domain.League, proposal domain.TradeProposal, persona string) (domain.TradeEvaluation, error) {
	if league == nil {
		return domain.TradeEvaluation{}, fmt.Errorf("%w: league %s", domain.ErrNotInitialized, proposal.LeagueID)
	}
	if persona == "" {
		persona = domain.DefaultPersona
	}

	players := league.PlayerIndex()
	deltaFrom, deltaTo := ComputeTeamValueDelta(players, proposal)
	risks := append(RiskFlags(players, proposal.Give), RiskFlags(players, proposal.Get)...)

	eval := domain.TradeEvaluation{
		Grade:          GradeTrade(deltaFrom, deltaTo),
		DeltaValueFrom: deltaFrom,
		DeltaValueTo:   deltaTo,
		Risks:          risks,
		Comps:          e.similar(ctx, proposal),
	}

	writeup, err := e.writeup(ctx, persona, proposal, eval)
	if err != nil {
		return domain.TradeEvaluation{}, fmt.Errorf("%w: persona writeup: %v", domain.ErrTransientEvaluation, err)
	}
	eval.PersonaWriteup = writeup
	return eval, nil
}

func (e *Evaluator) similar(ctx context.Context, proposal domain.TradeProposal) []string {
	if e.comps == nil {
		return []string{}
	}
	comps, err := e.comps.Similar(ctx, proposal.Query(), e.compsK)
	if err != nil {
		e.logger.Warn("Comparable trades lookup failed", "league_id", proposal.LeagueID, "err", err)
		return []string{}
	}
	if comps == nil {
		comps = []string{}
	}
	return comps
}

func (e *Evaluator) writeup(ctx context.Context, persona string, proposal domain.TradeProposal, eval domain.TradeEvaluation) (string, error) {
	if e.generator == nil {
		return TemplateWriteup(persona, proposal, eval), nil
	}
	user, err := PersonaUserPrompt(proposal, eval)
	if err != nil {
		return "", err
	}
	return e.generator.Generate(ctx, PersonaSystemPrompt(persona), user)
}
