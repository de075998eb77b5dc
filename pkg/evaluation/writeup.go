package evaluation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// PersonaSystemPrompt is the instruction given to the text generator for a writeup.
func PersonaSystemPrompt(persona string) string {
	return fmt.Sprintf("You are a legendary NBA GM persona: %s. Tone should reflect their style.\n"+
		"Return a concise, punchy paragraph (<=120 words) explaining the trade evaluation.\n", persona)
}

// PersonaUserPrompt serializes the proposal and the partial evaluation for the generator.
func PersonaUserPrompt(proposal domain.TradeProposal, eval domain.TradeEvaluation) (string, error) {
	eval.PersonaWriteup = ""
	payload := struct {
		Proposal domain.TradeProposal `json:"proposal"`
		Eval     evalBody             `json:"eval"`
	}{
		Proposal: proposal,
		Eval: evalBody{
			Grade:          eval.Grade,
			DeltaValueFrom: eval.DeltaValueFrom,
			DeltaValueTo:   eval.DeltaValueTo,
			Risks:          eval.Risks,
			Comps:          eval.Comps,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type evalBody struct {
	Grade          domain.Grade `json:"grade"`
	DeltaValueFrom float64      `json:"deltaValueFrom"`
	DeltaValueTo   float64      `json:"deltaValueTo"`
	Risks          []string     `json:"risks"`
	Comps          []string     `json:"comps"`
}

// TemplateWriteup is the writeup produced when no text generator is configured.
func TemplateWriteup(persona string, proposal domain.TradeProposal, eval domain.TradeEvaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s grades this one %s. ", persona, eval.Grade)
	switch {
	case eval.DeltaValueFrom > 0:
		fmt.Fprintf(&b, "%s comes out ahead by %.1f projected points.", teamLabel(proposal.FromTeamID, "The proposing side"), eval.DeltaValueFrom)
	case eval.DeltaValueFrom < 0:
		fmt.Fprintf(&b, "%s comes out ahead by %.1f projected points.", teamLabel(proposal.ToTeamID, "The other side"), eval.DeltaValueTo)
	default:
		b.WriteString("Projected value is a wash.")
	}
	if len(eval.Risks) > 0 {
		fmt.Fprintf(&b, " Health concerns: %s.", strings.Join(eval.Risks, "; "))
	}
	if len(eval.Comps) > 0 {
		fmt.Fprintf(&b, " Closest precedent: %s.", eval.Comps[0])
	}
	return b.String()
}

func teamLabel(id, fallback string) string {
	if id == "" {
		return fallback
	}
	return id
}
