// Package contextpack assembles ranked tickets into the evidence context
// handed to answer generation.
package contextpack

import (
	"unicode/utf8"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/models"
)

const truncationMarker = "..."

// Assembler merges ranked tickets into a character-budgeted evidence
// context
type Assembler struct {
	cfg config.ContextConfig
}

// New creates an assembler
func New(cfg config.ContextConfig) *Assembler {
	return &Assembler{cfg: cfg}
}

// Assemble builds the evidence context for a query from its ranked
// tickets. Evidence preserves rank order. When the assembled context
// would exceed the character budget, whole tickets are dropped from the
// bottom of the ranking first; only if even the top ticket alone
// overruns the budget are its title and resolution truncated. A partial
// top ticket beats an empty context.
//
// An empty ranking yields an empty context, which is a valid answer
// ("no relevant prior tickets"), not a failure.
func (a *Assembler) Assemble(query string, intent models.Intent, ranked []models.TicketScore, sub *models.CandidateSubgraph) models.EvidenceContext {
	ec := models.EvidenceContext{
		Query:  query,
		Intent: intent,
	}
	if len(ranked) == 0 || sub == nil {
		return ec
	}

	byID := make(map[string]*models.Ticket, len(sub.Tickets))
	for i := range sub.Tickets {
		byID[sub.Tickets[i].TicketID] = &sub.Tickets[i]
	}

	candidates := make([]models.EvidenceTicket, 0, len(ranked))
	for _, ts := range ranked {
		t := byID[ts.TicketID]
		if t == nil {
			continue
		}
		candidates = append(candidates, a.evidenceFor(ts, t))
	}

	// Keep the longest rank-order prefix that fits the budget
	kept := candidates
	for len(kept) > 1 && totalChars(kept) > a.cfg.BudgetChars {
		kept = kept[:len(kept)-1]
	}
	if len(kept) == 1 && totalChars(kept) > a.cfg.BudgetChars {
		kept[0] = truncate(kept[0], a.cfg.BudgetChars)
	}

	ec.Tickets = kept
	ec.Chars = totalChars(kept)
	return ec
}

// evidenceFor renders one ranked ticket as evidence: title, resolution
// when present, and the matched-node values as highlights
func (a *Assembler) evidenceFor(ts models.TicketScore, t *models.Ticket) models.EvidenceTicket {
	ev := models.EvidenceTicket{
		TicketID: ts.TicketID,
		Title:    t.Title,
		Score:    ts.Score,
	}
	if res := t.NodesOfType(models.SectionResolution); len(res) > 0 {
		ev.Resolution = res[0].Value
	}
	for _, mn := range ts.MatchedNodes {
		ev.Highlights = append(ev.Highlights, mn.Value)
		if mn.Section == models.SectionDescription || mn.Section == models.SectionComment {
			if a.cfg.MaxExcerpts <= 0 || len(ev.Excerpts) < a.cfg.MaxExcerpts {
				ev.Excerpts = append(ev.Excerpts, mn.Value)
			}
		}
	}
	return ev
}

// truncate shrinks a single evidence ticket toward the budget: excerpts
// go first, then highlights, then the resolution tail, then the title
// tail. The ticket id and score always survive.
func truncate(ev models.EvidenceTicket, budget int) models.EvidenceTicket {
	ev.Truncated = true
	ev.Excerpts = nil
	if charsOf(ev) <= budget {
		return ev
	}
	ev.Highlights = nil
	if charsOf(ev) <= budget {
		return ev
	}
	overrun := charsOf(ev) - budget
	if len(ev.Resolution) > 0 {
		ev.Resolution = cut(ev.Resolution, overrun)
		overrun = charsOf(ev) - budget
	}
	if overrun > 0 {
		ev.Title = cut(ev.Title, overrun)
	}
	return ev
}

// cut removes at least n trailing bytes from s, leaving a marker. The
// boundary backs off to the start of a rune so a multi-byte character
// is never split.
func cut(s string, n int) string {
	keep := len(s) - n - len(truncationMarker)
	if keep <= 0 {
		return ""
	}
	for keep > 0 && !utf8.RuneStart(s[keep]) {
		keep--
	}
	if keep == 0 {
		return ""
	}
	return s[:keep] + truncationMarker
}

func totalChars(evs []models.EvidenceTicket) int {
	var n int
	for _, ev := range evs {
		n += charsOf(ev)
	}
	return n
}

func charsOf(ev models.EvidenceTicket) int {
	n := len(ev.TicketID) + len(ev.Title) + len(ev.Resolution)
	for _, h := range ev.Highlights {
		n += len(h)
	}
	for _, e := range ev.Excerpts {
		n += len(e)
	}
	return n
}
