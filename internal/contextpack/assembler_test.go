package contextpack

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/models"
)

func evidenceTicket(id, title, resolution string) models.Ticket {
	t := models.Ticket{TicketID: id, Title: title}
	t.Nodes = append(t.Nodes, models.Node{
		NodeID: id, TicketID: id, SectionType: models.SectionRoot, Value: title,
	})
	t.Parents = append(t.Parents, -1)
	if resolution != "" {
		t.Nodes = append(t.Nodes, models.Node{
			NodeID: id + "_res", TicketID: id,
			SectionType: models.SectionResolution, Value: resolution,
		})
		t.Parents = append(t.Parents, 0)
	}
	return t
}

func scored(id string, score float64, nodes ...models.MatchedNode) models.TicketScore {
	return models.TicketScore{TicketID: id, Score: score, MatchedNodes: nodes}
}

func TestAssembleOrdersByRank(t *testing.T) {
	a := New(config.ContextConfig{BudgetChars: 8000, MaxExcerpts: 3})

	sub := &models.CandidateSubgraph{Tickets: []models.Ticket{
		evidenceTicket("SUP-2", "Second", "fix two"),
		evidenceTicket("SUP-1", "First", "fix one"),
	}}
	ranked := []models.TicketScore{
		scored("SUP-1", 1.6),
		scored("SUP-2", 0.4),
	}

	ec := a.Assemble("login broken", models.IntentTroubleshooting, ranked, sub)
	require.Len(t, ec.Tickets, 2)
	assert.Equal(t, "SUP-1", ec.Tickets[0].TicketID)
	assert.Equal(t, "First", ec.Tickets[0].Title)
	assert.Equal(t, "fix one", ec.Tickets[0].Resolution)
	assert.Equal(t, models.IntentTroubleshooting, ec.Intent)
	assert.Equal(t, "login broken", ec.Query)
	assert.Greater(t, ec.Chars, 0)
}

func TestAssembleDropsWholeTicketsBeforeTruncating(t *testing.T) {
	long := strings.Repeat("x", 400)
	a := New(config.ContextConfig{BudgetChars: 900, MaxExcerpts: 3})

	sub := &models.CandidateSubgraph{Tickets: []models.Ticket{
		evidenceTicket("SUP-1", "First", long),
		evidenceTicket("SUP-2", "Second", long),
		evidenceTicket("SUP-3", "Third", long),
	}}
	ranked := []models.TicketScore{
		scored("SUP-1", 3),
		scored("SUP-2", 2),
		scored("SUP-3", 1),
	}

	ec := a.Assemble("q", models.IntentGeneralInquiry, ranked, sub)
	// The third ticket is dropped whole; the two kept are untouched
	require.Len(t, ec.Tickets, 2)
	assert.Equal(t, "SUP-1", ec.Tickets[0].TicketID)
	assert.Equal(t, "SUP-2", ec.Tickets[1].TicketID)
	assert.False(t, ec.Tickets[0].Truncated)
	assert.Equal(t, long, ec.Tickets[0].Resolution)
	assert.LessOrEqual(t, ec.Chars, 900)
}

func TestAssembleTruncatesLoneOverrunningTicket(t *testing.T) {
	a := New(config.ContextConfig{BudgetChars: 120, MaxExcerpts: 3})

	sub := &models.CandidateSubgraph{Tickets: []models.Ticket{
		evidenceTicket("SUP-1", "Crash on export", strings.Repeat("very long resolution ", 30)),
	}}
	ranked := []models.TicketScore{scored("SUP-1", 2)}

	ec := a.Assemble("q", models.IntentBugReport, ranked, sub)
	// A partial top ticket beats an empty context
	require.Len(t, ec.Tickets, 1)
	assert.True(t, ec.Tickets[0].Truncated)
	assert.LessOrEqual(t, ec.Chars, 120)
	assert.Equal(t, "Crash on export", ec.Tickets[0].Title)
}

func TestAssembleTruncationKeepsValidUTF8(t *testing.T) {
	a := New(config.ContextConfig{BudgetChars: 80, MaxExcerpts: 3})

	sub := &models.CandidateSubgraph{Tickets: []models.Ticket{
		evidenceTicket("SUP-1", "Réseau saturé", strings.Repeat("très dégradé ", 20)),
	}}
	ranked := []models.TicketScore{scored("SUP-1", 2)}

	ec := a.Assemble("q", models.IntentBugReport, ranked, sub)
	require.Len(t, ec.Tickets, 1)
	ev := ec.Tickets[0]
	assert.True(t, ev.Truncated)
	assert.LessOrEqual(t, ec.Chars, 80)
	assert.True(t, utf8.ValidString(ev.Resolution))
	assert.True(t, utf8.ValidString(ev.Title))
}

func TestAssembleTruncationCutsTitleOnRuneBoundary(t *testing.T) {
	a := New(config.ContextConfig{BudgetChars: 40, MaxExcerpts: 3})

	sub := &models.CandidateSubgraph{Tickets: []models.Ticket{
		evidenceTicket("SUP-1", strings.Repeat("チケットのエクスポート", 4), ""),
	}}
	ranked := []models.TicketScore{scored("SUP-1", 2)}

	ec := a.Assemble("q", models.IntentBugReport, ranked, sub)
	require.Len(t, ec.Tickets, 1)
	ev := ec.Tickets[0]
	assert.True(t, ev.Truncated)
	assert.True(t, utf8.ValidString(ev.Title))
	assert.True(t, strings.HasSuffix(ev.Title, "..."))
}

func TestAssembleHighlightsAndExcerpts(t *testing.T) {
	a := New(config.ContextConfig{BudgetChars: 8000, MaxExcerpts: 1})

	sub := &models.CandidateSubgraph{Tickets: []models.Ticket{
		evidenceTicket("SUP-1", "Login loop", "cleared the session store"),
	}}
	ranked := []models.TicketScore{scored("SUP-1", 1.2,
		models.MatchedNode{
			Key:     models.NodeKey{TicketID: "SUP-1", NodeID: "SUP-1_entity_0"},
			Section: models.SectionEntity, Value: "timeout", Source: models.MatchEntity, Similarity: 0.7,
		},
		models.MatchedNode{
			Key:     models.NodeKey{TicketID: "SUP-1", NodeID: "SUP-1_comment_0"},
			Section: models.SectionComment, Value: "happens on safari too", Source: models.MatchVector, Similarity: 0.5,
		},
		models.MatchedNode{
			Key:     models.NodeKey{TicketID: "SUP-1", NodeID: "SUP-1_desc"},
			Section: models.SectionDescription, Value: "users stuck in redirect", Source: models.MatchVector, Similarity: 0.4,
		},
	)}

	ec := a.Assemble("q", models.IntentTroubleshooting, ranked, sub)
	require.Len(t, ec.Tickets, 1)
	ev := ec.Tickets[0]
	assert.Len(t, ev.Highlights, 3)
	// Excerpts only come from prose sections and respect the cap
	require.Len(t, ev.Excerpts, 1)
	assert.Equal(t, "happens on safari too", ev.Excerpts[0])
}

func TestAssembleEmptyRanking(t *testing.T) {
	a := New(config.ContextConfig{BudgetChars: 8000, MaxExcerpts: 3})

	ec := a.Assemble("nothing matches", models.IntentGeneralInquiry, nil, &models.CandidateSubgraph{})
	assert.Empty(t, ec.Tickets)
	assert.Equal(t, 0, ec.Chars)
	assert.Equal(t, "nothing matches", ec.Query)
}
