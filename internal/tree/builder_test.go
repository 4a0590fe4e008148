package tree

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/pkg/models"
)

func testConfig() config.TreeConfig {
	return config.TreeConfig{MaxComments: 50, MaxEntitiesPerSection: 20}
}

func TestBuildFullTicket(t *testing.T) {
	b := NewBuilder(testConfig())

	raw := models.RawTicket{
		TicketID:    "SUP-100",
		Title:       "Login fails after upgrade",
		Description: "Users cannot log in since the 2.3 upgrade",
		Comments: []models.Comment{
			{Author: "alice", Text: "reproduced on staging", Timestamp: time.Unix(100, 0)},
			{Author: "bob", Text: "looks like a session bug", Timestamp: time.Unix(200, 0)},
		},
		Resolution: "Rolled back session middleware",
		Status:     "Resolved",
		Priority:   "High",
		Product:    "AuthService",
		Tags:       []string{"login", "Regression"},
		Entities: []models.ExtractedEntity{
			{Type: "error", Value: "session timeout", Confidence: 0.9},
		},
	}

	ticket, err := b.Build(raw)
	require.NoError(t, err)
	require.NoError(t, Verify(ticket))

	root := ticket.Root()
	require.NotNil(t, root)
	assert.Equal(t, "SUP-100", root.NodeID)
	assert.Equal(t, "Login fails after upgrade", root.Value)

	desc := ticket.NodeByID("SUP-100_desc")
	require.NotNil(t, desc)
	assert.Equal(t, models.SectionDescription, desc.SectionType)

	comments := ticket.NodesOfType(models.SectionComment)
	require.Len(t, comments, 2)
	assert.Equal(t, "alice: reproduced on staging", comments[0].Value)

	res := ticket.NodeByID("SUP-100_res")
	require.NotNil(t, res)
	assert.Equal(t, "Rolled back session middleware", res.Value)

	// Status, priority and tags are normalized to lower case
	assert.Equal(t, "resolved", ticket.NodeByID("SUP-100_status").Value)
	assert.Equal(t, "high", ticket.NodeByID("SUP-100_priority").Value)
	tags := ticket.NodesOfType(models.SectionTag)
	require.Len(t, tags, 2)
	assert.Equal(t, "regression", tags[1].Value)

	// Product becomes an entity node alongside the extracted ones
	entities := ticket.NodesOfType(models.SectionEntity)
	require.Len(t, entities, 2)
}

func TestBuildPartialTicket(t *testing.T) {
	b := NewBuilder(testConfig())

	ticket, err := b.Build(models.RawTicket{
		TicketID: "SUP-101",
		Title:    "Question about billing export",
	})
	require.NoError(t, err)
	require.NoError(t, Verify(ticket))

	// Only the root survives; missing sections are omitted, not empty nodes
	assert.Len(t, ticket.Nodes, 1)
	assert.Empty(t, ticket.NodesOfType(models.SectionDescription))
	assert.Empty(t, ticket.NodesOfType(models.SectionResolution))
}

func TestBuildMalformed(t *testing.T) {
	b := NewBuilder(testConfig())

	_, err := b.Build(models.RawTicket{Title: "no id"})
	require.Error(t, err)
	assert.True(t, IsMalformed(err))

	_, err = b.Build(models.RawTicket{TicketID: "SUP-102", Title: "   "})
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestCommentCapKeepsNewest(t *testing.T) {
	b := NewBuilder(config.TreeConfig{MaxComments: 3, MaxEntitiesPerSection: 20})

	raw := models.RawTicket{TicketID: "SUP-103", Title: "flood of comments"}
	for i := 0; i < 10; i++ {
		raw.Comments = append(raw.Comments, models.Comment{
			Text:      fmt.Sprintf("comment %d", i),
			Timestamp: time.Unix(int64(i*60), 0),
		})
	}

	ticket, err := b.Build(raw)
	require.NoError(t, err)

	comments := ticket.NodesOfType(models.SectionComment)
	require.Len(t, comments, 3)
	assert.Equal(t, "comment 7", comments[0].Value)
	assert.Equal(t, "comment 9", comments[2].Value)
}

func TestEntityCapKeepsHighestConfidence(t *testing.T) {
	b := NewBuilder(config.TreeConfig{MaxComments: 50, MaxEntitiesPerSection: 2})

	raw := models.RawTicket{TicketID: "SUP-104", Title: "entity flood"}
	for i := 0; i < 5; i++ {
		raw.Entities = append(raw.Entities, models.ExtractedEntity{
			Type:       "error",
			Value:      fmt.Sprintf("error-%d", i),
			Confidence: float64(i) / 10,
		})
	}
	// Duplicate value differing only in case is dropped before capping
	raw.Entities = append(raw.Entities, models.ExtractedEntity{
		Type: "error", Value: "ERROR-4", Confidence: 0.9,
	})

	ticket, err := b.Build(raw)
	require.NoError(t, err)

	entities := ticket.NodesOfType(models.SectionEntity)
	require.Len(t, entities, 2)
	assert.Equal(t, "error-4", entities[0].Value)
	assert.Equal(t, "error-3", entities[1].Value)
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder(testConfig())
	raw := models.RawTicket{
		TicketID:    "SUP-105",
		Title:       "same input same tree",
		Description: "determinism check",
		Tags:        []string{"a", "b"},
	}

	first, err := b.Build(raw)
	require.NoError(t, err)
	second, err := b.Build(raw)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEmbedTextRendering(t *testing.T) {
	b := NewBuilder(testConfig())
	ticket, err := b.Build(models.RawTicket{
		TicketID:    "SUP-106",
		Title:       "Crash on export",
		Description: "Exporting to CSV crashes the app",
		Status:      "Open",
		Resolution:  "Fixed the encoder",
		Comments: []models.Comment{
			{Author: "carol", Text: "stack trace attached", Timestamp: time.Unix(1, 0)},
		},
	})
	require.NoError(t, err)

	root := ticket.Root()
	assert.Equal(t,
		"Title: Crash on export. Description: Exporting to CSV crashes the app. Status: open.",
		EmbedText(ticket, root))

	res := ticket.NodeByID("SUP-106_res")
	assert.Equal(t, "Resolution: Fixed the encoder", EmbedText(ticket, res))

	comment := ticket.NodeByID("SUP-106_comment_0")
	assert.Equal(t, "Comment by carol: stack trace attached", EmbedText(ticket, comment))
}
