package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEdgeKeyUndirectedForImplicit(t *testing.T) {
	a := Edge{SourceTicket: "SUP-1", TargetTicket: "SUP-2", Kind: EdgeImplicitSimilar, Weight: 0.5}
	b := Edge{SourceTicket: "SUP-2", TargetTicket: "SUP-1", Kind: EdgeImplicitSimilar, Weight: 0.5}
	assert.Equal(t, a.Key(), b.Key())

	// Explicit references keep their direction
	c := Edge{SourceTicket: "SUP-1", TargetTicket: "SUP-2", Kind: EdgeExplicitReference, Weight: 1}
	d := Edge{SourceTicket: "SUP-2", TargetTicket: "SUP-1", Kind: EdgeExplicitReference, Weight: 1}
	assert.NotEqual(t, c.Key(), d.Key())
}

func TestEdgeValidate(t *testing.T) {
	valid := []Edge{
		{SourceTicket: "SUP-1", TargetTicket: "SUP-2", Kind: EdgeExplicitReference, Weight: 1},
		{SourceTicket: "SUP-1", TargetTicket: "SUP-2", Kind: EdgeImplicitSimilar, Weight: 0},
		{SourceTicket: "SUP-1", TargetTicket: "SUP-2", Kind: EdgeImplicitSimilar, Weight: 1},
	}
	for _, e := range valid {
		assert.NoError(t, e.Validate())
	}

	invalid := []Edge{
		{SourceTicket: "", TargetTicket: "SUP-2", Kind: EdgeExplicitReference, Weight: 1},
		{SourceTicket: "SUP-1", TargetTicket: "SUP-1", Kind: EdgeImplicitSimilar, Weight: 0.5},
		{SourceTicket: "SUP-1", TargetTicket: "SUP-2", Kind: EdgeExplicitReference, Weight: 0.7},
		{SourceTicket: "SUP-1", TargetTicket: "SUP-2", Kind: EdgeImplicitSimilar, Weight: 1.3},
		{SourceTicket: "SUP-1", TargetTicket: "SUP-2", Kind: "FRIENDS_WITH", Weight: 1},
	}
	for _, e := range invalid {
		assert.Error(t, e.Validate())
	}
}
