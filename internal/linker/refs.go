package linker

import (
	"regexp"
	"strings"

	"github.com/supportkg/pkg/models"
)

// ticketRefPattern matches literal ticket identifiers such as SUP-1042
// or AUTH2-7 inside free text.
var ticketRefPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]*-\d+\b`)

// ExplicitRefs scans a ticket's text sections for literal mentions of
// other ticket identifiers. Self references are dropped; order follows
// first appearance.
func ExplicitRefs(t *models.Ticket) []string {
	var sb strings.Builder
	sb.WriteString(t.Title)
	for _, n := range t.Nodes {
		switch n.SectionType {
		case models.SectionDescription, models.SectionComment, models.SectionResolution:
			sb.WriteByte(' ')
			sb.WriteString(n.Value)
		}
	}

	seen := map[string]bool{t.TicketID: true}
	var refs []string
	for _, m := range ticketRefPattern.FindAllString(sb.String(), -1) {
		if !seen[m] {
			seen[m] = true
			refs = append(refs, m)
		}
	}
	return refs
}
