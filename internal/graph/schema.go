package graph

import (
	"fmt"
	"regexp"

	"github.com/supportkg/pkg/models"
)

// Node labels and relationship types of the dual-level schema. Issue
// roots carry the ticket; section nodes hang off the root; REFERENCES
// and SIMILAR_TO connect roots across tickets.
const (
	LabelIssue       = "Issue"
	LabelDescription = "Description"
	LabelComment     = "Comment"
	LabelResolution  = "Resolution"
	LabelEntity      = "Entity"
	LabelTag         = "Tag"
	LabelStatus      = "Status"
	LabelPriority    = "Priority"

	RelHasDescription = "HAS_DESCRIPTION"
	RelHasComment     = "HAS_COMMENT"
	RelHasResolution  = "HAS_RESOLUTION"
	RelMentionsEntity = "MENTIONS_ENTITY"
	RelHasTag         = "HAS_TAG"
	RelHasStatus      = "HAS_STATUS"
	RelHasPriority    = "HAS_PRIORITY"
	RelReferences     = "REFERENCES"
	RelSimilarTo      = "SIMILAR_TO"
)

var knownLabels = map[string]bool{
	LabelIssue:       true,
	LabelDescription: true,
	LabelComment:     true,
	LabelResolution:  true,
	LabelEntity:      true,
	LabelTag:         true,
	LabelStatus:      true,
	LabelPriority:    true,
}

var knownRels = map[string]bool{
	RelHasDescription: true,
	RelHasComment:     true,
	RelHasResolution:  true,
	RelMentionsEntity: true,
	RelHasTag:         true,
	RelHasStatus:      true,
	RelHasPriority:    true,
	RelReferences:     true,
	RelSimilarTo:      true,
}

// sectionLabel maps a tree section type to its node label and the
// relationship that attaches it to the Issue root.
func sectionLabel(st models.SectionType) (label, rel string, ok bool) {
	switch st {
	case models.SectionDescription:
		return LabelDescription, RelHasDescription, true
	case models.SectionComment:
		return LabelComment, RelHasComment, true
	case models.SectionResolution:
		return LabelResolution, RelHasResolution, true
	case models.SectionEntity:
		return LabelEntity, RelMentionsEntity, true
	case models.SectionTag:
		return LabelTag, RelHasTag, true
	case models.SectionStatus:
		return LabelStatus, RelHasStatus, true
	case models.SectionPriority:
		return LabelPriority, RelHasPriority, true
	default:
		return "", "", false
	}
}

// labelForSection is the inverse of sectionLabel for traversal rows
func sectionForLabel(label string) models.SectionType {
	switch label {
	case LabelIssue:
		return models.SectionRoot
	case LabelDescription:
		return models.SectionDescription
	case LabelComment:
		return models.SectionComment
	case LabelResolution:
		return models.SectionResolution
	case LabelEntity:
		return models.SectionEntity
	case LabelTag:
		return models.SectionTag
	case LabelStatus:
		return models.SectionStatus
	case LabelPriority:
		return models.SectionPriority
	default:
		return models.SectionType(label)
	}
}

var (
	labelPattern = regexp.MustCompile(`:\s*([A-Za-z_][A-Za-z0-9_]*)`)
	relPattern   = regexp.MustCompile(`\[\s*[a-zA-Z0-9_]*\s*:\s*([A-Z_|]+)`)
)

// ValidateTraversal scans a Cypher traversal for node labels and
// relationship types outside the schema. Generated queries referencing
// unknown types are rejected before execution so synthesis fallback can
// rely on the signal.
func ValidateTraversal(cypher string) error {
	for _, m := range relPattern.FindAllStringSubmatch(cypher, -1) {
		for _, rel := range splitAlternation(m[1]) {
			if !knownRels[rel] {
				return fmt.Errorf("unknown relationship type %q", rel)
			}
		}
	}
	for _, m := range labelPattern.FindAllStringSubmatch(cypher, -1) {
		name := m[1]
		if knownLabels[name] || knownRels[name] {
			continue
		}
		return fmt.Errorf("unknown node label %q", name)
	}
	return nil
}

func splitAlternation(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '|' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
