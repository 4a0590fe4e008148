package tree

import (
	"errors"
	"fmt"
)

// MalformedTicketError marks bad ingestion input. The ticket is skipped
// and the batch continues.
type MalformedTicketError struct {
	TicketID string
	Reason   string
}

func (e *MalformedTicketError) Error() string {
	if e.TicketID == "" {
		return fmt.Sprintf("malformed ticket: %s", e.Reason)
	}
	return fmt.Sprintf("malformed ticket %s: %s", e.TicketID, e.Reason)
}

// IsMalformed reports whether err is a MalformedTicketError
func IsMalformed(err error) bool {
	var mt *MalformedTicketError
	return errors.As(err, &mt)
}
