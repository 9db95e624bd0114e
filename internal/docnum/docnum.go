// Package docnum formats date-sequenced document numbers: a one letter
// prefix, the yymmdd date and a four digit daily sequence (F2510150001).
package docnum

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"poscore/backend/internal/domain"
)

const (
	InvoicePrefix = "F"
	ReturnPrefix  = "D"

	sequenceDigits = 4
	maxSequence    = 9999
)

// DayPrefix returns the prefix shared by every number issued on the day of at.
func DayPrefix(prefix string, at time.Time) string {
	return prefix + at.Format("060102")
}

// Next returns the number following last, the highest number already issued
// under dayPrefix ("" when none has been issued yet).
func Next(dayPrefix string, last string) (string, error) {
	seq := 0
	if last != "" {
		if !strings.HasPrefix(last, dayPrefix) {
			return "", fmt.Errorf("document number %q does not belong to %q", last, dayPrefix)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(last, dayPrefix))
		if err != nil {
			return "", fmt.Errorf("document number %q has no numeric sequence: %w", last, err)
		}
		seq = n
	}
	if seq >= maxSequence {
		return "", domain.InvalidState("daily sequence for %s is exhausted", dayPrefix)
	}
	return fmt.Sprintf("%s%0*d", dayPrefix, sequenceDigits, seq+1), nil
}
