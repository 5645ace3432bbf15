package xlsx

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ukaji3/tabstream-go/pkg/tabstream/errs"
)

// MaxSheetNameLength is the longest sheet name spreadsheet applications accept.
const MaxSheetNameLength = 31

const invalidSheetNameChars = `\/?*:[]`

// ValidateSheetName checks name against the format rules and against the
// names already taken, compared case-insensitively.
func ValidateSheetName(name string, taken []string) error {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: %q %s", errs.ErrInvalidSheetName, name, reason)
	}

	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return invalid("is empty")
	case n > MaxSheetNameLength:
		return invalid(fmt.Sprintf("is longer than %d characters", MaxSheetNameLength))
	case strings.ContainsAny(name, invalidSheetNameChars):
		return invalid("contains one of " + invalidSheetNameChars)
	case strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'"):
		return invalid("starts or ends with an apostrophe")
	}
	for _, t := range taken {
		if strings.EqualFold(t, name) {
			return invalid("is already used")
		}
	}
	return nil
}
