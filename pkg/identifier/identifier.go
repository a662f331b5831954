// Package identifier guards user-supplied table and column names before they
// reach generated DDL.
package identifier

import (
	"regexp"
	"strings"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

// MaxLength is the longest accepted identifier.
const MaxLength = 64

var safeIdentifier = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// Validate checks name against the safe-identifier grammar. The identity column
// name is reserved in every position, case-insensitively.
func Validate(name string) error {
	switch {
	case name == "":
		return apperrors.Validationf("name is required")
	case len(name) > MaxLength:
		return apperrors.Validationf("name %q exceeds %d characters", name, MaxLength)
	case !safeIdentifier.MatchString(name):
		return apperrors.Validationf("name %q must start with a letter and contain only letters, digits, and underscores", name)
	case strings.EqualFold(name, models.IdentityColumnName):
		return apperrors.Validationf("name %q is reserved", name)
	}
	return nil
}

// QuoteStyle selects the delimiter pair of a dialect.
type QuoteStyle int

const (
	// DoubleQuote produces "name".
	DoubleQuote QuoteStyle = iota
	// Bracket produces [name].
	Bracket
)

// Quote delimits name. It performs no validation and must only receive names
// that passed Validate (or fixed catalog names).
func Quote(name string, style QuoteStyle) string {
	if style == Bracket {
		return "[" + name + "]"
	}
	return `"` + name + `"`
}
