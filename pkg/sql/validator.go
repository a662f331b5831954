// Package sql provides the light-weight SQL handling used by form projections:
// statement validation, projection extraction and injection screening.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrNotSelect indicates the statement does not start with SELECT.
	ErrNotSelect = errors.New("only SELECT statements are permitted")

	// ErrEmptyQuery indicates no statement text was supplied.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrUnterminated indicates a quoted literal, delimited identifier or block
	// comment that never closes.
	ErrUnterminated = errors.New("unterminated literal, identifier or comment")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize removes comments, trims whitespace and a single
// trailing semicolon, then rejects any statement separator that remains.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	stripped, separators, err := scan(sqlQuery)
	if err != nil {
		return ValidationResult{Error: err}
	}

	normalized := strings.TrimSpace(stripped)
	if strings.HasSuffix(normalized, ";") {
		normalized = strings.TrimSpace(strings.TrimSuffix(normalized, ";"))
		separators--
	}
	if separators > 0 {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	return ValidationResult{NormalizedSQL: normalized}
}

// ValidateSelect normalizes a form query and requires exactly one SELECT statement.
func ValidateSelect(sqlQuery string) (string, error) {
	result := ValidateAndNormalize(sqlQuery)
	if result.Error != nil {
		return "", result.Error
	}
	if result.NormalizedSQL == "" {
		return "", ErrEmptyQuery
	}
	fields := strings.Fields(result.NormalizedSQL)
	if !strings.EqualFold(fields[0], "select") {
		return "", ErrNotSelect
	}
	return result.NormalizedSQL, nil
}

// scan copies sqlQuery with comments replaced by a space and counts the
// semicolons found outside literals and delimited identifiers. A doubled
// closing quote ('' or "" or ]]) stays inside the literal.
func scan(sqlQuery string) (string, int, error) {
	var out strings.Builder
	out.Grow(len(sqlQuery))
	separators := 0

	for i := 0; i < len(sqlQuery); {
		c := sqlQuery[i]
		switch {
		case c == '-' && i+1 < len(sqlQuery) && sqlQuery[i+1] == '-':
			end := strings.IndexByte(sqlQuery[i:], '\n')
			if end < 0 {
				i = len(sqlQuery)
			} else {
				i += end
			}
			out.WriteByte(' ')
		case c == '/' && i+1 < len(sqlQuery) && sqlQuery[i+1] == '*':
			end := strings.Index(sqlQuery[i+2:], "*/")
			if end < 0 {
				return "", 0, ErrUnterminated
			}
			i += end + 4
			out.WriteByte(' ')
		case c == '\'' || c == '"' || c == '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			end, ok := closingDelimiter(sqlQuery, i+1, closer)
			if !ok {
				return "", 0, ErrUnterminated
			}
			out.WriteString(sqlQuery[i : end+1])
			i = end + 1
		default:
			if c == ';' {
				separators++
			}
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), separators, nil
}

// closingDelimiter returns the index of the closer that ends the literal
// starting at from.
func closingDelimiter(s string, from int, closer byte) (int, bool) {
	for i := from; i < len(s); i++ {
		if s[i] != closer {
			continue
		}
		if i+1 < len(s) && s[i+1] == closer {
			i++
			continue
		}
		return i, true
	}
	return 0, false
}
