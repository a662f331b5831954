package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a projection that libinjection flagged.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Column      string // Projection name that failed the check
	Expr        string // The expression that was checked
}

// CheckExpressionForInjection screens one projected expression. Form
// projections come from user-authored queries and are echoed into generated
// statements, so tautologies, stacked statements and comment tricks are
// refused before binding.
//
// Returns nil if no injection is detected.
//
// Example:
//
//	result := CheckExpressionForInjection("Sku", "w.Sku")
//	// result == nil
//
//	result = CheckExpressionForInjection("x", "1 OR 1=1 --")
//	// result.IsSQLi == true
func CheckExpressionForInjection(column, expr string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(expr)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Column:      column,
			Expr:        expr,
		}
	}
	return nil
}

// CheckProjections screens every parsed projection and returns the flagged ones.
func CheckProjections(columns []ParsedColumn) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for _, c := range columns {
		if c.Star {
			continue
		}
		if result := CheckExpressionForInjection(c.Name, c.Expr); result != nil {
			results = append(results, result)
		}
	}
	return results
}
