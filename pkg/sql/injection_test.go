package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckExpressionForInjection(t *testing.T) {
	tests := []struct {
		name            string
		expr            string
		expectInjection bool
	}{
		{"plain column", "Sku", false},
		{"number", "12345", false},
		{"words", "laptop computers", false},
		{"empty", "", false},
		{"classic quote injection", "' OR '1'='1", true},
		{"drop table", "'; DROP TABLE users--", true},
		{"union select", "1 UNION SELECT * FROM passwords", true},
		{"comment injection", "admin'--", true},
		{"stacked queries", "admin'; DELETE FROM logs; --", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckExpressionForInjection("col", tt.expr)
			if !tt.expectInjection {
				assert.Nil(t, result)
				return
			}
			if assert.NotNil(t, result) {
				assert.True(t, result.IsSQLi)
				assert.NotEmpty(t, result.Fingerprint)
				assert.Equal(t, "col", result.Column)
				assert.Equal(t, tt.expr, result.Expr)
			}
		})
	}
}

func TestCheckProjections(t *testing.T) {
	results := CheckProjections([]ParsedColumn{
		{Name: "*", Expr: "*", Star: true},
		{Name: "Sku", Expr: "Sku"},
		{Name: "bad", Expr: "' OR '1'='1"},
	})
	if assert.Len(t, results, 1) {
		assert.Equal(t, "bad", results[0].Column)
	}
}
