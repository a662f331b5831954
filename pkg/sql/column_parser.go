package sql

import (
	"regexp"
	"strings"
)

// ParsedColumn is one projection of a SELECT list.
type ParsedColumn struct {
	Name   string // alias, or the referenced column name
	Expr   string // the full expression as written
	Source string // referenced column when Expr is a plain column reference
	Star   bool   // "*" or "t.*"
}

var (
	asAliasPattern   = regexp.MustCompile(`(?i)\s+as\s+(\[[^\]]+\]|"[^"]+"|\w+)\s*$`)
	funcNamePattern  = regexp.MustCompile(`^(\w+)\s*\(`)
	columnRefPattern = regexp.MustCompile(`^(?:(?:\[[^\]]+\]|"[^"]+"|\w+)\.)*(\[[^\]]+\]|"[^"]+"|\w+)$`)
	topPattern       = regexp.MustCompile(`(?i)^top\s*(\(\s*\d+\s*\)|\d+)\s+`)
	nonWordPattern   = regexp.MustCompile(`[^\w]`)
)

var implicitAliasStopWords = map[string]struct{}{
	"from": {}, "where": {}, "group": {}, "order": {}, "limit": {}, "and": {}, "or": {}, "as": {},
	"end": {}, "else": {}, "then": {},
}

// ParseSelectColumns extracts the projection list of a SELECT statement.
// It is a regex-based scanner for the shapes forms use, not a SQL parser:
//   - plain and qualified columns: Sku, w.Sku, [w].[Sku]
//   - aliases: Sku AS Code, Sku Code, Sku AS [Stock Code]
//   - functions and CASE expressions, named by alias or function
//   - DISTINCT and TOP n prefixes
//
// Subqueries in the select list are not supported. Names keep their case.
func ParseSelectColumns(sql string) ([]ParsedColumn, error) {
	sql = strings.TrimSpace(sql)
	sqlLower := strings.ToLower(sql)

	selectIdx := strings.Index(sqlLower, "select")
	if selectIdx == -1 {
		return nil, nil
	}

	endKeywords := []string{" from ", " where ", " group ", " order ", " limit ", " union ", " intersect ", " except ", ";"}
	endIdx := len(sql)
	for _, keyword := range endKeywords {
		idx := strings.Index(sqlLower[selectIdx:], keyword)
		if idx != -1 && idx < endIdx-selectIdx {
			endIdx = selectIdx + idx
		}
	}
	// "FROM" at the end of a line is just as terminal as " from ".
	if idx := indexKeywordAcrossWhitespace(sqlLower[selectIdx:], "from"); idx != -1 && selectIdx+idx < endIdx {
		endIdx = selectIdx + idx
	}

	selectClause := strings.TrimSpace(sql[selectIdx+len("select") : endIdx])
	selectClause = stripProjectionPrefixes(selectClause)

	var result []ParsedColumn
	for _, col := range splitSelectColumns(selectClause) {
		col = strings.TrimSpace(col)
		if col == "" {
			continue
		}
		result = append(result, parseColumnExpression(col))
	}
	return result, nil
}

// indexKeywordAcrossWhitespace finds keyword delimited by any whitespace.
func indexKeywordAcrossWhitespace(s, keyword string) int {
	for i := 0; i+len(keyword) <= len(s); i++ {
		if s[i:i+len(keyword)] != keyword {
			continue
		}
		before := i == 0 || isSpace(s[i-1])
		after := i+len(keyword) == len(s) || isSpace(s[i+len(keyword)])
		if before && after && i > 0 {
			return i - 1
		}
	}
	return -1
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func stripProjectionPrefixes(clause string) string {
	for {
		lower := strings.ToLower(clause)
		switch {
		case strings.HasPrefix(lower, "distinct "):
			clause = strings.TrimSpace(clause[len("distinct "):])
		case strings.HasPrefix(lower, "all "):
			clause = strings.TrimSpace(clause[len("all "):])
		case topPattern.MatchString(clause):
			clause = strings.TrimSpace(topPattern.ReplaceAllString(clause, ""))
		default:
			return clause
		}
	}
}

// splitSelectColumns splits a SELECT column list by commas, respecting
// parentheses, string literals and delimited identifiers.
func splitSelectColumns(selectClause string) []string {
	var columns []string
	var current strings.Builder
	parenDepth := 0
	var quote rune

	for _, ch := range selectClause {
		if quote != 0 {
			current.WriteRune(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
			current.WriteRune(ch)
		case '[':
			quote = ']'
			current.WriteRune(ch)
		case '(':
			parenDepth++
			current.WriteRune(ch)
		case ')':
			parenDepth--
			current.WriteRune(ch)
		case ',':
			if parenDepth == 0 {
				columns = append(columns, current.String())
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		columns = append(columns, current.String())
	}
	return columns
}

// parseColumnExpression names a single projection.
// Examples:
//   - "Sku" → Sku (source Sku)
//   - "w.Sku" → Sku (source Sku)
//   - "Sku AS Code" → Code (source Sku)
//   - "[Unit Price] AS [Price]" → Price (source Unit Price)
//   - "COUNT(*)" → count
//   - "SUM(Qty) Total" → Total
func parseColumnExpression(expr string) ParsedColumn {
	expr = strings.TrimSpace(expr)

	if expr == "*" || strings.HasSuffix(expr, ".*") {
		return ParsedColumn{Name: "*", Expr: expr, Star: true}
	}

	if m := asAliasPattern.FindStringSubmatchIndex(expr); m != nil {
		alias := unquoteIdentifier(expr[m[2]:m[3]])
		inner := strings.TrimSpace(expr[:m[0]])
		return ParsedColumn{Name: alias, Expr: expr, Source: columnReference(inner)}
	}

	// Implicit alias: "COUNT(*) total". Only when parens balance and the last
	// token is a bare word that is not a keyword.
	if strings.Count(expr, "(") == strings.Count(expr, ")") {
		parts := strings.Fields(expr)
		if len(parts) > 1 {
			last := parts[len(parts)-1]
			_, stop := implicitAliasStopWords[strings.ToLower(last)]
			if !stop && columnRefPattern.MatchString(last) && !strings.Contains(last, ".") {
				inner := strings.TrimSpace(strings.TrimSuffix(expr, last))
				return ParsedColumn{Name: unquoteIdentifier(last), Expr: expr, Source: columnReference(inner)}
			}
		}
	}

	if src := columnReference(expr); src != "" {
		return ParsedColumn{Name: src, Expr: expr, Source: src}
	}
	return ParsedColumn{Name: extractColumnName(expr), Expr: expr}
}

// columnReference returns the column an expression refers to when the
// expression is nothing but a (possibly qualified) column name.
func columnReference(expr string) string {
	m := columnRefPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return ""
	}
	name := unquoteIdentifier(m[1])
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		return ""
	}
	if _, keyword := implicitAliasStopWords[strings.ToLower(name)]; keyword {
		return ""
	}
	return name
}

func unquoteIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '[' && s[len(s)-1] == ']') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// extractColumnName derives a name for a computed expression.
func extractColumnName(expr string) string {
	if m := funcNamePattern.FindStringSubmatch(expr); m != nil {
		return strings.ToLower(m[1])
	}
	if strings.HasPrefix(strings.ToLower(expr), "case") {
		return "case_result"
	}
	return strings.ToLower(nonWordPattern.ReplaceAllString(expr, ""))
}
