package service

import (
	"fmt"
	"strings"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

// FormatContext numbers each record's search-column value, in the order given:
//
//	Context document 1: <text> \n\n
//
// Column names are matched lower-cased.
func FormatContext(records []search.Record, searchColumn string) string {
	col := strings.ToLower(searchColumn)
	var sb strings.Builder
	for i, r := range records {
		sb.WriteString(fmt.Sprintf("Context document %d: %s \n\n", i+1, columnText(r, col)))
	}
	return sb.String()
}

// columnText returns the record's value for col as text. Backends may return
// upper-case keys, so an exact match is tried first and then a case-insensitive one.
func columnText(r search.Record, col string) string {
	v, ok := r[col]
	if !ok {
		for k, val := range r {
			if strings.EqualFold(k, col) {
				v, ok = val, true
				break
			}
		}
	}
	if !ok || v == nil {
		return ""
	}
	if s, isStr := v.(string); isStr {
		return s
	}
	return fmt.Sprintf("%v", v)
}
