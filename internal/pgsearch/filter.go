package pgsearch

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

// queryArgs collects positional parameters while a statement is built.
type queryArgs []any

// add appends v and returns its placeholder.
func (a *queryArgs) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

// column returns the sanitized reference to field on the aliased source table.
func column(field string) string {
	return pgx.Identifier{"t", field}.Sanitize()
}

// whereFilter translates f into a SQL boolean expression over alias "t".
// A nil filter is TRUE.
func whereFilter(f *search.Filter, args *queryArgs) (string, error) {
	if f == nil {
		return "TRUE", nil
	}
	if err := f.Validate(); err != nil {
		return "", err
	}
	return filterSQL(f, args), nil
}

func filterSQL(f *search.Filter, args *queryArgs) string {
	switch f.Op {
	case search.OpEq:
		return column(f.Field) + " = " + args.add(f.Value)
	case search.OpGte:
		return column(f.Field) + " >= " + args.add(f.Value)
	case search.OpLte:
		return column(f.Field) + " <= " + args.add(f.Value)
	case search.OpContains:
		return args.add(f.Value) + " = ANY(" + column(f.Field) + ")"
	case search.OpNot:
		return "NOT (" + filterSQL(f.Filters[0], args) + ")"
	case search.OpAnd, search.OpOr:
		sep := " AND "
		if f.Op == search.OpOr {
			sep = " OR "
		}
		parts := make([]string, len(f.Filters))
		for i, child := range f.Filters {
			parts[i] = filterSQL(child, args)
		}
		return "(" + strings.Join(parts, sep) + ")"
	}
	// unreachable after Validate
	return "FALSE"
}

// tableIdent sanitizes a possibly schema-qualified table name.
func tableIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
