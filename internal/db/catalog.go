package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// brokenService is a search_services row whose source table is gone.
type brokenService struct {
	Name        string `db:"name"`
	SourceTable string `db:"source_table"`
}

// CheckSearchCatalog reports search_services rows whose source table no
// longer resolves. Such services still show up in discovery but fail every
// retrieval, so they are logged at startup. It returns the broken names.
func CheckSearchCatalog(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT name, source_table
		 FROM search_services
		 WHERE to_regclass(source_table) IS NULL
		 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("check search catalog: %w", err)
	}

	broken, err := pgx.CollectRows(rows, pgx.RowToStructByName[brokenService])
	if err != nil {
		return nil, fmt.Errorf("check search catalog: %w", err)
	}

	names := make([]string, 0, len(broken))
	for _, b := range broken {
		slog.Warn("search service points at a missing table",
			"search_service", b.Name,
			"source_table", b.SourceTable,
		)
		names = append(names, b.Name)
	}
	if len(names) == 0 {
		slog.Info("search catalog check complete")
	}
	return names, nil
}
