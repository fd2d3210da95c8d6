package service

import (
	"github.com/jharjadi/pro-rag/chat-api-go/internal/model"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

// CollectSources lists the distinct documents behind the retrieved records,
// in first-seen order. Records without a path or URL are skipped.
func CollectSources(records []search.Record) []model.Source {
	seen := make(map[model.Source]bool)
	sources := []model.Source{}

	for _, r := range records {
		src := model.Source{
			RelativePath: columnText(r, "relative_path"),
			FileURL:      columnText(r, "file_url"),
		}
		if src.RelativePath == "" && src.FileURL == "" {
			continue
		}
		if seen[src] {
			continue
		}
		seen[src] = true
		sources = append(sources, src)
	}

	return sources
}
