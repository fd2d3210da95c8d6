package pgsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

func keys(records []search.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i], _ = r["id"].(string)
	}
	return out
}

func TestMergeRRF_BothEmpty(t *testing.T) {
	assert.Empty(t, MergeRRF("id", 60, nil, nil))
}

func TestMergeRRF_SingleList(t *testing.T) {
	vec := []search.Record{
		{"id": "a", "chunk": "chunk a"},
		{"id": "b", "chunk": "chunk b"},
	}

	assert.Equal(t, []string{"a", "b"}, keys(MergeRRF("id", 60, vec)))
	assert.InDelta(t, 1.0/61.0, rrfScores("id", 60, vec)["a"], 1e-9)
}

func TestMergeRRF_OverlappingRecords(t *testing.T) {
	vec := []search.Record{
		{"id": "a", "chunk": "chunk a"},
		{"id": "b", "chunk": "chunk b"},
	}
	fts := []search.Record{
		{"id": "a", "chunk": "chunk a (fts copy)"},
		{"id": "c", "chunk": "chunk c"},
	}

	result := MergeRRF("id", 60, vec, fts)
	require.Len(t, result, 3)
	assert.Equal(t, "a", result[0]["id"])
	assert.Equal(t, "chunk a", result[0]["chunk"], "first occurrence is kept")
	assert.InDelta(t, 2.0/61.0, rrfScores("id", 60, vec, fts)["a"], 1e-9)
}

func TestMergeRRF_SortedByScoreThenFirstSeen(t *testing.T) {
	// "a" at rank 2 in both lists: 2/62 beats 1/61 for "b" and "c"
	vec := []search.Record{{"id": "b"}, {"id": "a"}}
	fts := []search.Record{{"id": "c"}, {"id": "a"}}

	assert.Equal(t, []string{"a", "b", "c"}, keys(MergeRRF("id", 60, vec, fts)))
}

func TestMergeRRF_NumericKeys(t *testing.T) {
	// jsonb numbers decode as float64
	vec := []search.Record{{"doc_id": float64(7)}}
	fts := []search.Record{{"doc_id": float64(7)}, {"doc_id": float64(9)}}

	result := MergeRRF("doc_id", 60, vec, fts)
	require.Len(t, result, 2)
	assert.Equal(t, float64(7), result[0]["doc_id"])
}

func TestMergeRRF_DifferentK(t *testing.T) {
	assert.InDelta(t, 1.0, rrfScores("id", 0, []search.Record{{"id": "a"}})["a"], 1e-9)
}
