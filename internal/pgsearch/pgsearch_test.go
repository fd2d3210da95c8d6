package pgsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

func TestWhereFilter_Nil(t *testing.T) {
	var args queryArgs
	where, err := whereFilter(nil, &args)
	require.NoError(t, err)
	assert.Equal(t, "TRUE", where)
	assert.Empty(t, args)
}

func TestWhereFilter_LanguageConjunction(t *testing.T) {
	args := queryArgs{"refund policy"}
	where, err := whereFilter(search.And(search.Eq("language", "English")), &args)
	require.NoError(t, err)
	assert.Equal(t, `("t"."language" = $2)`, where)
	assert.Equal(t, queryArgs{"refund policy", "English"}, args)
}

func TestWhereFilter_Nested(t *testing.T) {
	f := search.Or(
		search.And(search.Gte("year", 2020), search.Lte("year", 2024)),
		search.Not(search.Contains("tags", "draft")),
	)

	var args queryArgs
	where, err := whereFilter(f, &args)
	require.NoError(t, err)
	assert.Equal(t, `(("t"."year" >= $1 AND "t"."year" <= $2) OR NOT ($3 = ANY("t"."tags")))`, where)
	assert.Equal(t, queryArgs{2020, 2024, "draft"}, args)
}

func TestWhereFilter_EscapesIdentifiers(t *testing.T) {
	var args queryArgs
	where, err := whereFilter(search.Eq(`lang"; DROP TABLE x; --`, "en"), &args)
	require.NoError(t, err)
	assert.Equal(t, `"t"."lang""; DROP TABLE x; --" = $1`, where)
}

func TestWhereFilter_Invalid(t *testing.T) {
	var args queryArgs
	_, err := whereFilter(search.And(), &args)
	assert.Error(t, err)
}

func TestTableIdent(t *testing.T) {
	assert.Equal(t, `"docs_chunks"`, tableIdent("docs_chunks"))
	assert.Equal(t, `"kb"."docs_chunks"`, tableIdent("kb.docs_chunks"))
}

func testDef() *serviceDef {
	return &serviceDef{
		Name:            "faq",
		SourceTable:     "kb.faq_chunks",
		SearchColumn:    "chunk",
		KeyColumn:       "chunk_id",
		EmbeddingColumn: "embedding",
	}
}

func TestFTSQuery(t *testing.T) {
	sql, args, err := ftsQuery(testDef(), search.Request{
		Query:  "refund policy",
		Filter: search.And(search.Eq("language", "English")),
		Limit:  5,
	})
	require.NoError(t, err)

	assert.Contains(t, sql, `FROM "kb"."faq_chunks" t`)
	assert.Contains(t, sql, `to_tsvector('english', "t"."chunk") @@ websearch_to_tsquery('english', $1)`)
	assert.Contains(t, sql, `AND ("t"."language" = $2)`)
	assert.Contains(t, sql, "LIMIT $3")
	assert.Equal(t, []any{"refund policy", "English", 5}, args)
}

func TestVectorQuery(t *testing.T) {
	sql, args, err := vectorQuery(testDef(), search.Request{Query: "q", Limit: 3}, []float32{0.1, 0.2})
	require.NoError(t, err)

	assert.Contains(t, sql, `ORDER BY "t"."embedding" <=> $1`)
	assert.Contains(t, sql, "AND TRUE")
	assert.Contains(t, sql, "LIMIT $2")
	require.Len(t, args, 2)
	assert.Equal(t, pgvector.NewVector([]float32{0.1, 0.2}).Slice(), args[0].(pgvector.Vector).Slice())
	assert.Equal(t, 3, args[1])
}

func TestProject(t *testing.T) {
	doc := search.Record{"chunk": "text", "relative_path": "a.pdf", "embedding": "[0.1]", "chunk_id": 1}

	got := project(doc, []string{"chunk", "file_url", "relative_path"}, "embedding")
	assert.Equal(t, search.Record{"chunk": "text", "relative_path": "a.pdf"}, got)

	all := project(doc, nil, "embedding")
	assert.NotContains(t, all, "embedding")
	assert.Len(t, all, 3)
}

func TestSearch_RejectsBadRequests(t *testing.T) {
	s := NewStore(&fakeDB{}, nil, 60)

	_, err := s.Search(context.Background(), search.Request{Service: "faq", Query: "q", Limit: 0})
	assert.Error(t, err)

	_, err = s.Search(context.Background(), search.Request{Service: "faq", Query: "q", Limit: 1, Filter: search.Not(nil)})
	assert.Error(t, err)
}

// fakeDB answers QueryRow from a canned row; Query is not expected.
type fakeDB struct {
	row     fakeRow
	lastSQL string
	args    []any
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, pgx.ErrTxClosed
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL = sql
	f.args = args
	return f.row
}

type fakeRow struct {
	values []string
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(*string)) = r.values[i]
	}
	return nil
}

func TestDescribeService(t *testing.T) {
	db := &fakeDB{row: fakeRow{values: []string{"faq", "kb.faq_chunks", "chunk", "chunk_id", ""}}}
	s := NewStore(db, nil, 60)

	d, err := s.DescribeService(context.Background(), "faq")
	require.NoError(t, err)
	assert.Equal(t, search.Descriptor{Name: "faq", SearchColumn: "chunk"}, d)
	assert.Equal(t, []any{"faq"}, db.args)
	assert.True(t, strings.Contains(db.lastSQL, "FROM search_services"))
}

func TestDescribeService_NotFound(t *testing.T) {
	s := NewStore(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}}, nil, 60)

	_, err := s.DescribeService(context.Background(), "gone")
	assert.ErrorIs(t, err, search.ErrServiceNotFound)
}

func TestSearch_UnknownServiceSkipsQueries(t *testing.T) {
	s := NewStore(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}}, nil, 60)

	_, err := s.Search(context.Background(), search.Request{Service: "gone", Query: "q", Limit: 1})
	assert.ErrorIs(t, err, search.ErrServiceNotFound)
}

func TestEmbedClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"refund policy"}, req.Texts)
		w.Write([]byte(`{"embeddings":[[0.5,0.25]]}`))
	}))
	defer srv.Close()

	vec, err := NewEmbedClient(srv.URL).Embed(context.Background(), "refund policy")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
}

func TestEmbedClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.Write([]byte(`{"embeddings":[]}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("model loading"))
	}))
	defer srv.Close()

	_, err := NewEmbedClient(srv.URL+"/empty").Embed(context.Background(), "q")
	assert.Error(t, err)

	_, err = NewEmbedClient(srv.URL).Embed(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
