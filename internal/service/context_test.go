package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
)

func TestFormatContext_SingleRecord(t *testing.T) {
	records := []search.Record{{"chunk": "Refunds within 30 days."}}

	assert.Equal(t, "Context document 1: Refunds within 30 days. \n\n", FormatContext(records, "chunk"))
}

func TestFormatContext_NumberedInOrder(t *testing.T) {
	records := []search.Record{
		{"chunk": "first"},
		{"chunk": "second"},
		{"chunk": "third"},
	}

	got := FormatContext(records, "chunk")
	assert.Equal(t, "Context document 1: first \n\nContext document 2: second \n\nContext document 3: third \n\n", got)
	assert.Equal(t, len(records), strings.Count(got, "Context document "))
}

func TestFormatContext_Empty(t *testing.T) {
	assert.Empty(t, FormatContext(nil, "chunk"))
}

func TestFormatContext_SearchColumnCase(t *testing.T) {
	// descriptors report upper-case columns; results use lower-case keys
	assert.Equal(t, "Context document 1: lower \n\n", FormatContext([]search.Record{{"chunk": "lower"}}, "CHUNK"))
	assert.Equal(t, "Context document 1: upper \n\n", FormatContext([]search.Record{{"CHUNK": "upper"}}, "CHUNK"))
}

func TestFormatContext_MissingAndNonStringValues(t *testing.T) {
	records := []search.Record{
		{"other": "x"},
		{"chunk": nil},
		{"chunk": 42.5},
	}

	want := "Context document 1:  \n\nContext document 2:  \n\nContext document 3: 42.5 \n\n"
	assert.Equal(t, want, FormatContext(records, "chunk"))
}
