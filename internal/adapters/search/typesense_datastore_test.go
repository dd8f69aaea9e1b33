package search

import (
	"context"
	"math"
	"testing"

	"github.com/ghxstship/search-service/internal/adapters/database"
	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/repositories"
	apperrors "github.com/ghxstship/search-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/typesense/typesense-go/v2/typesense/api"
)

func TestBuildSearchParams(t *testing.T) {
	t.Run("exact strategy shape", func(t *testing.T) {
		q := repositories.Query{
			Table: "companies",
			Where: append([]repositories.Predicate{
				repositories.Or{Predicates: []repositories.Predicate{
					repositories.Contains{Field: "name", Value: "acme"},
					repositories.Contains{Field: "description", Value: "acme"},
				}},
			}, repositories.FilterPredicates(entities.Filters{"category": []any{"audio", "video"}, "active": true})...),
			Order:     &repositories.Ordering{Field: "rating", Descending: true},
			Offset:    20,
			Limit:     10,
			WithCount: true,
		}

		params, skip, err := buildSearchParams(q, []string{"name"}, "fts")
		require.NoError(t, err)

		assert.Equal(t, "acme", *params.Q)
		assert.Equal(t, "name,description", *params.QueryBy)
		assert.Equal(t, "active:=true && category:=[`audio`,`video`]", *params.FilterBy)
		assert.Equal(t, "rating:desc", *params.SortBy)
		assert.Equal(t, 3, *params.Page)
		assert.Equal(t, 10, *params.PerPage)
		assert.Zero(t, skip)
	})

	t.Run("index column falls back to default fields", func(t *testing.T) {
		q := repositories.Query{
			Table: "assets",
			Where: []repositories.Predicate{repositories.TextSearch{Field: "fts", Query: "truss"}},
		}
		params, _, err := buildSearchParams(q, []string{"name", "tags"}, "fts")
		require.NoError(t, err)
		assert.Equal(t, "name,tags", *params.QueryBy)
		assert.Nil(t, params.FilterBy)
		assert.Equal(t, maxPerPage, *params.PerPage)
	})

	t.Run("named text field", func(t *testing.T) {
		q := repositories.Query{
			Table: "assets",
			Where: []repositories.Predicate{repositories.TextSearch{Field: "notes", Query: "truss"}},
		}
		params, _, err := buildSearchParams(q, []string{"name"}, "fts")
		require.NoError(t, err)
		assert.Equal(t, "notes", *params.QueryBy)
	})

	t.Run("unaligned offset", func(t *testing.T) {
		params, skip, err := buildSearchParams(repositories.Query{Offset: 5, Limit: 10}, []string{"name"}, "fts")
		require.NoError(t, err)
		assert.Equal(t, 1, *params.Page)
		assert.Equal(t, 15, *params.PerPage)
		assert.Equal(t, 5, skip)

		_, _, err = buildSearchParams(repositories.Query{Offset: 245, Limit: 10}, []string{"name"}, "fts")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})

	t.Run("saturated offset is unreachable", func(t *testing.T) {
		_, _, err := buildSearchParams(repositories.Query{Offset: math.MaxInt, Limit: 2}, []string{"name"}, "fts")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		params, _, err := buildSearchParams(repositories.Query{Limit: math.MaxInt}, []string{"name"}, "fts")
		require.NoError(t, err)
		assert.Equal(t, 1, *params.Page)
		assert.Equal(t, maxPerPage, *params.PerPage)
	})

	t.Run("mixed or is rejected", func(t *testing.T) {
		q := repositories.Query{Where: []repositories.Predicate{repositories.Or{Predicates: []repositories.Predicate{
			repositories.Contains{Field: "name", Value: "a"},
			repositories.Eq{Field: "id", Value: 1},
		}}}}
		_, _, err := buildSearchParams(q, []string{"name"}, "fts")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestFilterLiteral(t *testing.T) {
	assert.Equal(t, "`a b`", filterLiteral("a b"))
	assert.Equal(t, "`ab`", filterLiteral("a`b"))
	assert.Equal(t, "42", filterLiteral(42.0))
	assert.Equal(t, "false", filterLiteral(false))
}

type recordingWriter struct {
	schemas []string
	docs    map[string][]map[string]interface{}
}

func (w *recordingWriter) EnsureCollection(ctx context.Context, schema *api.CollectionSchema) error {
	w.schemas = append(w.schemas, schema.Name)
	return nil
}

func (w *recordingWriter) Upsert(ctx context.Context, collection string, document map[string]interface{}) error {
	if w.docs == nil {
		w.docs = make(map[string][]map[string]interface{})
	}
	w.docs[collection] = append(w.docs[collection], document)
	return nil
}

func TestTypesenseIndexer_IndexTable(t *testing.T) {
	source := database.NewMemoryDatastore()
	source.Put("assets",
		entities.Row{"id": 3, "name": "Truss 2m", "notes": nil},
		entities.Row{"id": 1, "name": "Truss 3m"},
		entities.Row{"id": 2, "name": "Chain hoist"},
	)
	writer := &recordingWriter{}

	written, err := NewTypesenseIndexer(source, writer, 2).IndexTable(context.Background(), "assets")
	require.NoError(t, err)

	assert.Equal(t, 3, written)
	assert.Equal(t, []string{"assets"}, writer.schemas)
	require.Len(t, writer.docs["assets"], 3)
	assert.Equal(t, "1", writer.docs["assets"][0]["id"], "ids are strings ordered by id")
	assert.NotContains(t, writer.docs["assets"][2], "notes", "null columns are skipped")
}

func TestTruncated(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		found int
		want  bool
	}{
		{"unpaginated within one page", 0, maxPerPage, false},
		{"unpaginated beyond one page", 0, maxPerPage + 1, true},
		{"oversized page", 1000, 600, true},
		{"regular page", 20, 10000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncated(repositories.Query{Limit: tt.limit}, tt.found))
		})
	}
}
