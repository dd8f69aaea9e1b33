package search

import (
	"context"
	"fmt"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/repositories"
	tsclient "github.com/ghxstship/search-service/internal/infrastructure/clients/typesense"
	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense/api"
)

// DocumentWriter is the part of the Typesense client the indexer needs
type DocumentWriter interface {
	EnsureCollection(ctx context.Context, schema *api.CollectionSchema) error
	Upsert(ctx context.Context, collection string, document map[string]interface{}) error
}

var _ DocumentWriter = (*tsclient.Client)(nil)

// TypesenseIndexer copies table rows from a Datastore into same-named collections
type TypesenseIndexer struct {
	source    repositories.Datastore
	writer    DocumentWriter
	batchSize int
}

// NewTypesenseIndexer creates an indexer reading batchSize rows per query
func NewTypesenseIndexer(source repositories.Datastore, writer DocumentWriter, batchSize int) *TypesenseIndexer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &TypesenseIndexer{source: source, writer: writer, batchSize: batchSize}
}

// IndexTable upserts every row of table and returns the number of documents written
func (i *TypesenseIndexer) IndexTable(ctx context.Context, table string) (int, error) {
	schema := &api.CollectionSchema{
		Name:   table,
		Fields: []api.Field{{Name: ".*", Type: "auto"}},
	}
	if err := i.writer.EnsureCollection(ctx, schema); err != nil {
		return 0, err
	}

	written := 0
	for offset := 0; ; offset += i.batchSize {
		rs, err := i.source.Select(ctx, repositories.Query{
			Table:  table,
			Order:  &repositories.Ordering{Field: "id"},
			Offset: offset,
			Limit:  i.batchSize,
		})
		if err != nil {
			return written, err
		}

		for _, row := range rs.Rows {
			if err := i.writer.Upsert(ctx, table, document(row)); err != nil {
				return written, fmt.Errorf("failed to index %s/%s: %w", table, row.ID(), err)
			}
			written++
		}

		log.Info().Str("table", table).Int("written", written).Msg("Indexed batch")

		if len(rs.Rows) < i.batchSize {
			return written, nil
		}
	}
}

// document converts a row into a Typesense document. Typesense requires a string id.
func document(row entities.Row) map[string]interface{} {
	doc := make(map[string]interface{}, len(row))
	for k, v := range row {
		if v == nil {
			continue
		}
		doc[k] = v
	}
	doc["id"] = row.ID()
	return doc
}
