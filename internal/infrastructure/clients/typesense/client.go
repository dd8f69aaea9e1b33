package typesense

import (
	"context"
	"fmt"
	"time"

	"github.com/ghxstship/search-service/pkg/config"
	"github.com/ghxstship/search-service/pkg/retry"
	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
)

// Client represents a Typesense client
type Client struct {
	client *typesense.Client
}

// NewClient creates a Typesense client and waits for the health endpoint
func NewClient(ctx context.Context, cfg *config.TypesenseConfig) (*Client, error) {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)

	retryConfig := retry.DefaultConfig().WithOnRetry(func(attempt int, err error, nextDelay time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", nextDelay).Msg("Typesense health check failed")
	})
	err := retry.Do(ctx, retryConfig, "Typesense", func(ctx context.Context) error {
		healthy, err := client.Health(ctx, 2*time.Second)
		if err != nil {
			return err
		}
		if !healthy {
			return fmt.Errorf("typesense reported unhealthy")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Typesense after retries: %w", err)
	}

	log.Info().Str("url", cfg.URL).Msg("Connected to Typesense")
	return &Client{client: client}, nil
}

// Client returns the underlying Typesense client
func (c *Client) Client() *typesense.Client {
	return c.client
}

// EnsureCollection creates the collection when it does not exist yet
func (c *Client) EnsureCollection(ctx context.Context, schema *api.CollectionSchema) error {
	if _, err := c.client.Collection(schema.Name).Retrieve(ctx); err == nil {
		return nil
	}

	if _, err := c.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("failed to create typesense collection %s: %w", schema.Name, err)
	}

	log.Info().Str("collection", schema.Name).Msg("Created Typesense collection")
	return nil
}

// DropCollection deletes a collection and all of its documents
func (c *Client) DropCollection(ctx context.Context, name string) error {
	if _, err := c.client.Collection(name).Delete(ctx); err != nil {
		return fmt.Errorf("failed to drop typesense collection %s: %w", name, err)
	}
	return nil
}

// Upsert indexes one document
func (c *Client) Upsert(ctx context.Context, collection string, document map[string]interface{}) error {
	_, err := c.client.Collection(collection).Documents().Upsert(ctx, document)
	return err
}

// Search runs a search against a collection
func (c *Client) Search(ctx context.Context, collection string, params *api.SearchCollectionParams) (*api.SearchResult, error) {
	return c.client.Collection(collection).Documents().Search(ctx, params)
}
