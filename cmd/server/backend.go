package main

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/config"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/cortex"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/pgsearch"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/search"
	"github.com/jharjadi/pro-rag/chat-api-go/internal/service"
)

// backend bundles the external collaborators selected by configuration.
type backend struct {
	catalog   search.Catalog
	searcher  search.Searcher
	completer service.Completer
}

func newBackend(cfg *config.Config, pool *pgxpool.Pool) (*backend, error) {
	var b backend

	var cortexClient *cortex.Client
	if cfg.UsesCortex() {
		auth, err := cortexAuth(cfg)
		if err != nil {
			return nil, err
		}
		cortexClient = cortex.NewClient(cortex.Config{
			Account:   cfg.SnowflakeAccount,
			BaseURL:   cfg.CortexBaseURL,
			Database:  cfg.SnowflakeDatabase,
			Schema:    cfg.SnowflakeSchema,
			Warehouse: cfg.SnowflakeWarehouse,
			Role:      cfg.SnowflakeRole,
			Timeout:   cfg.CortexTimeout(),
			Auth:      auth,
		})
	}

	switch cfg.SearchBackend {
	case config.BackendCortex:
		b.catalog, b.searcher = cortexClient, cortexClient
		slog.Info("search backend: cortex", "database", cortexClient.Database(), "schema", cortexClient.Schema())
	case config.BackendPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres search backend needs a database")
		}
		var embedder pgsearch.Embedder
		if cfg.EmbedEndpoint != "" {
			embedder = pgsearch.NewEmbedClient(cfg.EmbedEndpoint)
		}
		store := pgsearch.NewStore(pool, embedder, cfg.RRFK)
		b.catalog, b.searcher = store, store
		slog.Info("search backend: postgres", "vector_leg", embedder != nil, "rrf_k", cfg.RRFK)
	default:
		return nil, fmt.Errorf("unsupported search backend %q", cfg.SearchBackend)
	}

	switch cfg.LLMProvider {
	case config.ProviderCortex:
		b.completer = cortexClient
	case config.ProviderAnthropic:
		b.completer = service.NewAnthropicCompleter(cfg.AnthropicAPIKey, cfg.LLMMaxTokens)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}

	return &b, nil
}

// cortexAuth prefers a programmatic access token and falls back to key-pair
// JWT authentication.
func cortexAuth(cfg *config.Config) (cortex.Authenticator, error) {
	if cfg.SnowflakeToken != "" {
		return cortex.TokenAuth{Token: cfg.SnowflakeToken}, nil
	}
	key, err := cortex.LoadPrivateKey(cfg.SnowflakePrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load snowflake private key: %w", err)
	}
	auth, err := cortex.NewKeyPairAuth(cfg.SnowflakeAccount, cfg.SnowflakeUser, key)
	if err != nil {
		return nil, fmt.Errorf("snowflake key-pair auth: %w", err)
	}
	return auth, nil
}
