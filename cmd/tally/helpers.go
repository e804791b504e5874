package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/tallyfin/tally/internal/embedding"
	"github.com/tallyfin/tally/internal/engine"
	"github.com/tallyfin/tally/internal/fallback"
	"github.com/tallyfin/tally/internal/model"
	"github.com/tallyfin/tally/internal/rules"
	"github.com/tallyfin/tally/internal/service"
	"github.com/tallyfin/tally/internal/storage"
	"github.com/tallyfin/tally/internal/taxonomy"
)

// initStorage opens the database and brings the schema current.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "tally", "tally.db")
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initMatcher builds the embedding matcher when an API key is configured,
// nil otherwise. The engine treats a nil matcher as a disabled source.
func initMatcher(store service.Storage) (*embedding.Matcher, error) {
	apiKey := viper.GetString("embeddings.api_key")
	if apiKey == "" {
		return nil, nil
	}
	client, err := embedding.NewOpenAIClient(apiKey, viper.GetString("embeddings.base_url"))
	if err != nil {
		return nil, err
	}
	return embedding.NewMatcher(store, client, slog.Default()), nil
}

// initFallback builds the Pass-2 classifier when an API key is configured.
func initFallback(tax service.Taxonomy) (*fallback.Classifier, error) {
	apiKey := viper.GetString("llm.api_key")
	if apiKey == "" {
		return nil, nil
	}
	gen, err := fallback.NewOpenAIGenerator(fallback.GeneratorConfig{
		APIKey:  apiKey,
		BaseURL: viper.GetString("llm.base_url"),
		Model:   viper.GetString("llm.model"),
	})
	if err != nil {
		return nil, err
	}
	cfg := fallback.Config{
		RequestsPerMinute: viper.GetInt("llm.requests_per_minute"),
		MaxRetries:        viper.GetInt("llm.max_retries"),
	}
	return fallback.NewClassifier(gen, tax, cfg, slog.Default()), nil
}

// initEngine assembles the categorizer from configuration: bundled taxonomy,
// default rule tables plus promoted vendor rules, and the optional embedding
// and fallback sources.
func initEngine(ctx context.Context, store *storage.SQLiteStorage, orgID string) (*engine.Categorizer, *taxonomy.Catalog, error) {
	tax := taxonomy.Default()

	active, err := store.GetActiveRuleVersions(ctx, orgID, model.RuleTypeVendor)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load vendor rules: %w", err)
	}
	patterns := rules.FromRuleVersions(active, func(id string) string {
		if cat, ok := tax.GetByID(id); ok {
			return cat.Name
		}
		return id
	})
	vendors := rules.NewVendorMatcher(patterns)

	for _, conflict := range vendors.Conflicts() {
		slog.Warn("vendor rules conflict",
			"pattern_a", conflict.PatternA, "category_a", conflict.CategoryA,
			"pattern_b", conflict.PatternB, "category_b", conflict.CategoryB)
	}

	matcher, err := initMatcher(store)
	if err != nil {
		return nil, nil, err
	}
	classifier, err := initFallback(tax)
	if err != nil {
		return nil, nil, err
	}

	cat, err := engine.New(engine.Config{
		Taxonomy:   tax,
		Store:      store,
		Vendors:    vendors,
		Embeddings: matcher,
		Fallback:   classifier,
		Logger:     slog.Default(),
	})
	if err != nil {
		return nil, nil, err
	}
	return cat, tax, nil
}

func requireOrg() (string, error) {
	orgID := strings.TrimSpace(viper.GetString("org"))
	if orgID == "" {
		return "", fmt.Errorf("an organization id is required (--org or TALLY_ORG)")
	}
	return orgID, nil
}
