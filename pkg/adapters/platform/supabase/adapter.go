// Package supabase mirrors the state of a hosted Supabase project: database
// tables exposed through the PostgREST API, plus storage buckets.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/hatchpad/connector-engine/pkg/adapters/platform"
	"github.com/hatchpad/connector-engine/pkg/logging"
	"github.com/hatchpad/connector-engine/pkg/models"
)

const maxResponseBytes = 8 << 20 // REST schema documents for large projects run to a few MB

// Adapter implements the platform contract for Supabase projects.
type Adapter struct {
	client *http.Client
	logger *zap.Logger
}

// New creates a Supabase adapter. Call deadlines come from the caller's
// context; the client itself sets no timeout.
func New(logger *zap.Logger) *Adapter {
	return &Adapter{
		client: &http.Client{},
		logger: logger.Named("supabase"),
	}
}

// Kind returns the platform kind this adapter serves.
func (a *Adapter) Kind() models.PlatformKind {
	return models.PlatformSupabase
}

// restDoc is the subset of the PostgREST OpenAPI root document we consume.
// PostgREST serves a swagger 2.0 description of the exposed schema at /rest/v1/.
type restDoc struct {
	Swagger string `json:"swagger"`
	Info    struct {
		Title       string `json:"title"`
		Version     string `json:"version"`
		Description string `json:"description"`
	} `json:"info"`
	Definitions map[string]restDefinition `json:"definitions"`
}

type restDefinition struct {
	Description string                  `json:"description"`
	Required    []string                `json:"required"`
	Properties  map[string]restProperty `json:"properties"`
}

type restProperty struct {
	Type        string `json:"type"`
	Format      string `json:"format"`
	Description string `json:"description"`
}

type bucket struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Public    bool   `json:"public"`
	CreatedAt string `json:"created_at"`
}

// ValidateConnection probes the project's REST endpoint with the service key.
// Read-only; all failures fold into the result.
func (a *Adapter) ValidateConnection(ctx context.Context, config, secret map[string]any) (*platform.ValidationResult, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return &platform.ValidationResult{Valid: false, Error: err.Error()}, nil
	}
	sec, err := ParseSecret(secret)
	if err != nil {
		return &platform.ValidationResult{Valid: false, Error: err.Error()}, nil
	}

	doc, probeErr := a.fetchRestDoc(ctx, cfg, sec)
	if probeErr != nil {
		return &platform.ValidationResult{Valid: false, Error: probeErr.Error()}, nil
	}

	return &platform.ValidationResult{
		Valid: true,
		Metadata: map[string]any{
			"title":       doc.Info.Title,
			"version":     doc.Info.Version,
			"table_count": len(doc.Definitions),
		},
	}, nil
}

// Sync pulls the exposed tables and storage buckets into asset records.
// A bucket enumeration failure is a warning, not a sync failure.
func (a *Adapter) Sync(ctx context.Context, config, secret map[string]any) (*platform.SyncResult, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	sec, err := ParseSecret(secret)
	if err != nil {
		return nil, err
	}

	doc, err := a.fetchRestDoc(ctx, cfg, sec)
	if err != nil {
		return nil, err
	}

	result := &platform.SyncResult{
		Stats: map[string]int{"tables": 0, "buckets": 0},
	}

	names := make([]string, 0, len(doc.Definitions))
	for name := range doc.Definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := doc.Definitions[name]
		result.Assets = append(result.Assets, tableAsset(cfg.Schema, name, def))
		result.Stats["tables"]++
	}

	buckets, bucketErr := a.fetchBuckets(ctx, cfg, sec)
	if bucketErr != nil {
		a.logger.Warn("bucket enumeration failed",
			zap.String("url", logging.SanitizeURL(cfg.URL)),
			zap.String("error", logging.SanitizeError(bucketErr)))
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("storage buckets could not be enumerated: %s", logging.SanitizeError(bucketErr)))
	} else {
		for _, b := range buckets {
			result.Assets = append(result.Assets, platform.AssetRecord{
				Type: "bucket",
				Key:  b.ID,
				Name: b.Name,
				Data: map[string]any{
					"public":     b.Public,
					"created_at": b.CreatedAt,
				},
			})
			result.Stats["buckets"]++
		}
	}

	return result, nil
}

func tableAsset(schema, name string, def restDefinition) platform.AssetRecord {
	required := make(map[string]bool, len(def.Required))
	for _, r := range def.Required {
		required[r] = true
	}

	colNames := make([]string, 0, len(def.Properties))
	for col := range def.Properties {
		colNames = append(colNames, col)
	}
	sort.Strings(colNames)

	columns := make([]map[string]any, 0, len(colNames))
	for _, col := range colNames {
		prop := def.Properties[col]
		columns = append(columns, map[string]any{
			"name":     col,
			"type":     prop.Type,
			"format":   prop.Format,
			"required": required[col],
		})
	}

	return platform.AssetRecord{
		Type: "table",
		Key:  schema + "." + name,
		Name: name,
		Data: map[string]any{
			"schema":       schema,
			"description":  def.Description,
			"columns":      columns,
			"column_count": len(columns),
		},
	}
}

// fetchRestDoc retrieves the PostgREST root document, distinguishing
// authentication failure, misconfiguration, and transport failure in the
// error text since it becomes user-visible.
func (a *Adapter) fetchRestDoc(ctx context.Context, cfg *Config, sec *Secret) (*restDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL+"/rest/v1/", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", sec.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+sec.ServiceKey)
	req.Header.Set("Accept", "application/openapi+json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach Supabase project: %s", logging.SanitizeError(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("authentication failed: the service key was rejected (HTTP %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("REST endpoint not found: check the project URL")
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected response from Supabase (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %s", logging.SanitizeError(err))
	}

	var doc restDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("could not parse schema document: %s", logging.SanitizeError(err))
	}

	return &doc, nil
}

func (a *Adapter) fetchBuckets(ctx context.Context, cfg *Config, sec *Secret) ([]bucket, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL+"/storage/v1/bucket", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", sec.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+sec.ServiceKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach storage API: %s", logging.SanitizeError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("storage API returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %s", logging.SanitizeError(err))
	}

	var buckets []bucket
	if err := json.Unmarshal(body, &buckets); err != nil {
		return nil, fmt.Errorf("could not parse bucket list: %s", logging.SanitizeError(err))
	}

	return buckets, nil
}
