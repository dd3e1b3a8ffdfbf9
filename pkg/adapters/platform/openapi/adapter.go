// Package openapi mirrors any HTTP API described by an OpenAPI document:
// endpoints, schemas, and security schemes become assets.
package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hatchpad/connector-engine/pkg/adapters/platform"
	"github.com/hatchpad/connector-engine/pkg/logging"
	"github.com/hatchpad/connector-engine/pkg/models"
)

const maxResponseBytes = 8 << 20

// httpMethods are the operation keys recognized inside a path item.
var httpMethods = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

// Adapter implements the platform contract for OpenAPI-described services.
type Adapter struct {
	client *http.Client
	logger *zap.Logger
}

// New creates an OpenAPI adapter.
func New(logger *zap.Logger) *Adapter {
	return &Adapter{
		client: &http.Client{},
		logger: logger.Named("openapi"),
	}
}

// Kind returns the platform kind this adapter serves.
func (a *Adapter) Kind() models.PlatformKind {
	return models.PlatformOpenAPI
}

// ValidateConnection fetches and parses the specification document.
func (a *Adapter) ValidateConnection(ctx context.Context, config, secret map[string]any) (*platform.ValidationResult, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return &platform.ValidationResult{Valid: false, Error: err.Error()}, nil
	}
	sec, err := ParseSecret(secret)
	if err != nil {
		return &platform.ValidationResult{Valid: false, Error: err.Error()}, nil
	}

	doc, fetchErr := a.fetchSpec(ctx, cfg, sec)
	if fetchErr != nil {
		return &platform.ValidationResult{Valid: false, Error: fetchErr.Error()}, nil
	}

	info := asMap(doc["info"])
	return &platform.ValidationResult{
		Valid: true,
		Metadata: map[string]any{
			"title":      asString(info["title"]),
			"version":    asString(info["version"]),
			"path_count": len(asMap(doc["paths"])),
		},
	}, nil
}

// Sync normalizes the specification into endpoint, schema, and
// security-scheme assets. Malformed path items are skipped with a warning.
func (a *Adapter) Sync(ctx context.Context, config, secret map[string]any) (*platform.SyncResult, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	sec, err := ParseSecret(secret)
	if err != nil {
		return nil, err
	}

	doc, err := a.fetchSpec(ctx, cfg, sec)
	if err != nil {
		return nil, err
	}

	result := &platform.SyncResult{
		Stats: map[string]int{"endpoints": 0, "schemas": 0, "security_schemes": 0},
	}

	a.collectEndpoints(doc, result)
	a.collectSchemas(doc, result)
	a.collectSecuritySchemes(doc, result)

	return result, nil
}

func (a *Adapter) collectEndpoints(doc map[string]any, result *platform.SyncResult) {
	paths := asMap(doc["paths"])

	pathKeys := make([]string, 0, len(paths))
	for p := range paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	for _, p := range pathKeys {
		item, ok := paths[p].(map[string]any)
		if !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("path item %q is malformed and was skipped", p))
			continue
		}

		for _, method := range httpMethods {
			opRaw, ok := item[method]
			if !ok {
				continue
			}
			op := asMap(opRaw)

			upper := strings.ToUpper(method)
			result.Assets = append(result.Assets, platform.AssetRecord{
				Type: "endpoint",
				Key:  upper + " " + p,
				Name: endpointName(op, upper, p),
				Data: map[string]any{
					"method":       upper,
					"path":         p,
					"summary":      asString(op["summary"]),
					"operation_id": asString(op["operationId"]),
					"deprecated":   op["deprecated"] == true,
					"tags":         asStringSlice(op["tags"]),
				},
			})
			result.Stats["endpoints"]++
		}
	}
}

func (a *Adapter) collectSchemas(doc map[string]any, result *platform.SyncResult) {
	// OpenAPI 3 keeps schemas under components; swagger 2 used definitions.
	schemas := asMap(asMap(doc["components"])["schemas"])
	if len(schemas) == 0 {
		schemas = asMap(doc["definitions"])
	}

	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		schema := asMap(schemas[name])
		result.Assets = append(result.Assets, platform.AssetRecord{
			Type: "schema",
			Key:  name,
			Name: name,
			Data: map[string]any{
				"type":           asString(schema["type"]),
				"description":    asString(schema["description"]),
				"property_count": len(asMap(schema["properties"])),
				"required":       asStringSlice(schema["required"]),
			},
		})
		result.Stats["schemas"]++
	}
}

func (a *Adapter) collectSecuritySchemes(doc map[string]any, result *platform.SyncResult) {
	schemes := asMap(asMap(doc["components"])["securitySchemes"])
	if len(schemes) == 0 {
		schemes = asMap(doc["securityDefinitions"])
	}

	names := make([]string, 0, len(schemes))
	for name := range schemes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		scheme := asMap(schemes[name])
		result.Assets = append(result.Assets, platform.AssetRecord{
			Type: "security_scheme",
			Key:  name,
			Name: name,
			Data: map[string]any{
				"type":   asString(scheme["type"]),
				"scheme": asString(scheme["scheme"]),
				"in":     asString(scheme["in"]),
				"name":   asString(scheme["name"]),
			},
		})
		result.Stats["security_schemes"]++
	}
}

// fetchSpec retrieves and decodes the specification document. The api key,
// when present, is attached using the configured header; the document must
// declare either an openapi or swagger version to be accepted.
func (a *Adapter) fetchSpec(ctx context.Context, cfg *Config, sec *Secret) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.SpecURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if sec.APIKey != "" {
		value := sec.APIKey
		if cfg.AuthHeader == "Authorization" && cfg.AuthScheme != "" {
			value = cfg.AuthScheme + " " + sec.APIKey
		}
		req.Header.Set(cfg.AuthHeader, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch specification: %s", logging.SanitizeError(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("authentication failed: the api key was rejected (HTTP %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("specification not found: check spec_url (HTTP 404)")
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected response fetching specification (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read specification: %s", logging.SanitizeError(err))
	}

	doc, err := decodeSpec(body, cfg.Format)
	if err != nil {
		return nil, err
	}

	if asString(doc["openapi"]) == "" && asString(doc["swagger"]) == "" {
		return nil, fmt.Errorf("document does not declare an openapi or swagger version")
	}

	return doc, nil
}

// decodeSpec parses the document body. JSON is tried first unless the
// format hint says yaml; YAML is a superset of JSON so the yaml decoder is
// the fallback either way.
func decodeSpec(body []byte, format string) (map[string]any, error) {
	if format != "yaml" {
		var doc map[string]any
		if err := json.Unmarshal(body, &doc); err == nil {
			return doc, nil
		}
		if format == "json" {
			return nil, fmt.Errorf("could not parse specification as JSON")
		}
	}

	var doc map[string]any
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("could not parse specification as YAML: %v", err)
	}
	return doc, nil
}

func endpointName(op map[string]any, method, path string) string {
	if summary := asString(op["summary"]); summary != "" {
		return summary
	}
	return method + " " + path
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
