package openapi

import (
	"fmt"
	"net/url"

	"github.com/hatchpad/connector-engine/pkg/jsonutil"
)

// Config holds the non-secret settings for a generic API connection.
type Config struct {
	// SpecURL points at the OpenAPI document describing the API.
	SpecURL string
	// Format hints the document encoding: "json", "yaml", or "" to sniff.
	Format string
	// AuthHeader is the header the api key is sent in, default "Authorization".
	AuthHeader string
	// AuthScheme is prefixed to the key when AuthHeader is Authorization,
	// default "Bearer".
	AuthScheme string
}

// Secret holds the credential blob for a generic API connection.
// The key is optional: public specification documents need none.
type Secret struct {
	APIKey string
}

// ParseConfig extracts and validates the typed config from the stored map.
func ParseConfig(config map[string]any) (*Config, error) {
	cfg := &Config{
		SpecURL:    jsonutil.StringField(config, "spec_url"),
		Format:     jsonutil.StringField(config, "format"),
		AuthHeader: jsonutil.StringField(config, "auth_header"),
		AuthScheme: jsonutil.StringField(config, "auth_scheme"),
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "Authorization"
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.SpecURL == "" {
		return nil, fmt.Errorf("spec_url is required")
	}
	u, err := url.Parse(cfg.SpecURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("spec_url must be a valid http(s) URL")
	}
	switch cfg.Format {
	case "", "json", "yaml":
	default:
		return nil, fmt.Errorf("format must be json or yaml")
	}

	return cfg, nil
}

// ParseSecret extracts the typed secret from the decrypted map.
func ParseSecret(secret map[string]any) (*Secret, error) {
	return &Secret{
		APIKey: jsonutil.StringField(secret, "api_key"),
	}, nil
}
