package supabase

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hatchpad/connector-engine/pkg/jsonutil"
)

// Config holds the non-secret settings for a Supabase connection.
type Config struct {
	// URL is the project base URL, e.g. https://abcdefgh.supabase.co
	URL string
	// Schema is the exposed PostgREST schema, defaults to "public".
	Schema string
}

// Secret holds the credential blob for a Supabase connection.
type Secret struct {
	// ServiceKey is the service-role API key.
	ServiceKey string
}

// ParseConfig extracts and validates the typed config from the stored map.
func ParseConfig(config map[string]any) (*Config, error) {
	cfg := &Config{
		URL:    strings.TrimRight(jsonutil.StringField(config, "url"), "/"),
		Schema: jsonutil.StringField(config, "schema"),
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("project url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("project url must be a valid http(s) URL")
	}

	return cfg, nil
}

// ParseSecret extracts and validates the typed secret from the decrypted map.
func ParseSecret(secret map[string]any) (*Secret, error) {
	s := &Secret{
		ServiceKey: jsonutil.StringField(secret, "service_key"),
	}
	if s.ServiceKey == "" {
		return nil, fmt.Errorf("service_key is required")
	}
	return s, nil
}
