package vercel

import (
	"fmt"
	"strings"

	"github.com/hatchpad/connector-engine/pkg/jsonutil"
)

// DefaultAPIBaseURL is the public Vercel REST API endpoint.
const DefaultAPIBaseURL = "https://api.vercel.com"

// Config holds the non-secret settings for a Vercel connection.
type Config struct {
	// TeamID scopes API calls to a team; empty means the personal account.
	TeamID string
	// APIBaseURL overrides the API endpoint. Tests point it at a stub server.
	APIBaseURL string
	// DeploymentsPerProject caps how many recent deployments are mirrored
	// per project.
	DeploymentsPerProject int
}

// Secret holds the credential blob for a Vercel connection.
type Secret struct {
	// Token is a Vercel access token with read scope.
	Token string
}

// ParseConfig extracts the typed config from the stored map.
func ParseConfig(config map[string]any) (*Config, error) {
	cfg := &Config{
		TeamID:     jsonutil.StringField(config, "team_id"),
		APIBaseURL: strings.TrimRight(jsonutil.StringField(config, "api_base_url"), "/"),
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.DeploymentsPerProject = 10

	return cfg, nil
}

// ParseSecret extracts and validates the typed secret from the decrypted map.
func ParseSecret(secret map[string]any) (*Secret, error) {
	s := &Secret{
		Token: jsonutil.StringField(secret, "token"),
	}
	if s.Token == "" {
		return nil, fmt.Errorf("access token is required")
	}
	return s, nil
}
