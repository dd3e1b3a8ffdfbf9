// Package vercel mirrors the state of a Vercel account: projects and their
// most recent deployments.
package vercel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/hatchpad/connector-engine/pkg/adapters/platform"
	"github.com/hatchpad/connector-engine/pkg/logging"
	"github.com/hatchpad/connector-engine/pkg/models"
)

const maxResponseBytes = 4 << 20

// Adapter implements the platform contract for Vercel accounts.
type Adapter struct {
	client *http.Client
	logger *zap.Logger
}

// New creates a Vercel adapter.
func New(logger *zap.Logger) *Adapter {
	return &Adapter{
		client: &http.Client{},
		logger: logger.Named("vercel"),
	}
}

// Kind returns the platform kind this adapter serves.
func (a *Adapter) Kind() models.PlatformKind {
	return models.PlatformVercel
}

type userResponse struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}

type projectsResponse struct {
	Projects []project `json:"projects"`
}

type project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Framework string `json:"framework"`
	UpdatedAt int64  `json:"updatedAt"`
	Targets   map[string]struct {
		ID string `json:"id"`
	} `json:"targets"`
}

type deploymentsResponse struct {
	Deployments []deployment `json:"deployments"`
}

type deployment struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	State   string `json:"state"`
	Target  string `json:"target"`
	Created int64  `json:"created"`
}

// ValidateConnection probes the authenticated user endpoint.
func (a *Adapter) ValidateConnection(ctx context.Context, config, secret map[string]any) (*platform.ValidationResult, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return &platform.ValidationResult{Valid: false, Error: err.Error()}, nil
	}
	sec, err := ParseSecret(secret)
	if err != nil {
		return &platform.ValidationResult{Valid: false, Error: err.Error()}, nil
	}

	var user userResponse
	if err := a.getJSON(ctx, cfg, sec, "/v2/user", nil, &user); err != nil {
		return &platform.ValidationResult{Valid: false, Error: err.Error()}, nil
	}

	return &platform.ValidationResult{
		Valid: true,
		Metadata: map[string]any{
			"username": user.User.Username,
			"user_id":  user.User.ID,
		},
	}, nil
}

// Sync pulls projects and recent deployments into asset records. A failed
// deployment listing for one project is a warning; the project asset is
// still produced.
func (a *Adapter) Sync(ctx context.Context, config, secret map[string]any) (*platform.SyncResult, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	sec, err := ParseSecret(secret)
	if err != nil {
		return nil, err
	}

	var projects projectsResponse
	if err := a.getJSON(ctx, cfg, sec, "/v9/projects", nil, &projects); err != nil {
		return nil, err
	}

	result := &platform.SyncResult{
		Stats: map[string]int{"projects": 0, "deployments": 0},
	}

	for _, p := range projects.Projects {
		result.Assets = append(result.Assets, platform.AssetRecord{
			Type: "project",
			Key:  p.ID,
			Name: p.Name,
			Data: map[string]any{
				"framework":  p.Framework,
				"updated_at": p.UpdatedAt,
			},
		})
		result.Stats["projects"]++

		deployments, depErr := a.fetchDeployments(ctx, cfg, sec, p.ID)
		if depErr != nil {
			a.logger.Warn("deployment enumeration failed",
				zap.String("project", p.Name),
				zap.String("error", logging.SanitizeError(depErr)))
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("deployments for project %q could not be enumerated: %s", p.Name, logging.SanitizeError(depErr)))
			continue
		}

		for _, d := range deployments {
			result.Assets = append(result.Assets, platform.AssetRecord{
				Type: "deployment",
				Key:  d.UID,
				Name: d.Name,
				Data: map[string]any{
					"project_id": p.ID,
					"url":        d.URL,
					"state":      d.State,
					"target":     d.Target,
					"created":    d.Created,
				},
			})
			result.Stats["deployments"]++
		}
	}

	return result, nil
}

func (a *Adapter) fetchDeployments(ctx context.Context, cfg *Config, sec *Secret, projectID string) ([]deployment, error) {
	query := url.Values{
		"projectId": {projectID},
		"limit":     {strconv.Itoa(cfg.DeploymentsPerProject)},
	}

	var resp deploymentsResponse
	if err := a.getJSON(ctx, cfg, sec, "/v6/deployments", query, &resp); err != nil {
		return nil, err
	}
	return resp.Deployments, nil
}

// getJSON performs an authenticated GET against the Vercel API, mapping
// status codes to the distinct error texts the run ledger surfaces.
func (a *Adapter) getJSON(ctx context.Context, cfg *Config, sec *Secret, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	if cfg.TeamID != "" {
		query.Set("teamId", cfg.TeamID)
	}

	endpoint := cfg.APIBaseURL + path
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+sec.Token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach Vercel API: %s", logging.SanitizeError(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("authentication failed: the access token was rejected (HTTP %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("resource not found: check the team id (HTTP 404)")
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected response from Vercel (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %s", logging.SanitizeError(err))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("could not parse Vercel response: %s", logging.SanitizeError(err))
	}

	return nil
}
