// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/EckmanTechLLC/flux/internal/credentials"
	"github.com/EckmanTechLLC/flux/internal/event"
	"github.com/EckmanTechLLC/flux/internal/logging"
)

const githubBaseURL = "https://api.github.com"

// GitHubConnector polls the GitHub REST API and emits events for
// repositories, open issues, and notifications.
type GitHubConnector struct {
	baseURL string
	client  *http.Client
}

// NewGitHubConnector creates a connector against the real GitHub API.
func NewGitHubConnector() *GitHubConnector {
	return NewGitHubConnectorWithBaseURL(githubBaseURL)
}

// NewGitHubConnectorWithBaseURL creates a connector with a custom API
// base URL (for testing).
func NewGitHubConnectorWithBaseURL(baseURL string) *GitHubConnector {
	return &GitHubConnector{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *GitHubConnector) Name() string { return "github" }

func (c *GitHubConnector) OAuthConfig() OAuthConfig {
	return OAuthConfig{
		AuthURL:  "https://github.com/login/oauth/authorize",
		TokenURL: "https://github.com/login/oauth/access_token",
		Scopes:   []string{"repo", "read:user", "notifications"},
	}
}

func (c *GitHubConnector) PollInterval() time.Duration {
	return 5 * time.Minute
}

// API response shapes (subset of fields Flux projects).

type githubRepo struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	FullName        string  `json:"full_name"`
	Description     *string `json:"description"`
	Language        *string `json:"language"`
	StargazersCount int     `json:"stargazers_count"`
	ForksCount      int     `json:"forks_count"`
	OpenIssuesCount int     `json:"open_issues_count"`
	Private         bool    `json:"private"`
	UpdatedAt       string  `json:"updated_at"`
}

type githubIssue struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
}

type githubNotification struct {
	ID        string `json:"id"`
	Reason    string `json:"reason"`
	Unread    bool   `json:"unread"`
	UpdatedAt string `json:"updated_at"`
	Subject   struct {
		Title string  `json:"title"`
		Type  string  `json:"type"`
		URL   *string `json:"url"`
	} `json:"subject"`
}

// Fetch retrieves repos (with their open issues, fanned out in
// parallel) and notifications. Per-repo issue failures are non-fatal.
func (c *GitHubConnector) Fetch(ctx context.Context, creds *credentials.Credentials) ([]*event.Event, error) {
	repos, err := c.fetchRepos(ctx, creds.AccessToken)
	if err != nil {
		return nil, err
	}

	var events []*event.Event
	for _, repo := range repos {
		ev, err := repoToEvent(repo)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	// Issues per repo, fetched concurrently; failures only skip that repo.
	issueEvents := make([][]*event.Event, len(repos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, repo := range repos {
		owner, name, ok := strings.Cut(repo.FullName, "/")
		if !ok {
			continue
		}
		g.Go(func() error {
			issues, err := c.fetchIssues(gctx, creds.AccessToken, owner, name)
			if err != nil {
				logging.Warn().Err(err).Str("repo", owner+"/"+name).Msg("failed to fetch issues")
				return nil
			}
			var evs []*event.Event
			for _, issue := range issues {
				ev, err := issueToEvent(owner, name, issue)
				if err != nil {
					return err
				}
				evs = append(evs, ev)
			}
			issueEvents[i] = evs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, evs := range issueEvents {
		events = append(events, evs...)
	}

	notifications, err := c.fetchNotifications(ctx, creds.AccessToken)
	if err != nil {
		return nil, err
	}
	for _, n := range notifications {
		ev, err := notificationToEvent(n)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, nil
}

func (c *GitHubConnector) get(ctx context.Context, token, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func (c *GitHubConnector) fetchRepos(ctx context.Context, token string) ([]githubRepo, error) {
	var repos []githubRepo
	err := c.get(ctx, token, "/user/repos?sort=updated&per_page=30", &repos)
	return repos, err
}

func (c *GitHubConnector) fetchIssues(ctx context.Context, token, owner, repo string) ([]githubIssue, error) {
	var issues []githubIssue
	path := fmt.Sprintf("/repos/%s/%s/issues?state=open&per_page=30", owner, repo)
	err := c.get(ctx, token, path, &issues)
	return issues, err
}

func (c *GitHubConnector) fetchNotifications(ctx context.Context, token string) ([]githubNotification, error) {
	var notifications []githubNotification
	err := c.get(ctx, token, "/notifications?per_page=50", &notifications)
	return notifications, err
}

// newConnectorEvent assembles a Flux event for one GitHub resource.
func newConnectorEvent(schema, key string, properties map[string]interface{}) (*event.Event, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"entity_id":  key,
		"properties": properties,
	})
	if err != nil {
		return nil, err
	}
	ev := &event.Event{
		Stream:    "connectors",
		Source:    "connector-manager",
		Timestamp: time.Now().UnixMilli(),
		Key:       key,
		Schema:    schema,
		Payload:   payload,
	}
	if err := event.ValidateAndPrepare(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func repoToEvent(repo githubRepo) (*event.Event, error) {
	return newConnectorEvent("github.repository", "github/repo/"+repo.FullName, map[string]interface{}{
		"name":        repo.Name,
		"full_name":   repo.FullName,
		"description": repo.Description,
		"language":    repo.Language,
		"stars":       repo.StargazersCount,
		"forks":       repo.ForksCount,
		"open_issues": repo.OpenIssuesCount,
		"private":     repo.Private,
		"updated_at":  repo.UpdatedAt,
	})
}

func issueToEvent(owner, repo string, issue githubIssue) (*event.Event, error) {
	key := fmt.Sprintf("github/issue/%s/%s/%d", owner, repo, issue.Number)
	return newConnectorEvent("github.issue", key, map[string]interface{}{
		"number":     issue.Number,
		"title":      issue.Title,
		"state":      issue.State,
		"author":     issue.User.Login,
		"created_at": issue.CreatedAt,
		"updated_at": issue.UpdatedAt,
	})
}

func notificationToEvent(n githubNotification) (*event.Event, error) {
	return newConnectorEvent("github.notification", "github/notification/"+n.ID, map[string]interface{}{
		"id":            n.ID,
		"reason":        n.Reason,
		"unread":        n.Unread,
		"updated_at":    n.UpdatedAt,
		"subject_title": n.Subject.Title,
		"subject_type":  n.Subject.Type,
		"subject_url":   n.Subject.URL,
	})
}
