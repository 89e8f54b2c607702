// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/EckmanTechLLC/flux/internal/config"
	"github.com/EckmanTechLLC/flux/internal/eventlog"
	"github.com/EckmanTechLLC/flux/internal/namespace"
	"github.com/EckmanTechLLC/flux/internal/oauth"
	"github.com/EckmanTechLLC/flux/internal/ratelimit"
	"github.com/EckmanTechLLC/flux/internal/state"
)

// testStack is a full in-process Flux: embedded log, projector, router.
type testStack struct {
	server   *Server
	engine   *state.Engine
	registry *namespace.Registry
	runtime  *config.SharedRuntimeConfig
	http     *httptest.Server
}

func newTestStack(t *testing.T, authEnabled bool) *testStack {
	t.Helper()

	srv, err := eventlog.NewEmbeddedServer(eventlog.EmbeddedConfig{Port: -1, StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg := eventlog.DefaultConfig()
	cfg.URL = srv.ClientURL()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client, err := eventlog.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	engine := state.NewEngine()
	go func() { _ = state.NewProjector(client, engine).Serve(ctx) }()

	registry := namespace.NewRegistry()
	runtime := config.NewSharedRuntimeConfig(config.DefaultRuntimeConfig())

	server := NewServer(Options{
		Engine:         engine,
		Publisher:      eventlog.NewPublisher(client),
		LogClient:      client,
		Registry:       registry,
		Runtime:        runtime,
		Limiter:        ratelimit.New(),
		StateManager:   oauth.NewStateManager(oauth.DefaultStateTTL),
		AuthEnabled:    authEnabled,
		AdminToken:     "",
		MaxBatchDelete: 100,
		BaseURL:        "http://localhost:3000",
	})
	server.rootCtx = ctx

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &testStack{server: server, engine: engine, registry: registry, runtime: runtime, http: ts}
}

func (s *testStack) post(t *testing.T, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, s.http.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(t, req)
}

func (s *testStack) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (s *testStack) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.http.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s.do(t, req)
}

func validEventBody(entityID string, props map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"stream":    "sensors.temp",
		"source":    "s1",
		"timestamp": 1707668400000,
		"payload": map[string]interface{}{
			"entity_id":  entityID,
			"properties": props,
		},
	}
}

// waitForEntity polls until the projector materializes the entity.
func (s *testStack) waitForEntity(t *testing.T, entityID string) state.Entity {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if ent, ok := s.engine.GetEntity(entityID); ok {
			return ent
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("entity %s never projected", entityID)
	return state.Entity{}
}

func TestIngestAndProject(t *testing.T) {
	s := newTestStack(t, false)

	resp, body := s.post(t, "/api/events", "", validEventBody("alice/sensor1", map[string]interface{}{"temp": 22.5}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var out eventResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.EventID == "" || out.Stream != "sensors.temp" {
		t.Errorf("response = %+v", out)
	}

	s.waitForEntity(t, "alice/sensor1")

	resp, body = s.get(t, "/api/state/entities/alice/sensor1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get entity status %d", resp.StatusCode)
	}
	var ent entityResponse
	if err := json.Unmarshal(body, &ent); err != nil {
		t.Fatal(err)
	}
	var temp float64
	_ = json.Unmarshal(ent.Properties["temp"], &temp)
	if temp != 22.5 {
		t.Errorf("temp = %v, want 22.5", temp)
	}
}

func TestIngestValidationError(t *testing.T) {
	s := newTestStack(t, false)

	body := validEventBody("e1", nil)
	body["stream"] = ""
	resp, raw := s.post(t, "/api/events", "", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), "stream") {
		t.Errorf("error does not mention stream: %s", raw)
	}
}

func TestBatchPartialFailure(t *testing.T) {
	s := newTestStack(t, false)

	batch := map[string]interface{}{
		"events": []interface{}{
			validEventBody("ns1/a", map[string]interface{}{"x": 1}),
			map[string]interface{}{"stream": "", "source": "s", "timestamp": 1, "payload": map[string]interface{}{}},
			validEventBody("ns1/b", map[string]interface{}{"x": 2}),
		},
	}
	resp, body := s.post(t, "/api/events/batch", "", batch)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var out batchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Successful != 2 || out.Failed != 1 {
		t.Errorf("successful=%d failed=%d, want 2/1", out.Successful, out.Failed)
	}
	if len(out.Results) != 3 {
		t.Fatalf("results = %d", len(out.Results))
	}
	if !strings.Contains(out.Results[1].Error, "stream") {
		t.Errorf("results[1].error = %q", out.Results[1].Error)
	}
}

func TestBatchEmptyRejected(t *testing.T) {
	s := newTestStack(t, false)
	resp, _ := s.post(t, "/api/events/batch", "", map[string]interface{}{"events": []interface{}{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAuthRequiredForIngestion(t *testing.T) {
	s := newTestStack(t, true)
	ns, err := s.registry.Register("alice")
	if err != nil {
		t.Fatal(err)
	}

	// No token: 401.
	resp, _ := s.post(t, "/api/events", "", validEventBody("alice/sensor1", map[string]interface{}{"t": 1}))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing token status = %d", resp.StatusCode)
	}

	// Wrong token: 401.
	resp, _ = s.post(t, "/api/events", "not-the-token", validEventBody("alice/sensor1", map[string]interface{}{"t": 1}))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", resp.StatusCode)
	}

	// Token for another namespace: 401.
	other, _ := s.registry.Register("mallory")
	resp, _ = s.post(t, "/api/events", other.Token, validEventBody("alice/sensor1", map[string]interface{}{"t": 1}))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("cross-namespace status = %d", resp.StatusCode)
	}

	// Entity id without namespace prefix: 400.
	resp, _ = s.post(t, "/api/events", ns.Token, validEventBody("bare-entity", map[string]interface{}{"t": 1}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bare entity status = %d", resp.StatusCode)
	}

	// Owner token: accepted.
	resp, body := s.post(t, "/api/events", ns.Token, validEventBody("alice/sensor1", map[string]interface{}{"t": 1}))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("owner token status = %d: %s", resp.StatusCode, body)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestStack(t, true)
	ns, _ := s.registry.Register("alice")

	limit := uint64(1)
	s.runtime.Apply(config.RuntimeConfigUpdate{RateLimitPerNamespacePerMinute: &limit})

	resp, _ := s.post(t, "/api/events", ns.Token, validEventBody("alice/s1", map[string]interface{}{"t": 1}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d", resp.StatusCode)
	}

	resp, body := s.post(t, "/api/events", ns.Token, validEventBody("alice/s1", map[string]interface{}{"t": 2}))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d: %s", resp.StatusCode, body)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", resp.Header.Get("Retry-After"))
	}
}

func TestBodySizeLimit(t *testing.T) {
	s := newTestStack(t, false)

	limit := int64(256)
	s.runtime.Apply(config.RuntimeConfigUpdate{BodySizeLimitSingleBytes: &limit})

	big := validEventBody("ns/e", map[string]interface{}{"blob": strings.Repeat("x", 1024)})
	resp, body := s.post(t, "/api/events", "", big)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "payload too large") {
		t.Errorf("body = %s", body)
	}
}

func TestGetEntityNotFound(t *testing.T) {
	s := newTestStack(t, false)
	resp, _ := s.get(t, "/api/state/entities/never/existed")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListEntities(t *testing.T) {
	s := newTestStack(t, false)

	s.post(t, "/api/events", "", validEventBody("l-ns/a", map[string]interface{}{"x": 1}))
	s.post(t, "/api/events", "", validEventBody("l-ns/b", map[string]interface{}{"x": 2}))
	s.waitForEntity(t, "l-ns/a")
	s.waitForEntity(t, "l-ns/b")

	resp, body := s.get(t, "/api/state/entities")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var entities []entityResponse
	if err := json.Unmarshal(body, &entities); err != nil {
		t.Fatal(err)
	}
	if len(entities) != 2 {
		t.Errorf("entities = %d, want 2", len(entities))
	}
}

func TestDeleteEntityPublishesTombstone(t *testing.T) {
	s := newTestStack(t, false)

	s.post(t, "/api/events", "", validEventBody("d-ns/gone", map[string]interface{}{"x": 1}))
	s.waitForEntity(t, "d-ns/gone")

	req, _ := http.NewRequest(http.MethodDelete, s.http.URL+"/api/state/entities/d-ns/gone", nil)
	resp, body := s.do(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var out deleteResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.EntityID != "d-ns/gone" || out.EventID == "" {
		t.Errorf("response = %+v", out)
	}

	// The tombstone flows through the log and the projector removes
	// the entity.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.engine.GetEntity("d-ns/gone"); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("entity still present after tombstone")
}

func TestBatchDeleteSizeCheckedBeforePublish(t *testing.T) {
	s := newTestStack(t, false)

	ids := make([]string, 0, 150)
	for i := 0; i < 150; i++ {
		ids = append(ids, fmt.Sprintf("bd-ns/e%d", i))
	}
	resp, body := s.post(t, "/api/state/entities/delete", "", map[string]interface{}{"entity_ids": ids})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "batch too large") {
		t.Errorf("body = %s", body)
	}
}

func TestBatchDeleteByNamespace(t *testing.T) {
	s := newTestStack(t, false)

	s.post(t, "/api/events", "", validEventBody("bdn-ns/a", map[string]interface{}{"x": 1}))
	s.post(t, "/api/events", "", validEventBody("bdn-ns/b", map[string]interface{}{"x": 2}))
	s.post(t, "/api/events", "", validEventBody("other-ns/c", map[string]interface{}{"x": 3}))
	s.waitForEntity(t, "bdn-ns/a")
	s.waitForEntity(t, "bdn-ns/b")
	s.waitForEntity(t, "other-ns/c")

	resp, body := s.post(t, "/api/state/entities/delete", "", map[string]interface{}{"namespace": "bdn-ns"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var out batchDeleteResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Deleted != 2 || out.Failed != 0 {
		t.Errorf("deleted=%d failed=%d, want 2/0", out.Deleted, out.Failed)
	}
}

func TestEventHistory(t *testing.T) {
	s := newTestStack(t, false)

	for i := 0; i < 3; i++ {
		s.post(t, "/api/events", "", validEventBody("h-ns/tracked", map[string]interface{}{"n": i}))
	}
	s.post(t, "/api/events", "", validEventBody("h-ns/other", map[string]interface{}{"n": 99}))
	s.waitForEntity(t, "h-ns/tracked")

	resp, body := s.get(t, "/api/events?entity=h-ns/tracked")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}

	var events []map[string]interface{}
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Errorf("history = %d events, want 3", len(events))
	}

	// Missing entity parameter is a 400.
	resp, _ = s.get(t, "/api/events")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing entity status = %d", resp.StatusCode)
	}

	// Bad since parameter is a 400.
	resp, _ = s.get(t, "/api/events?entity=x&since=not-a-date")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad since status = %d", resp.StatusCode)
	}
}

func TestAdminConfigRoundTrip(t *testing.T) {
	s := newTestStack(t, false)

	resp, body := s.get(t, "/api/admin/config")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var cfg config.RuntimeConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimitPerNamespacePerMinute != 10000 {
		t.Errorf("default limit = %d", cfg.RateLimitPerNamespacePerMinute)
	}

	req, _ := http.NewRequest(http.MethodPut, s.http.URL+"/api/admin/config",
		strings.NewReader(`{"rate_limit_per_namespace_per_minute": 77}`))
	resp, body = s.do(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.RateLimitPerNamespacePerMinute != 77 {
		t.Errorf("updated limit = %d, want 77", cfg.RateLimitPerNamespacePerMinute)
	}
	// Partial update left the other fields alone.
	if cfg.BodySizeLimitSingleBytes != 1<<20 {
		t.Errorf("single body limit changed: %d", cfg.BodySizeLimitSingleBytes)
	}
}

func TestAdminConfigRequiresTokenWhenConfigured(t *testing.T) {
	s := newTestStack(t, false)
	s.server.opts.AdminToken = "super-secret"

	req, _ := http.NewRequest(http.MethodPut, s.http.URL+"/api/admin/config",
		strings.NewReader(`{"rate_limit_enabled": false}`))
	resp, _ := s.do(t, req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPut, s.http.URL+"/api/admin/config",
		strings.NewReader(`{"rate_limit_enabled": false}`))
	req.Header.Set("Authorization", "Bearer super-secret")
	resp, _ = s.do(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d", resp.StatusCode)
	}
}

func TestNamespaceAPI(t *testing.T) {
	s := newTestStack(t, true)

	resp, body := s.post(t, "/api/namespaces", "", map[string]string{"name": "myspace"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status %d: %s", resp.StatusCode, body)
	}
	var reg registerNamespaceResponse
	if err := json.Unmarshal(body, &reg); err != nil {
		t.Fatal(err)
	}
	if reg.Token == "" || !strings.HasPrefix(reg.NamespaceID, "ns_") {
		t.Errorf("register response = %+v", reg)
	}

	// Duplicate name: 409.
	resp, _ = s.post(t, "/api/namespaces", "", map[string]string{"name": "myspace"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d", resp.StatusCode)
	}

	// Invalid name: 400.
	resp, _ = s.post(t, "/api/namespaces", "", map[string]string{"name": "X"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid name status = %d", resp.StatusCode)
	}

	// Lookup does not leak the token.
	resp, body = s.get(t, "/api/namespaces/myspace")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lookup status = %d", resp.StatusCode)
	}
	if strings.Contains(string(body), reg.Token) {
		t.Error("lookup response leaks the namespace token")
	}

	// Unknown name: 404.
	resp, _ = s.get(t, "/api/namespaces/unknown")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown lookup status = %d", resp.StatusCode)
	}
}

func TestWebSocketAuthBeforeUpgrade(t *testing.T) {
	s := newTestStack(t, true)
	ns, _ := s.registry.Register("wsuser")

	// Without a token the handler rejects before upgrading.
	resp, _ := s.get(t, "/api/ws")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d", resp.StatusCode)
	}

	resp, _ = s.get(t, "/api/ws?token=wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", resp.StatusCode)
	}

	// A valid token without an Upgrade header fails the handshake but
	// passes authorization (gorilla responds 400).
	resp, _ = s.get(t, "/api/ws?token="+ns.Token)
	if resp.StatusCode == http.StatusUnauthorized {
		t.Error("valid token still unauthorized")
	}
}

func TestOAuthStartRedirects(t *testing.T) {
	s := newTestStack(t, false)
	t.Setenv("FLUX_OAUTH_GITHUB_CLIENT_ID", "cid")
	t.Setenv("FLUX_OAUTH_GITHUB_CLIENT_SECRET", "cs")

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(s.http.URL + "/api/connectors/github/oauth/start")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, "https://github.com/login/oauth/authorize") {
		t.Errorf("location = %q", loc)
	}
	if !strings.Contains(loc, "state=") || !strings.Contains(loc, "client_id=cid") {
		t.Errorf("location missing parameters: %q", loc)
	}
}

func TestOAuthStartUnknownConnector(t *testing.T) {
	s := newTestStack(t, false)
	resp, _ := s.get(t, "/api/connectors/doesnotexist/oauth/start")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestOAuthStartUnconfiguredProvider(t *testing.T) {
	s := newTestStack(t, false)
	t.Setenv("FLUX_OAUTH_GMAIL_CLIENT_ID", "")
	t.Setenv("FLUX_OAUTH_GMAIL_CLIENT_SECRET", "")

	resp, body := s.get(t, "/api/connectors/gmail/oauth/start")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "FLUX_OAUTH_GMAIL_CLIENT_ID") {
		t.Errorf("error does not name the env vars: %s", body)
	}
}

func TestOAuthCallbackStateIsSingleUse(t *testing.T) {
	s := newTestStack(t, false)

	// Mint a state bound to another connector: the first callback
	// consumes it (connector mismatch, 400), the replay sees 401.
	stateToken := s.server.opts.StateManager.CreateState("gmail", "default")

	resp, _ := s.get(t, "/api/connectors/github/oauth/callback?code=x&state="+stateToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("mismatch status = %d, want 400", resp.StatusCode)
	}

	resp, _ = s.get(t, "/api/connectors/github/oauth/callback?code=x&state="+stateToken)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("replay status = %d, want 401", resp.StatusCode)
	}
}

func TestOAuthCallbackProviderError(t *testing.T) {
	s := newTestStack(t, false)
	resp, body := s.get(t, "/api/connectors/github/oauth/callback?error=access_denied&error_description=User+cancelled")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "access_denied") {
		t.Errorf("body = %s", body)
	}
}

func TestListConnectors(t *testing.T) {
	s := newTestStack(t, false)

	resp, body := s.get(t, "/api/connectors")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out listConnectorsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Connectors) != 4 {
		t.Errorf("connectors = %d, want 4 builtins", len(out.Connectors))
	}
	for _, c := range out.Connectors {
		if c.Status != "not_configured" {
			t.Errorf("connector %s status = %q without credential store", c.Name, c.Status)
		}
	}
}

func TestGetConnectorUnknown(t *testing.T) {
	s := newTestStack(t, false)
	resp, _ := s.get(t, "/api/connectors/doesnotexist")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
