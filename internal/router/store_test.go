package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ridgegate/ridgegate/internal/config"
	"github.com/ridgegate/ridgegate/internal/store/driver/memory"
	"github.com/ridgegate/ridgegate/internal/types"
)

type stubProber struct {
	// down holds base URLs that fail the probe.
	down map[string]bool
}

func (p *stubProber) Probe(_ context.Context, baseURL string) error {
	if p.down[baseURL] {
		return errors.New("probe failed")
	}
	return nil
}

func newTestStore(t *testing.T, strict bool, prober Prober) *Store {
	t.Helper()
	mem := memory.New()
	t.Cleanup(func() { mem.Close() })
	if prober == nil {
		prober = &stubProber{}
	}
	return NewStore(mem, prober, &config.RoutesConfig{
		StrictRegistration: strict,
		ProbeTimeout:       time.Second,
	}, nil)
}

func testRoute(serviceID, pattern string, urls ...string) *types.Route {
	endpoints := make([]types.Endpoint, len(urls))
	for i, u := range urls {
		endpoints[i] = types.Endpoint{URL: u, Weight: 1}
	}
	return &types.Route{
		ServiceID:   serviceID,
		Name:        serviceID,
		PathPattern: pattern,
		Endpoints:   endpoints,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t, false, nil)
	ctx := context.Background()

	created, err := s.Create(ctx, testRoute("users", "/users/*", "http://a:1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Version != 1 {
		t.Errorf("version = %d, want 1", created.Version)
	}
	if created.Status != types.RouteStatusActive {
		t.Errorf("status = %q, want active default", created.Status)
	}
	if !created.Endpoints[0].IsActive {
		t.Error("endpoint not registered live")
	}
	if created.CreatedAt == 0 || created.UpdatedAt == 0 {
		t.Error("timestamps not set")
	}

	got, err := s.Get(ctx, "users")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ServiceID != "users" || got.PathPattern != "/users/*" {
		t.Errorf("got = %+v", got)
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := newTestStore(t, false, nil)
	ctx := context.Background()

	if _, err := s.Create(ctx, testRoute("users", "/users", "http://a:1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := s.Create(ctx, testRoute("users", "/other", "http://b:1"))
	if !errors.Is(err, types.ErrAlreadyExists) {
		t.Errorf("duplicate create = %v, want ErrAlreadyExists", err)
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestStore(t, false, nil)
	ctx := context.Background()

	tests := []*types.Route{
		testRoute("", "/x", "http://a:1"),
		testRoute("x", "no-slash", "http://a:1"),
		testRoute("x", "/x"),
		testRoute("x", "/x", "://bad-url"),
	}
	for _, route := range tests {
		if _, err := s.Create(ctx, route); !errors.Is(err, types.ErrValidation) {
			t.Errorf("Create(%+v) = %v, want ErrValidation", route, err)
		}
	}
}

func TestStrictRegistrationDemotesDeadEndpoints(t *testing.T) {
	prober := &stubProber{down: map[string]bool{"http://dead:1": true}}
	s := newTestStore(t, true, prober)
	ctx := context.Background()

	created, err := s.Create(ctx, testRoute("users", "/users", "http://live:1", "http://dead:1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created.Endpoints[0].IsActive {
		t.Error("live endpoint demoted")
	}
	if created.Endpoints[1].IsActive {
		t.Error("dead endpoint not demoted")
	}
}

func TestStrictRegistrationRejectsAllDead(t *testing.T) {
	prober := &stubProber{down: map[string]bool{"http://dead:1": true, "http://dead:2": true}}
	s := newTestStore(t, true, prober)
	ctx := context.Background()

	_, err := s.Create(ctx, testRoute("users", "/users", "http://dead:1", "http://dead:2"))
	if !errors.Is(err, types.ErrUnavailable) {
		t.Fatalf("all-dead create = %v, want ErrUnavailable", err)
	}
	// Nothing was persisted.
	if _, err := s.Get(ctx, "users"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get after rejected create = %v, want ErrNotFound", err)
	}
}

func TestUpdateMergesAndBumpsVersion(t *testing.T) {
	s := newTestStore(t, false, nil)
	ctx := context.Background()
	s.Create(ctx, testRoute("users", "/users", "http://a:1"))

	name := "renamed"
	status := types.RouteStatusMaintenance
	updated, err := s.Update(ctx, "users", &RoutePatch{Name: &name, Status: &status})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "renamed" || updated.Status != types.RouteStatusMaintenance {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}
	// Untouched fields survive.
	if updated.PathPattern != "/users" {
		t.Errorf("path pattern changed to %q", updated.PathPattern)
	}

	if _, err := s.Update(ctx, "ghost", &RoutePatch{Name: &name}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Update of unknown route = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, false, nil)
	ctx := context.Background()
	s.Create(ctx, testRoute("users", "/users", "http://a:1"))

	if err := s.Delete(ctx, "users"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "users"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestResolve(t *testing.T) {
	s := newTestStore(t, false, nil)
	ctx := context.Background()
	s.Create(ctx, testRoute("users", "/users/*", "http://a:1"))
	s.Create(ctx, testRoute("orders", "/orders/*", "http://b:1"))

	route, err := s.Resolve(ctx, "/users/42")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if route.ServiceID != "users" {
		t.Errorf("resolved %q, want users", route.ServiceID)
	}

	if _, err := s.Resolve(ctx, "/payments/1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Resolve of unmatched path = %v, want ErrNotFound", err)
	}
}

func TestResolveSkipsInactiveRoutes(t *testing.T) {
	s := newTestStore(t, false, nil)
	ctx := context.Background()
	s.Create(ctx, testRoute("users", "/users/*", "http://a:1"))

	status := types.RouteStatusInactive
	if _, err := s.Update(ctx, "users", &RoutePatch{Status: &status}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.Resolve(ctx, "/users/42"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Resolve of inactive route = %v, want ErrNotFound", err)
	}

	// Reactivation brings it back without a restart.
	status = types.RouteStatusActive
	s.Update(ctx, "users", &RoutePatch{Status: &status})
	if _, err := s.Resolve(ctx, "/users/42"); err != nil {
		t.Errorf("Resolve after reactivation: %v", err)
	}
}

func TestResolvePicksUpExternalWrites(t *testing.T) {
	mem := memory.New()
	t.Cleanup(func() { mem.Close() })
	cfg := &config.RoutesConfig{ProbeTimeout: time.Second}

	writer := NewStore(mem, &stubProber{}, cfg, nil)
	reader := NewStore(mem, &stubProber{}, cfg, nil)
	ctx := context.Background()

	writer.Create(ctx, testRoute("users", "/users", "http://a:1"))

	// The reader never saw the create; read-through refresh finds it.
	if _, err := reader.Resolve(ctx, "/users"); err != nil {
		t.Errorf("Resolve through second store: %v", err)
	}
}

func TestActiveEndpointsProbing(t *testing.T) {
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(live.Close)
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(dead.Close)

	mem := memory.New()
	t.Cleanup(func() { mem.Close() })
	s := NewStore(mem, NewHTTPProber("/health", time.Second),
		&config.RoutesConfig{ProbeTimeout: time.Second}, nil)
	ctx := context.Background()

	if _, err := s.Create(ctx, testRoute("users", "/users", live.URL, dead.URL)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	urls, err := s.ActiveEndpoints(ctx, "users")
	if err != nil {
		t.Fatalf("ActiveEndpoints: %v", err)
	}
	if len(urls) != 1 || urls[0] != live.URL {
		t.Errorf("urls = %v, want only the live endpoint", urls)
	}
}

func TestActiveEndpointsErrors(t *testing.T) {
	s := newTestStore(t, false, &stubProber{down: map[string]bool{"http://a:1": true}})
	ctx := context.Background()

	if _, err := s.ActiveEndpoints(ctx, "ghost"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("unknown service = %v, want ErrNotFound", err)
	}

	s.Create(ctx, testRoute("users", "/users", "http://a:1"))
	if _, err := s.ActiveEndpoints(ctx, "users"); !errors.Is(err, types.ErrUnavailable) {
		t.Errorf("all endpoints unreachable = %v, want ErrUnavailable", err)
	}
}

func TestActiveEndpointsPreservesOrder(t *testing.T) {
	s := newTestStore(t, false, &stubProber{})
	ctx := context.Background()
	s.Create(ctx, testRoute("users", "/users", "http://a:1", "http://b:1", "http://c:1"))

	for i := 0; i < 5; i++ {
		urls, err := s.ActiveEndpoints(ctx, "users")
		if err != nil {
			t.Fatalf("ActiveEndpoints: %v", err)
		}
		want := []string{"http://a:1", "http://b:1", "http://c:1"}
		for j := range want {
			if urls[j] != want[j] {
				t.Fatalf("urls = %v, want declaration order %v", urls, want)
			}
		}
	}
}

func TestRefreshFailSoft(t *testing.T) {
	mem := memory.New()
	s := NewStore(mem, &stubProber{}, &config.RoutesConfig{ProbeTimeout: time.Second}, nil)
	ctx := context.Background()

	s.Create(ctx, testRoute("users", "/users", "http://a:1"))
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Backend failure must keep the last good index serving.
	mem.Close()
	if err := s.Refresh(ctx); err == nil {
		t.Fatal("Refresh against closed store succeeded")
	}
	s.mu.RLock()
	indexLen := len(s.index)
	s.mu.RUnlock()
	if indexLen != 1 {
		t.Errorf("index length after failed refresh = %d, want stale index kept", indexLen)
	}
}
