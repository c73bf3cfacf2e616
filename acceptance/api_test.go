package acceptance

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smartpedals/rackshare-backend/api"
)

func newTestAPI(t *testing.T, env *TestEnv) *api.API {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := api.New(api.Config{
		MetricsUsername: "metrics",
		MetricsPassword: "metrics",
	}, env.Bikes, env.Racks, env.Users, prometheus.NewRegistry(), logger)
	if err != nil {
		t.Fatalf("building api: %v", err)
	}
	return a
}

func TestAPI_Health(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	a := newTestAPI(t, env)

	w := doGET(a.Router(), "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAPI_ListBikes(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	a := newTestAPI(t, env)

	if _, err := env.Bikes.Create(context.Background(), "bike-1", strPtr("rack-1")); err != nil {
		t.Fatalf("create bike: %v", err)
	}

	w := doGET(a.Router(), "/bikes")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp []struct {
		Label       string  `json:"label"`
		Status      string  `json:"status"`
		CurrentRack *string `json:"current_rack"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp) != 1 || resp[0].Label != "bike-1" || resp[0].Status != "available" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp[0].CurrentRack == nil || *resp[0].CurrentRack != "rack-1" {
		t.Errorf("expected current_rack rack-1, got %v", resp[0].CurrentRack)
	}
}

func TestAPI_GetBikeNotFound(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	a := newTestAPI(t, env)

	w := doGET(a.Router(), "/bikes/no-such-bike")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAPI_AdminUserLifecycle(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	a := newTestAPI(t, env)

	w := doPOST(a.Router(), "/admin/users", map[string]string{
		"credential": "card-1",
		"name":       "Sam",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doGET(a.Router(), "/admin/users")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var users []struct {
		Credential string `json:"credential"`
		Name       string `json:"name"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &users); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(users) != 1 || users[0].Credential != "card-1" || users[0].Name != "Sam" {
		t.Errorf("unexpected users: %+v", users)
	}

	w = doDELETE(a.Router(), "/admin/users/card-1")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	w = doDELETE(a.Router(), "/admin/users/card-1")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}
}

func TestAPI_MissingCredentialRejected(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	a := newTestAPI(t, env)

	w := doPOST(a.Router(), "/admin/users", map[string]string{"name": "Sam"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAPI_MetricsRequiresBasicAuth(t *testing.T) {
	env := NewTestEnv(t)
	defer env.Close()
	a := newTestAPI(t, env)

	w := doGET(a.Router(), "/metrics")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", w.Code)
	}
}
