package access

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"licenseportal/internal/entitlement"
)

// fakeStore is an in-memory entitlement store keyed by organization.
type fakeStore struct {
	mu         sync.Mutex
	records    map[string][]entitlement.Record
	listErr    map[string]error
	setResult  entitlement.ChangeResult
	setErr     error
	configured bool

	listCalls []string
	setCalls  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:    map[string][]entitlement.Record{},
		listErr:    map[string]error{},
		setResult:  entitlement.ChangeResult{Success: true, StatusCode: http.StatusOK, Detail: `{"isSuccess":true}`},
		configured: true,
	}
}

func (f *fakeStore) List(_ context.Context, org string) ([]entitlement.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, org)
	if err := f.listErr[org]; err != nil {
		return nil, err
	}
	return f.records[org], nil
}

func (f *fakeStore) SetBasic(_ context.Context, org, id string) (entitlement.ChangeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, org+"/"+id)
	if f.setErr != nil {
		return entitlement.ChangeResult{}, f.setErr
	}
	for i, rec := range f.records[org] {
		if rec.ID == id {
			f.records[org][i].LicenseType = entitlement.LicenseTypeBasic
		}
	}
	return f.setResult, nil
}

func (f *fakeStore) Configured() bool {
	return f.configured
}

func (f *fakeStore) calls() (list, set int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listCalls), len(f.setCalls)
}

func transportErr(org string, status int) error {
	return &entitlement.TransportError{Org: org, StatusCode: status}
}

// newStoreServer serves a minimal Azure DevOps entitlements API: orgA holds
// a Stakeholder entitlement for alice that PATCH turns into Basic, and
// orgB is unavailable.
func newStoreServer(t *testing.T) *httptest.Server {
	t.Helper()

	var mu sync.Mutex
	licenseType := "stakeholder"

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orgA/_apis/userentitlements", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"members": []map[string]any{{
				"id":          "ent-a",
				"user":        map[string]string{"mailAddress": "alice@example.com", "principalName": "alice@example.com"},
				"accessLevel": map[string]string{"accountLicenseType": licenseType},
			}},
		})
	})
	mux.HandleFunc("PATCH /orgA/_apis/userentitlements/ent-a", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		licenseType = entitlement.LicenseTypeBasic
		_, _ = io.WriteString(w, `{"isSuccess":true}`)
	})
	mux.HandleFunc("/orgB/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}
