package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/homehubapp/homehub/internal/clock"
	"github.com/homehubapp/homehub/internal/model"
	"github.com/homehubapp/homehub/internal/reset"
)

func testClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	c := NewClient(Config{URL: server.URL, ServiceKey: "service-key", Timeout: 5 * time.Second}, nil)
	return c, server
}

func TestGetUser(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Errorf("authorization = %q, want caller token", got)
		}
		if got := r.Header.Get("apikey"); got != "service-key" {
			t.Errorf("apikey = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "u1", "email": "Person@Example.com"})
	})

	user, err := c.GetUser(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Email != "person@example.com" {
		t.Errorf("email = %q, want lowercased", user.Email)
	}
}

func TestGetUserInvalidToken(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid JWT"}`))
	})

	_, err := c.GetUser(context.Background(), "bad")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestGetUserNoEmail(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "u1"})
	})

	_, err := c.GetUser(context.Background(), "tok")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized for sessions without email", err)
	}
}

func TestGetUserTruncatesDetail(t *testing.T) {
	huge := make([]byte, 4096)
	for i := range huge {
		huge[i] = 'x'
	}
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write(huge)
	})

	_, err := c.GetUser(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Error()) > maxDetailLen+64 {
		t.Errorf("error detail not truncated: %d bytes", len(err.Error()))
	}
}

func TestMembershipByEmail(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/household_members" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("email"); got != "ilike.a@b.c" {
			t.Errorf("email filter = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer service-key" {
			t.Errorf("authorization = %q, want service key", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]model.Member{{HouseholdID: "h1", Email: "a@b.c", Role: "admin"}})
	})

	m, err := c.MembershipByEmail(context.Background(), "a@b.c")
	if err != nil {
		t.Fatalf("MembershipByEmail: %v", err)
	}
	if m == nil || m.HouseholdID != "h1" || m.Role != "admin" {
		t.Errorf("member = %+v", m)
	}
}

func TestMembershipByEmailNone(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})

	m, err := c.MembershipByEmail(context.Background(), "nobody@b.c")
	if err != nil {
		t.Fatalf("MembershipByEmail: %v", err)
	}
	if m != nil {
		t.Errorf("member = %+v, want nil", m)
	}
}

func TestListHouseholdsDueFilter(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		want := "(last_chore_reset_date.is.null,last_chore_reset_date.neq.2024-03-15)"
		if got := q.Get("or"); got != want {
			t.Errorf("or = %q, want %q", got, want)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]model.Household{{ID: "h1", Name: "Smith"}})
	})

	hs, err := c.ListHouseholds(context.Background(), "2024-03-15")
	if err != nil {
		t.Fatalf("ListHouseholds: %v", err)
	}
	if len(hs) != 1 || hs[0].ID != "h1" {
		t.Errorf("households = %+v", hs)
	}
}

func TestHouseholdNotFound(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})

	_, err := c.Household(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResetChoresQuery(t *testing.T) {
	var gotMethod string
	var gotBody map[string]any
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		if r.URL.Path != "/rest/v1/chores" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("household_id"); got != "eq.h1" {
			t.Errorf("household_id = %q", got)
		}
		if got := q.Get("status"); got != "in.(done,skipped)" {
			t.Errorf("status = %q", got)
		}
		want := "(category.eq.Daily,day_of_week.eq.5,category.ilike.Friday%)"
		if got := q.Get("or"); got != want {
			t.Errorf("or = %q, want %q", got, want)
		}
		if got := r.Header.Get("Prefer"); got != "return=minimal" {
			t.Errorf("prefer = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	})

	day := clock.Day{Date: "2024-03-15", Weekday: 5, Name: "Friday"}
	if err := c.ResetChores(context.Background(), "h1", reset.Eligibility(day)); err != nil {
		t.Fatalf("ResetChores: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", gotMethod)
	}
	if gotBody["status"] != "pending" {
		t.Errorf("body status = %v", gotBody["status"])
	}
	if v, ok := gotBody["completed_by_name"]; !ok || v != nil {
		t.Errorf("completed_by_name = %v, want explicit null", v)
	}
	if v, ok := gotBody["completer_email"]; !ok || v != nil {
		t.Errorf("completer_email = %v, want explicit null", v)
	}
}

func TestStampResetDateRetries(t *testing.T) {
	attempts := 0
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if got := r.URL.Query().Get("id"); got != "eq.h1" {
			t.Errorf("id = %q", got)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["last_chore_reset_date"] != "2024-03-15" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.StampResetDate(context.Background(), "h1", "2024-03-15"); err != nil {
		t.Fatalf("StampResetDate: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (one retry)", attempts)
	}
}

func TestStampResetDateGivesUp(t *testing.T) {
	attempts := 0
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if err := c.StampResetDate(context.Background(), "h1", "2024-03-15"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestTableCount(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Prefer"); got != "count=exact" {
			t.Errorf("prefer = %q", got)
		}
		w.Header().Set("Content-Range", "*/42")
		w.Write([]byte("[]"))
	})

	n, err := c.TableCount(context.Background(), "chores")
	if err != nil {
		t.Fatalf("TableCount: %v", err)
	}
	if n != 42 {
		t.Errorf("count = %d, want 42", n)
	}
}

func TestResetRecordedInsertsLog(t *testing.T) {
	var entry model.SystemLog
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/system_logs" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&entry)
		w.WriteHeader(http.StatusCreated)
	})

	err := c.ResetRecorded(context.Background(), model.Household{ID: "h1", Name: "Smith"}, "2024-03-15")
	if err != nil {
		t.Fatalf("ResetRecorded: %v", err)
	}
	if entry.Service != "chore-reset" || entry.Status != "ok" {
		t.Errorf("entry = %+v", entry)
	}
}
