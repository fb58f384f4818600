package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckerWildcards(t *testing.T) {
	c := NewChecker(nil)
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"teacher", PermStandardsWrite, true},
		{"teacher", PermStudentsWrite, true},
		{"teacher", PermSummaryOwn, false},
		{"student", PermSummaryOwn, true},
		{"student", PermResultsRecord, false},
		{"student", PermResultsRead, false},
		{"teacher", PermResultsRead, true},
		{"teacher", PermResultsRecord, true},
		{"admin", "anything:at-all", true},
		{"", PermStandardsRead, false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestRequire(t *testing.T) {
	h := Require(PermResultsRecord)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for role, want := range map[string]int{"teacher": http.StatusNoContent, "student": http.StatusForbidden, "": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodPost, "/results", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("role %q: status %d, want %d", role, rec.Code, want)
		}
	}
}
