package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware_IssuesCookie(t *testing.T) {
	var got string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ParticipantIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if !isValidAnonID(got) {
		t.Fatalf("participant id = %q, want anon_<hex>", got)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || cookies[0].Value != got {
		t.Fatalf("cookies = %+v", cookies)
	}
	if cookies[0].Secure {
		t.Error("dev cookie should not be Secure")
	}
}

func TestMiddleware_ReusesValidCookie(t *testing.T) {
	const id = "anon_0123456789abcdef0123456789abcdef"
	var got string
	h := Middleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ParticipantIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got != id {
		t.Fatalf("participant id = %q, want %q", got, id)
	}
	if c := rr.Result().Cookies(); len(c) != 1 || !c[0].Secure {
		t.Fatalf("expected refreshed secure cookie, got %+v", c)
	}
}

func TestMiddleware_ReplacesForgedCookie(t *testing.T) {
	var got string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ParticipantIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "someone-else"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got == "someone-else" || !isValidAnonID(got) {
		t.Fatalf("participant id = %q", got)
	}
}

func TestParticipantIDFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := ParticipantIDFromContext(req.Context()); id != "" {
		t.Fatalf("got %q", id)
	}
}
