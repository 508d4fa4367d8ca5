package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/roadcare/vigil/internal/models"
)

func TestRegisterValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name    string
		request models.RegisterRequest
	}{
		{"missing fields", models.RegisterRequest{Email: "a@b.co"}},
		{"bad email", models.RegisterRequest{Email: "not-an-email", Username: "driver1", Password: "Passw0rd"}},
		{"short password", models.RegisterRequest{Email: "a@b.co", Username: "driver1", Password: "Pw1"}},
		{"password without digit", models.RegisterRequest{Email: "a@b.co", Username: "driver1", Password: "Passwords"}},
		{"password without letter", models.RegisterRequest{Email: "a@b.co", Username: "driver1", Password: "12345678"}},
		{"bad username", models.RegisterRequest{Email: "a@b.co", Username: "x", Password: "Passw0rd"}},
		{"username with spaces", models.RegisterRequest{Email: "a@b.co", Username: "has space", Password: "Passw0rd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/auth/register", tt.request)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	register := models.RegisterRequest{
		Email:    "driver@example.com",
		Username: "driver1",
		Password: "Passw0rd1",
	}

	resp := postJSON(t, ts.URL+"/api/auth/register", register)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[models.User](t, resp)
	if created.Email != register.Email || created.ID == 0 {
		t.Fatalf("registered user = %+v", created)
	}

	// duplicates are conflicts
	resp = postJSON(t, ts.URL+"/api/auth/register", register)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", resp.StatusCode)
	}

	// wrong password is unauthorized
	resp = postJSON(t, ts.URL+"/api/auth/login", models.LoginRequest{
		Email: register.Email, Password: "WrongPass1",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/auth/login", models.LoginRequest{
		Email: register.Email, Password: register.Password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		t.Fatal("login set no session cookie")
	}

	me := authedRequest(t, ts.URL+"/api/auth/me", http.MethodGet, nil, cookies)
	if me.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", me.StatusCode)
	}
	current := decodeBody[models.User](t, me)
	if current.Username != register.Username {
		t.Errorf("current user = %+v", current)
	}

	logout := authedRequest(t, ts.URL+"/api/auth/logout", http.MethodPost, nil, cookies)
	logout.Body.Close()
	if logout.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", logout.StatusCode)
	}

	// the cookie is dead after logout
	me = authedRequest(t, ts.URL+"/api/auth/me", http.MethodGet, nil, cookies)
	me.Body.Close()
	if me.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout status = %d, want 401", me.StatusCode)
	}
}

func TestCurrentUserWithoutCookie(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := getResp(t, ts.URL+"/api/auth/me")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func authedRequest(t *testing.T, url, method string, body any, cookies []*http.Cookie) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}
