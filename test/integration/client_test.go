//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rdrf/rdrf/internal/platform/auth"
	"github.com/rdrf/rdrf/internal/platform/db"
)

// client is a browser stand-in. Each scenario gets its own so no cookies or
// credentials leak between scenarios.
type client struct {
	t       *testing.T
	http    *http.Client
	baseURL string
	siteID  string
	token   string
}

func newClient(t *testing.T, baseURL, siteID string) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &client{
		t:       t,
		http:    &http.Client{Jar: jar, Timeout: 30 * time.Second},
		baseURL: baseURL,
		siteID:  siteID,
	}
}

// loginAs signs subsequent requests with a token for u.
func (c *client) loginAs(u auth.User) *client {
	c.t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		SiteID:        c.siteID,
		Roles:         u.Roles,
		Registries:    u.Registries,
		WorkingGroups: u.WorkingGroups,
		IsPatient:     u.IsPatient,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		c.t.Fatalf("sign token: %v", err)
	}
	c.token = signed
	return c
}

func (c *client) logout() { c.token = "" }

func (c *client) do(method, path, contentType string, body io.Reader) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		c.t.Fatalf("build request %s %s: %v", method, path, err)
	}
	req.Header.Set(db.SiteHeader, c.siteID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *client) get(path string) *http.Response {
	return c.do(http.MethodGet, path, "", nil)
}

func (c *client) delete(path string) *http.Response {
	return c.do(http.MethodDelete, path, "", nil)
}

func (c *client) sendJSON(method, path string, body interface{}) *http.Response {
	c.t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		c.t.Fatalf("encode body: %v", err)
	}
	return c.do(method, path, "application/json", bytes.NewReader(b))
}

func (c *client) postJSON(path string, body interface{}) *http.Response {
	return c.sendJSON(http.MethodPost, path, body)
}

func (c *client) upload(path, field, fileName, contentType string, data []byte) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="` + field + `"; filename="` + fileName + `"`},
		"Content-Type":        {contentType},
	})
	if err != nil {
		c.t.Fatalf("create part: %v", err)
	}
	part.Write(data)
	w.Close()
	return c.do(http.MethodPost, path, w.FormDataContentType(), &buf)
}

// decode reads a JSON response into dest after checking its status.
func decode(t *testing.T, resp *http.Response, wantStatus int, dest interface{}) {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, wantStatus, resp.StatusCode, body)
	}
	if dest == nil {
		return
	}
	if err := json.Unmarshal(body, dest); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

func curator() auth.User {
	return auth.User{
		ID:            "curator-1",
		Roles:         []string{auth.RoleCurator},
		Registries:    []string{global.Seed.Registry.Code},
		WorkingGroups: []string{global.Seed.WorkingGroup.ID.String()},
	}
}
