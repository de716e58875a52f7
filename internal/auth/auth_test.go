package auth

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/caplatform/backend/internal/testutil"
	"github.com/caplatform/backend/pkg/config"
	"github.com/caplatform/backend/pkg/models"
)

const testSecret = "test-jwt-secret"

func newAuthApp(t *testing.T) (*fiber.App, *Handler) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	cfg := &config.Config{JWTSecret: testSecret}
	h := NewHandler(db, cfg)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/signup", h.Signup)
	app.Post("/login", h.Login)
	app.Get("/me", RequireAuth(testSecret), h.Me)
	app.Get("/staff-only", RequireAuth(testSecret), RequireRole(models.RoleStaff), func(c *fiber.Ctx) error {
		return c.SendStatus(200)
	})
	return app, h
}

func signupBody(role, email string) string {
	return `{"role":"` + role + `","name":"Asha Rao","email":"` + email + `","password":"secret123","phone":"+91 9876543210"}`
}

func postJSON(app *fiber.App, path, body string) (int, map[string]any) {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func Test_Signup_Login_Me_RoundTrip(t *testing.T) {
	app, _ := newAuthApp(t)

	code, out := postJSON(app, "/signup", signupBody("client", "asha@x.com"))
	if code != 201 {
		t.Fatalf("signup want 201, got %d (%v)", code, out)
	}
	if out["role"] != "client" || out["token"] == "" {
		t.Fatalf("unexpected signup response: %v", out)
	}

	code, out = postJSON(app, "/login", `{"email":"ASHA@x.com","password":"secret123"}`)
	if code != 200 {
		t.Fatalf("login want 200, got %d", code)
	}
	token, _ := out["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ := app.Test(req)
	if resp.StatusCode != 200 {
		t.Fatalf("me want 200, got %d", resp.StatusCode)
	}
	var me UserProfileResponse
	_ = json.NewDecoder(resp.Body).Decode(&me)
	if me.Email != "asha@x.com" || me.Role != models.RoleClient {
		t.Fatalf("unexpected profile: %#v", me)
	}
}

func Test_Signup_DuplicateEmail_Conflict(t *testing.T) {
	app, _ := newAuthApp(t)

	if code, _ := postJSON(app, "/signup", signupBody("client", "dupe@x.com")); code != 201 {
		t.Fatalf("first signup: %d", code)
	}
	code, _ := postJSON(app, "/signup", signupBody("client", "dupe@x.com"))
	if code != 409 {
		t.Fatalf("duplicate email want 409, got %d", code)
	}
}

func Test_Signup_RejectsBadInput(t *testing.T) {
	app, _ := newAuthApp(t)

	cases := map[string]string{
		"bad role":  signupBody("admin", "a@x.com"),
		"bad email": signupBody("client", "not-an-email"),
		"bad phone": `{"role":"client","name":"A B","email":"p@x.com","password":"secret123","phone":"12345"}`,
		"short pwd": `{"role":"client","name":"A B","email":"s@x.com","password":"abc"}`,
	}
	for name, body := range cases {
		code, _ := postJSON(app, "/signup", body)
		if code != 400 {
			t.Fatalf("%s: want 400, got %d", name, code)
		}
	}
}

func Test_Login_WrongPassword_Unauthorized(t *testing.T) {
	app, _ := newAuthApp(t)

	postJSON(app, "/signup", signupBody("client", "w@x.com"))
	code, _ := postJSON(app, "/login", `{"email":"w@x.com","password":"wrong-pass"}`)
	if code != 401 {
		t.Fatalf("want 401, got %d", code)
	}
}

func Test_RequireAuth_RejectsMissingOrBadToken(t *testing.T) {
	app, _ := newAuthApp(t)

	req := httptest.NewRequest("GET", "/me", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != 401 {
		t.Fatalf("no token want 401, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	resp, _ = app.Test(req)
	if resp.StatusCode != 401 {
		t.Fatalf("garbage token want 401, got %d", resp.StatusCode)
	}

	// Token signed with a different secret.
	other, _ := IssueToken("another-secret", "some-id", "client")
	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	resp, _ = app.Test(req)
	if resp.StatusCode != 401 {
		t.Fatalf("foreign token want 401, got %d", resp.StatusCode)
	}
}

func Test_RequireRole_BlocksClients(t *testing.T) {
	app, _ := newAuthApp(t)

	_, out := postJSON(app, "/signup", signupBody("client", "c@x.com"))
	token, _ := out["token"].(string)

	req := httptest.NewRequest("GET", "/staff-only", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ := app.Test(req)
	if resp.StatusCode != 403 {
		t.Fatalf("client on staff route want 403, got %d", resp.StatusCode)
	}

	_, out = postJSON(app, "/signup", signupBody("staff", "s@x.com"))
	token, _ = out["token"].(string)
	req = httptest.NewRequest("GET", "/staff-only", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != 200 {
		t.Fatalf("staff on staff route want 200, got %d", resp.StatusCode)
	}
}
