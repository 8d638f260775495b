package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillswap/internal/user"
	"github.com/sudo-init-do/skillswap/internal/utils"
)

const secret = "auth-test-secret"

func newHandler(t *testing.T) (*Handler, *user.MemoryStore) {
	t.Helper()
	users := user.NewMemoryStore()
	return NewHandler(users, NewTokens(secret, time.Hour), "let-me-in"), users
}

func call(t *testing.T, fn echo.HandlerFunc, body string, userID string) (int, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set("user_id", userID)
	}
	if err := fn(c); err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func TestSignupAndLogin(t *testing.T) {
	h, users := newHandler(t)

	status, out := call(t, h.Signup, `{"name":"Ada","email":"Ada@Example.com","password":"secret123","skills":["welding"]}`, "")
	if status != http.StatusCreated {
		t.Fatalf("signup = %d %v", status, out)
	}
	claims, err := utils.ParseBearer("Bearer "+out["token"].(string), []byte(secret))
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.Role != user.RoleMember {
		t.Errorf("role = %q", claims.Role)
	}
	if _, leaked := out["user"].(map[string]any)["password"]; leaked {
		t.Error("password hash leaked in response")
	}

	if status, _ := call(t, h.Signup, `{"name":"Ada","email":"ada@example.com","password":"secret123"}`, ""); status != http.StatusConflict {
		t.Errorf("duplicate email = %d", status)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"weak password", `{"name":"B","email":"b@example.com","password":"123"}`, http.StatusBadRequest},
		{"bad email", `{"name":"B","email":"nope","password":"secret123"}`, http.StatusBadRequest},
		{"missing name", `{"name":"  ","email":"b@example.com","password":"secret123"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, _ := call(t, h.Signup, tt.body, ""); status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}

	if status, _ := call(t, h.Login, `{"email":"ada@example.com","password":"wrong-pass"}`, ""); status != http.StatusUnauthorized {
		t.Errorf("wrong password = %d", status)
	}
	if status, _ := call(t, h.Login, `{"email":"ghost@example.com","password":"secret123"}`, ""); status != http.StatusUnauthorized {
		t.Errorf("unknown email = %d", status)
	}
	status, out = call(t, h.Login, `{"email":"ADA@example.com","password":"secret123"}`, "")
	if status != http.StatusOK || out["token"] == "" {
		t.Fatalf("login = %d %v", status, out)
	}

	u, _ := users.ByEmail(context.Background(), "ada@example.com")
	users.SetActive(context.Background(), u.ID, false)
	if status, _ := call(t, h.Login, `{"email":"ada@example.com","password":"secret123"}`, ""); status != http.StatusForbidden {
		t.Errorf("suspended login = %d", status)
	}

	status, out = call(t, h.Me, "", u.ID)
	if status != http.StatusOK || out["email"] != "ada@example.com" {
		t.Errorf("me = %d %v", status, out)
	}
	if status, _ := call(t, h.Me, "", ""); status != http.StatusUnauthorized {
		t.Errorf("anonymous me = %d", status)
	}
}

func TestBootstrapAdmin(t *testing.T) {
	h, users := newHandler(t)
	users.Create(context.Background(), &user.User{Name: "Root", Email: "root@example.com", Password: "x"})

	if status, _ := call(t, h.BootstrapAdmin, `{"email":"root@example.com","secret":"guess"}`, ""); status != http.StatusForbidden {
		t.Errorf("wrong secret = %d", status)
	}
	if status, _ := call(t, h.BootstrapAdmin, `{"email":"nobody@example.com","secret":"let-me-in"}`, ""); status != http.StatusNotFound {
		t.Errorf("unknown user = %d", status)
	}
	if status, _ := call(t, h.BootstrapAdmin, `{"email":"root@example.com","secret":"let-me-in"}`, ""); status != http.StatusOK {
		t.Errorf("bootstrap = %d", status)
	}
	u, _ := users.ByEmail(context.Background(), "root@example.com")
	if u.Role != user.RoleAdmin {
		t.Errorf("role = %q, want admin", u.Role)
	}

	disabled := NewHandler(users, NewTokens(secret, time.Hour), "")
	if status, _ := call(t, disabled.BootstrapAdmin, `{"email":"root@example.com","secret":""}`, ""); status != http.StatusForbidden {
		t.Errorf("bootstrap without configured secret = %d", status)
	}
}
