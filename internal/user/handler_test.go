package user

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (fakeHasher) Verify(password, hash string) bool { return hash == "hashed:"+password }

type fakeTokens struct{}

func (fakeTokens) Issue(id int, email string) (string, error) {
	return "token-" + strconv.Itoa(id), nil
}

// failingRepository fails every call so the 500 paths can be reached.
type failingRepository struct{ Repository }

var errStorage = errors.New("connection refused")

func (failingRepository) FindByEmail(context.Context, string) (*User, error) { return nil, errStorage }
func (failingRepository) FindByID(context.Context, int) (*User, error)       { return nil, errStorage }
func (failingRepository) List(context.Context) ([]User, error)               { return nil, errStorage }

// makeAppWithUserHandler authenticates through the X-User-ID header instead of
// a signed token, which keeps these tests independent of the jwt middleware.
func makeAppWithUserHandler(repo Repository) *fiber.App {
	handler := NewHandler(NewService(repo, fakeHasher{}, fakeTokens{}), zerolog.Nop())
	authenticate := func(c *fiber.Ctx) error {
		id, err := strconv.Atoi(c.Get("X-User-ID"))
		if err != nil {
			return unauthorized(c)
		}
		user, err := repo.FindByID(c.UserContext(), id)
		if err != nil {
			return unauthorized(c)
		}
		SetCurrentUser(c, user)
		return c.Next()
	}

	app := fiber.New()
	handler.RegisterPublicRoutes(app)
	handler.RegisterProtectedRoutes(app, authenticate)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body, userID string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	res, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	raw, _ := io.ReadAll(res.Body)
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s returned non-JSON body %q", method, path, raw)
		}
	}
	if strings.Contains(string(raw), "hashed:") || strings.Contains(string(raw), "passwordHash") {
		t.Fatalf("%s %s leaked a password hash: %s", method, path, raw)
	}
	return res, out
}

func seedUsers() []User {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []User{
		{ID: 1, Email: "ann@example.com", PasswordHash: "hashed:secret1", FirstName: "Ann", LastName: "One", CreatedAt: base},
		{ID: 2, Email: "bob@example.com", PasswordHash: "hashed:secret2", FirstName: "Bob", LastName: "Two", CreatedAt: base.Add(time.Hour)},
	}
}

func TestRegisterAndLogin(t *testing.T) {
	app := makeAppWithUserHandler(NewInMemoryRepository(nil))

	res, body := doRequest(t, app, "POST", "/api/auth/register",
		`{"email":" Alice@Example.com ","password":"secret1","firstName":"Alice","lastName":"Doe","gender":"female","birthday":"1990-05-01"}`, "")
	if res.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201 on register, got %d: %v", res.StatusCode, body)
	}
	if body["message"] != "User registered successfully" || body["token"] != "token-1" {
		t.Fatalf("unexpected register body: %v", body)
	}
	user := body["user"].(map[string]any)
	if user["email"] != "alice@example.com" || user["gender"] != "female" {
		t.Fatalf("unexpected registered user: %v", user)
	}

	res, body = doRequest(t, app, "POST", "/api/auth/register",
		`{"email":"ALICE@example.com","password":"another","firstName":"A","lastName":"D"}`, "")
	if res.StatusCode != fiber.StatusBadRequest || body["error"] != "User already exists with this email" {
		t.Fatalf("expected duplicate rejection, got %d: %v", res.StatusCode, body)
	}

	res, body = doRequest(t, app, "POST", "/api/auth/login", `{"email":"alice@example.com","password":"secret1"}`, "")
	if res.StatusCode != fiber.StatusOK || body["message"] != "Login successful" || body["token"] != "token-1" {
		t.Fatalf("expected successful login, got %d: %v", res.StatusCode, body)
	}

	_, wrongPassword := doRequest(t, app, "POST", "/api/auth/login", `{"email":"alice@example.com","password":"nope"}`, "")
	res, unknownEmail := doRequest(t, app, "POST", "/api/auth/login", `{"email":"ghost@example.com","password":"nope"}`, "")
	if res.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown email, got %d", res.StatusCode)
	}
	if wrongPassword["error"] != "Invalid email or password" || unknownEmail["error"] != wrongPassword["error"] {
		t.Fatalf("login failures should be indistinguishable: %v vs %v", wrongPassword, unknownEmail)
	}
}

func TestRegisterValidationReportsEveryField(t *testing.T) {
	repo := NewInMemoryRepository(nil)
	app := makeAppWithUserHandler(repo)

	res, body := doRequest(t, app, "POST", "/api/auth/register",
		`{"email":"not-an-email","password":"123","firstName":"  ","gender":"robot","birthday":"yesterday"}`, "")
	if res.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
	errs, _ := body["errors"].([]any)
	fields := map[string]string{}
	for _, e := range errs {
		fe := e.(map[string]any)
		fields[fe["field"].(string)] = fe["message"].(string)
	}
	want := map[string]string{
		"email":     "Valid email is required",
		"password":  "Password must be at least 6 characters",
		"firstName": "First name is required",
		"lastName":  "Last name is required",
		"gender":    "Gender must be male, female, or other",
		"birthday":  "Birthday must be a valid date",
	}
	for field, msg := range want {
		if fields[field] != msg {
			t.Fatalf("field %s: expected %q, got %q (all: %v)", field, msg, fields[field], fields)
		}
	}

	if users, _ := repo.List(context.Background()); len(users) != 0 {
		t.Fatalf("invalid registration must not store anything, got %d users", len(users))
	}

	res, body = doRequest(t, app, "POST", "/api/auth/register",
		`{"email":"e@example.com","password":"secret1","firstName":"E","lastName":"E","gender":"","birthday":""}`, "")
	if res.StatusCode != fiber.StatusBadRequest || len(body["errors"].([]any)) != 2 {
		t.Fatalf("empty gender and birthday should both be rejected, got %d: %v", res.StatusCode, body)
	}
}

func TestLoginValidationAndBadBody(t *testing.T) {
	app := makeAppWithUserHandler(NewInMemoryRepository(seedUsers()))

	res, body := doRequest(t, app, "POST", "/api/auth/login", `{"email":"ann@example.com"}`, "")
	if res.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
	errs := body["errors"].([]any)
	if len(errs) != 1 || errs[0].(map[string]any)["message"] != "Password is required" {
		t.Fatalf("unexpected login validation errors: %v", errs)
	}

	res, body = doRequest(t, app, "POST", "/api/auth/login", `{"email":`, "")
	if res.StatusCode != fiber.StatusBadRequest || body["error"] != "Invalid request body" {
		t.Fatalf("expected invalid body rejection, got %d: %v", res.StatusCode, body)
	}
}

func TestServerErrorsAreGeneric(t *testing.T) {
	app := makeAppWithUserHandler(failingRepository{})

	res, body := doRequest(t, app, "POST", "/api/auth/register",
		`{"email":"x@example.com","password":"secret1","firstName":"X","lastName":"Y"}`, "")
	if res.StatusCode != fiber.StatusInternalServerError || body["error"] != "Server error during registration" {
		t.Fatalf("expected registration 500, got %d: %v", res.StatusCode, body)
	}
	if strings.Contains(body["error"].(string), errStorage.Error()) {
		t.Fatalf("storage error leaked to client: %v", body)
	}

	res, body = doRequest(t, app, "POST", "/api/auth/login", `{"email":"x@example.com","password":"secret1"}`, "")
	if res.StatusCode != fiber.StatusInternalServerError || body["error"] != "Server error during login" {
		t.Fatalf("expected login 500, got %d: %v", res.StatusCode, body)
	}
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	app := makeAppWithUserHandler(NewInMemoryRepository(seedUsers()))

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/users"},
		{"GET", "/api/users/1"},
		{"PUT", "/api/users/1"},
		{"DELETE", "/api/users/1"},
	} {
		res, body := doRequest(t, app, tc.method, tc.path, "", "")
		if res.StatusCode != fiber.StatusUnauthorized || body["error"] != "Unauthorized" {
			t.Fatalf("%s %s: expected 401, got %d: %v", tc.method, tc.path, res.StatusCode, body)
		}
	}
}

func TestListAndGetUsers(t *testing.T) {
	app := makeAppWithUserHandler(NewInMemoryRepository(seedUsers()))

	res, body := doRequest(t, app, "GET", "/api/users", "", "1")
	if res.StatusCode != fiber.StatusOK || body["message"] != "Users retrieved successfully" {
		t.Fatalf("unexpected list response %d: %v", res.StatusCode, body)
	}
	if body["count"].(float64) != 2 {
		t.Fatalf("expected count 2, got %v", body["count"])
	}
	users := body["users"].([]any)
	if users[0].(map[string]any)["email"] != "bob@example.com" {
		t.Fatalf("expected newest user first, got %v", users)
	}

	res, body = doRequest(t, app, "GET", "/api/users/2", "", "1")
	if res.StatusCode != fiber.StatusOK || body["user"].(map[string]any)["firstName"] != "Bob" {
		t.Fatalf("unexpected get response %d: %v", res.StatusCode, body)
	}

	for _, path := range []string{"/api/users/999", "/api/users/abc"} {
		res, body = doRequest(t, app, "GET", path, "", "1")
		if res.StatusCode != fiber.StatusNotFound || body["error"] != "User not found" {
			t.Fatalf("%s: expected 404, got %d: %v", path, res.StatusCode, body)
		}
	}
}

func TestUpdateUser(t *testing.T) {
	seed := seedUsers()
	addr := "1 Main St"
	seed[0].Address = &addr
	repo := NewInMemoryRepository(seed)
	app := makeAppWithUserHandler(repo)

	// ownership is checked before the body is even parsed
	res, body := doRequest(t, app, "PUT", "/api/users/2", `{"email":`, "1")
	if res.StatusCode != fiber.StatusForbidden || body["error"] != "You can only update your own profile" {
		t.Fatalf("expected 403, got %d: %v", res.StatusCode, body)
	}
	res, _ = doRequest(t, app, "PUT", "/api/users/abc", `{}`, "1")
	if res.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 for non-numeric id, got %d", res.StatusCode)
	}

	res, body = doRequest(t, app, "PUT", "/api/users/1", `{}`, "1")
	if res.StatusCode != fiber.StatusBadRequest || body["error"] != "No fields to update" {
		t.Fatalf("expected empty update rejection, got %d: %v", res.StatusCode, body)
	}

	res, body = doRequest(t, app, "PUT", "/api/users/1", `{"firstName":" ","gender":"robot","password":"x"}`, "1")
	if res.StatusCode != fiber.StatusBadRequest || len(body["errors"].([]any)) != 3 {
		t.Fatalf("expected three validation errors, got %d: %v", res.StatusCode, body)
	}

	res, body = doRequest(t, app, "PUT", "/api/users/1", `{"firstName":"Z","gender":""}`, "1")
	if res.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected empty gender to be rejected, got %d: %v", res.StatusCode, body)
	}
	errs := body["errors"].([]any)
	if len(errs) != 1 || errs[0].(map[string]any)["field"] != "gender" {
		t.Fatalf("expected a single gender error, got %v", errs)
	}
	res, body = doRequest(t, app, "PUT", "/api/users/1", `{"gender":"","birthday":""}`, "1")
	if res.StatusCode != fiber.StatusBadRequest || len(body["errors"].([]any)) != 2 {
		t.Fatalf("expected gender and birthday errors, got %d: %v", res.StatusCode, body)
	}
	if got, _ := repo.FindByID(context.Background(), 1); got.FirstName != "Ann" {
		t.Fatalf("rejected update must not be applied, got %+v", got)
	}

	res, body = doRequest(t, app, "PUT", "/api/users/1", `{"email":"BOB@example.com"}`, "1")
	if res.StatusCode != fiber.StatusBadRequest || body["error"] != "Email already in use" {
		t.Fatalf("expected email conflict, got %d: %v", res.StatusCode, body)
	}

	res, body = doRequest(t, app, "PUT", "/api/users/1",
		`{"firstName":" Annie ","address":null,"country":"TH","password":"newsecret"}`, "1")
	if res.StatusCode != fiber.StatusOK || body["message"] != "User updated successfully" {
		t.Fatalf("expected successful update, got %d: %v", res.StatusCode, body)
	}
	user := body["user"].(map[string]any)
	if user["firstName"] != "Annie" || user["address"] != nil || user["country"] != "TH" || user["lastName"] != "One" {
		t.Fatalf("update applied incorrectly: %v", user)
	}

	stored, err := repo.FindByEmail(context.Background(), "ann@example.com")
	if err != nil {
		t.Fatalf("lookup after update failed: %v", err)
	}
	if stored.PasswordHash != "hashed:newsecret" {
		t.Fatalf("password was not re-hashed, got %q", stored.PasswordHash)
	}
}

func TestDeleteUser(t *testing.T) {
	repo := NewInMemoryRepository(seedUsers())
	app := makeAppWithUserHandler(repo)

	res, body := doRequest(t, app, "DELETE", "/api/users/2", "", "1")
	if res.StatusCode != fiber.StatusForbidden || body["error"] != "You can only delete your own profile" {
		t.Fatalf("expected 403, got %d: %v", res.StatusCode, body)
	}

	res, body = doRequest(t, app, "DELETE", "/api/users/1", "", "1")
	if res.StatusCode != fiber.StatusOK || body["message"] != "User deleted successfully" {
		t.Fatalf("expected successful delete, got %d: %v", res.StatusCode, body)
	}
	deleted := body["deletedUser"].(map[string]any)
	if deleted["id"].(float64) != 1 || deleted["email"] != "ann@example.com" {
		t.Fatalf("unexpected deletedUser: %v", deleted)
	}

	if _, err := repo.FindByID(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected user to be gone, got %v", err)
	}

	// the deleted user can no longer authenticate
	res, _ = doRequest(t, app, "GET", "/api/users", "", "1")
	if res.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 after deletion, got %d", res.StatusCode)
	}
}
