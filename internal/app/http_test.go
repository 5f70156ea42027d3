package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"uccs/api/internal/authpw"
)

func newTestServer(t *testing.T) (http.Handler, *Service, *fakeStore) {
	t.Helper()
	service, fake := newTestService(t)
	if err := service.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return NewHTTPServer(service, "*").Handler(), service, fake
}

func signInDemo(t *testing.T, service *Service) Session {
	t.Helper()
	session, err := service.SignIn(context.Background(), authpw.SignInRequest{
		Email:    "demo@uccs.local",
		Password: "demo-pass-1",
	})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	return session
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	payload := map[string]any{}
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder, payload
}

func TestHealthAndReady(t *testing.T) {
	handler, _, _ := newTestServer(t)

	recorder, payload := doJSON(t, handler, http.MethodGet, "/api/health", "", "")
	if recorder.Code != http.StatusOK || payload["ok"] != true {
		t.Fatalf("health: %d %v", recorder.Code, payload)
	}

	recorder, payload = doJSON(t, handler, http.MethodGet, "/api/ready", "", "")
	if recorder.Code != http.StatusOK || payload["status"] != "ready" {
		t.Fatalf("ready: %d %v", recorder.Code, payload)
	}
}

func TestRequiresBearerToken(t *testing.T) {
	handler, _, _ := newTestServer(t)

	recorder, payload := doJSON(t, handler, http.MethodGet, "/api/clients", "", "")
	if recorder.Code != http.StatusUnauthorized || payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected 401 UNAUTHORIZED, got %d %v", recorder.Code, payload)
	}

	recorder, _ = doJSON(t, handler, http.MethodGet, "/api/clients", "not-a-token", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", recorder.Code)
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	handler, _, _ := newTestServer(t)

	recorder, payload := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "",
		`{"email":"New@Example.com","password":"password123","displayName":"New User"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("signup: %d %v", recorder.Code, payload)
	}
	if payload["token"] == "" || payload["refreshToken"] == "" {
		t.Fatalf("signup payload missing tokens: %v", payload)
	}

	recorder, payload = doJSON(t, handler, http.MethodPost, "/api/auth/signup", "",
		`{"email":"new@example.com","password":"password123","displayName":"Again"}`)
	if recorder.Code != http.StatusConflict || payload["code"] != "EMAIL_EXISTS" {
		t.Fatalf("duplicate signup: %d %v", recorder.Code, payload)
	}

	recorder, payload = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "",
		`{"email":"new@example.com","password":"wrong-password"}`)
	if recorder.Code != http.StatusUnauthorized || payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("bad signin: %d %v", recorder.Code, payload)
	}

	recorder, payload = doJSON(t, handler, http.MethodPost, "/api/auth/signin", "",
		`{"email":"new@example.com","password":"password123"}`)
	if recorder.Code != http.StatusOK || payload["userName"] != "New User" {
		t.Fatalf("signin: %d %v", recorder.Code, payload)
	}
}

func TestRefreshRotation(t *testing.T) {
	handler, service, _ := newTestServer(t)
	session := signInDemo(t, service)

	recorder, payload := doJSON(t, handler, http.MethodPost, "/api/session/refresh", "",
		`{"refreshToken":"`+session.RefreshToken+`"}`)
	if recorder.Code != http.StatusOK || payload["token"] == "" {
		t.Fatalf("refresh: %d %v", recorder.Code, payload)
	}

	recorder, _ = doJSON(t, handler, http.MethodPost, "/api/session/refresh", "",
		`{"refreshToken":"`+session.RefreshToken+`"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected rotated refresh token to be rejected, got %d", recorder.Code)
	}
}

func TestClientRoutes(t *testing.T) {
	handler, service, _ := newTestServer(t)
	token := signInDemo(t, service).Token

	recorder, payload := doJSON(t, handler, http.MethodPost, "/api/clients", token,
		`{"name":"Globex","industry":"Energy","contactName":"Hank"}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create client: %d %v", recorder.Code, payload)
	}
	clientID := payload["id"].(string)

	recorder, payload = doJSON(t, handler, http.MethodGet, "/api/clients/"+clientID, token, "")
	if recorder.Code != http.StatusOK || payload["name"] != "Globex" {
		t.Fatalf("get client: %d %v", recorder.Code, payload)
	}
	if _, ok := payload["projects"]; !ok {
		t.Fatal("client payload missing projects")
	}

	recorder, payload = doJSON(t, handler, http.MethodPost, "/api/clients", token, `{"name":"  "}`)
	if recorder.Code != http.StatusUnprocessableEntity || payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("blank name: %d %v", recorder.Code, payload)
	}

	recorder, payload = doJSON(t, handler, http.MethodGet, "/api/clients/cli_missing", token, "")
	if recorder.Code != http.StatusNotFound || payload["code"] != "NOT_FOUND" {
		t.Fatalf("missing client: %d %v", recorder.Code, payload)
	}

	recorder, _ = doJSON(t, handler, http.MethodDelete, "/api/clients/"+clientID, token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("delete client: %d", recorder.Code)
	}
}

func seedProjectID(t *testing.T, fake *fakeStore) string {
	t.Helper()
	for id := range fake.projects {
		return id
	}
	t.Fatal("no seeded project")
	return ""
}

func TestAnswerBatchEndpoint(t *testing.T) {
	handler, service, fake := newTestServer(t)
	token := signInDemo(t, service).Token
	projectID := seedProjectID(t, fake)

	form := url.Values{
		"q_business_goals":        {"Generate leads", "Other"},
		"q_business_goals__other": {"kiosk mode"},
		"q_unknown_field":         {"x"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID+"/answers",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("batch: %d %s", recorder.Code, recorder.Body.String())
	}
	var result BatchResult
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Applied != 1 || len(result.Skipped) != 1 {
		t.Fatalf("result = %+v", result)
	}

	// Progress reflects the write.
	progressRec, progress := doJSON(t, handler, http.MethodGet, "/api/projects/"+projectID+"/progress", token, "")
	if progressRec.Code != http.StatusOK {
		t.Fatalf("progress: %d", progressRec.Code)
	}
	if progress["answered"].(float64) != 1 {
		t.Fatalf("answered = %v", progress["answered"])
	}
}

func TestSubmittedProjectRejectsWrites(t *testing.T) {
	handler, service, fake := newTestServer(t)
	token := signInDemo(t, service).Token
	projectID := seedProjectID(t, fake)

	recorder, payload := doJSON(t, handler, http.MethodPost, "/api/projects/"+projectID+"/submit", token, "")
	if recorder.Code != http.StatusOK || payload["status"] != "SUBMITTED" {
		t.Fatalf("submit: %d %v", recorder.Code, payload)
	}

	recorder, payload = doJSON(t, handler, http.MethodPut, "/api/projects/"+projectID+"/answers/hosting", token,
		`{"value":"We need hosting"}`)
	if recorder.Code != http.StatusForbidden || payload["code"] != "READ_ONLY" {
		t.Fatalf("expected 403 READ_ONLY, got %d %v", recorder.Code, payload)
	}

	recorder, _ = doJSON(t, handler, http.MethodPost, "/api/projects/"+projectID+"/reopen", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("reopen: %d", recorder.Code)
	}
	recorder, _ = doJSON(t, handler, http.MethodPut, "/api/projects/"+projectID+"/answers/hosting", token,
		`{"value":"We need hosting"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("write after reopen: %d", recorder.Code)
	}
}

func TestProposalRoutes(t *testing.T) {
	handler, service, fake := newTestServer(t)
	token := signInDemo(t, service).Token
	projectID := seedProjectID(t, fake)

	recorder, payload := doJSON(t, handler, http.MethodPost, "/api/projects/"+projectID+"/proposals", token, "")
	if recorder.Code != http.StatusCreated || payload["version"].(float64) != 1 {
		t.Fatalf("save proposal: %d %v", recorder.Code, payload)
	}

	recorder, payload = doJSON(t, handler, http.MethodGet, "/api/projects/"+projectID+"/proposals", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("list proposals: %d", recorder.Code)
	}
	proposals := payload["proposals"].([]any)
	if len(proposals) != 1 {
		t.Fatalf("proposals = %v", proposals)
	}
	if _, ok := proposals[0].(map[string]any)["html"]; ok {
		t.Fatal("list payload should not carry html")
	}

	recorder, payload = doJSON(t, handler, http.MethodGet, "/api/projects/"+projectID+"/proposals/1", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("get proposal: %d", recorder.Code)
	}
	if payload["html"] == "" {
		t.Fatal("pinned proposal payload missing html")
	}

	recorder, payload = doJSON(t, handler, http.MethodGet, "/api/projects/"+projectID+"/proposals/two", token, "")
	if recorder.Code != http.StatusUnprocessableEntity || payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("bad version: %d %v", recorder.Code, payload)
	}

	recorder, payload = doJSON(t, handler, http.MethodGet, "/api/projects/"+projectID+"/proposals/99", token, "")
	if recorder.Code != http.StatusNotFound || payload["code"] != "NOT_FOUND" {
		t.Fatalf("missing version: %d %v", recorder.Code, payload)
	}
}

func TestIntakeFormEndpoint(t *testing.T) {
	handler, service, fake := newTestServer(t)
	token := signInDemo(t, service).Token
	projectID := seedProjectID(t, fake)

	recorder, payload := doJSON(t, handler, http.MethodGet, "/api/projects/"+projectID+"/intake", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("intake: %d", recorder.Code)
	}
	phases := payload["phases"].([]any)
	if len(phases) == 0 {
		t.Fatal("intake payload missing phases")
	}
	first := phases[0].(map[string]any)
	if first["title"] != "Discovery" {
		t.Fatalf("first phase = %v", first["title"])
	}
}

func TestIntakeLifecycleRoundTrip(t *testing.T) {
	handler, service, fake := newTestServer(t)
	token := signInDemo(t, service).Token
	projectID := seedProjectID(t, fake)

	recorder, _ := doJSON(t, handler, http.MethodPut, "/api/projects/"+projectID+"/answers/success_metric", token,
		`{"value":"hello"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("autosave: %d", recorder.Code)
	}

	form := url.Values{
		"q_business_goals":        {"Generate leads", "Other"},
		"q_business_goals__other": {"kiosk mode"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID+"/answers",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("batch: %d %s", recorder.Code, recorder.Body.String())
	}
	if got := fake.answers[projectID]["business_goals"]; got != `["Generate leads","Other: kiosk mode"]` {
		t.Fatalf("stored batch value: %q", got)
	}

	recorder, progress := doJSON(t, handler, http.MethodGet, "/api/projects/"+projectID+"/progress", token, "")
	if recorder.Code != http.StatusOK || progress["answered"].(float64) != 2 {
		t.Fatalf("progress after writes: %d %v", recorder.Code, progress)
	}

	recorder, _ = doJSON(t, handler, http.MethodPost, "/api/projects/"+projectID+"/submit", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("submit: %d", recorder.Code)
	}

	// Locked: the write is refused and stored rows stay byte-identical.
	recorder, payload := doJSON(t, handler, http.MethodPut, "/api/projects/"+projectID+"/answers/success_metric", token,
		`{"value":"changed"}`)
	if recorder.Code != http.StatusForbidden || payload["code"] != "READ_ONLY" {
		t.Fatalf("locked write: %d %v", recorder.Code, payload)
	}
	if got := fake.answers[projectID]["success_metric"]; got != "hello" {
		t.Fatalf("answer changed while locked: %q", got)
	}

	recorder, _ = doJSON(t, handler, http.MethodPost, "/api/projects/"+projectID+"/reopen", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("reopen: %d", recorder.Code)
	}

	// Reopened: an empty submission clears the row and progress drops.
	recorder, _ = doJSON(t, handler, http.MethodPut, "/api/projects/"+projectID+"/answers/success_metric", token,
		`{"value":""}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("clear after reopen: %d", recorder.Code)
	}
	if _, ok := fake.answers[projectID]["success_metric"]; ok {
		t.Fatal("expected cleared answer row to be gone")
	}
	recorder, progress = doJSON(t, handler, http.MethodGet, "/api/projects/"+projectID+"/progress", token, "")
	if recorder.Code != http.StatusOK || progress["answered"].(float64) != 1 {
		t.Fatalf("progress after clear: %d %v", recorder.Code, progress)
	}

	recorder, intakePayload := doJSON(t, handler, http.MethodGet, "/api/projects/"+projectID+"/intake", token, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("intake: %d", recorder.Code)
	}
	if intakePayload["progress"].(map[string]any)["answered"].(float64) != 1 {
		t.Fatalf("intake progress: %v", intakePayload["progress"])
	}
}
