package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"jewelshot/internal/adapter/memstore"
	"jewelshot/internal/backoff"
	"jewelshot/internal/batch"
	"jewelshot/internal/domain"
	"jewelshot/internal/http/handlers"
	"jewelshot/internal/infra/credentials"
	"jewelshot/internal/ledger"
	"jewelshot/internal/middleware"
	"jewelshot/internal/processor"
	"jewelshot/internal/providers/genai"
	"jewelshot/internal/ratelimit"
	"jewelshot/internal/storage"
	"jewelshot/internal/submission"
)

const testSecret = "test-secret"

type fixture struct {
	srv *httptest.Server
	mem *memstore.Store
	led *ledger.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()
	mem := memstore.New()
	led := ledger.NewService(mem, nil, 2, log)

	objects, err := storage.NewFileStore(t.TempDir(), "http://files.test/static")
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	pool := credentials.NewPool(mem, 0, log)
	if _, err := pool.Seed(ctx, []string{"key-1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	exec := processor.NewExecutor(genai.NewSynthetic(), pool, objects, log)
	policy := backoff.Policy{Base: time.Millisecond, Cap: time.Millisecond, MaxAttempts: 2}

	app := &handlers.App{
		Gateway: submission.NewGateway(
			ratelimit.New(ratelimit.NewMemoryStore()),
			submission.Limits{PerUser: 3, Global: 100, Window: time.Minute},
			led, mem, log,
		),
		Batches:    batch.NewOrchestrator(mem, led, exec, objects, nil, policy, log),
		Ledger:     led,
		Jobs:       mem,
		Objects:    objects,
		Logger:     log,
		StreamPoll: 10 * time.Millisecond,
	}
	srv := httptest.NewServer(NewRouter(app, Options{JWTSecret: testSecret, DefaultLocale: "en", Logger: log}))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, mem: mem, led: led}
}

func (f *fixture) grant(t *testing.T, user string, amount int64) {
	t.Helper()
	if _, err := f.led.Grant(context.Background(), user, amount); err != nil {
		t.Fatalf("grant: %v", err)
	}
}

func token(t *testing.T, user string) string {
	t.Helper()
	tok, err := middleware.SignJWT(testSecret, middleware.TokenClaims{Sub: user, Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (f *fixture) do(t *testing.T, method, path, user string, body any, header ...string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

var upscale = map[string]any{"operation": "upscale", "params": map[string]any{"image_url": "https://cdn.example.com/ring.jpg"}}

func TestHealthAndAuth(t *testing.T) {
	f := newFixture(t)
	if resp := f.do(t, http.MethodGet, "/v1/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodPost, "/v1/jobs", "", upscale); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous submit = %d", resp.StatusCode)
	}
}

func TestSubmitAndFetchJob(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", 10)

	resp := f.do(t, http.MethodPost, "/v1/jobs", "u1", upscale)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit = %d", resp.StatusCode)
	}
	var job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Cost   int64  `json:"cost"`
	}
	decode(t, resp, &job)
	if job.ID == "" || job.Status != "queued" || job.Cost != 2 {
		t.Fatalf("job = %+v", job)
	}

	resp = f.do(t, http.MethodGet, "/v1/jobs/"+job.ID, "u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get = %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodGet, "/v1/jobs/"+job.ID, "intruder", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign get = %d", resp.StatusCode)
	}

	var credits struct {
		Balance   int64 `json:"balance"`
		Reserved  int64 `json:"reserved"`
		Available int64 `json:"available"`
	}
	decode(t, f.do(t, http.MethodGet, "/v1/credits", "u1", nil), &credits)
	if credits.Balance != 10 || credits.Reserved != 2 || credits.Available != 8 {
		t.Fatalf("credits = %+v", credits)
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "rich", 100)

	resp := f.do(t, http.MethodPost, "/v1/jobs", "rich", map[string]any{"operation": "teleport"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown operation = %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/v1/jobs", "poor", upscale, "Accept-Language", "id-ID")
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("no credit = %d", resp.StatusCode)
	}
	var body struct {
		Error   string         `json:"error"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	}
	decode(t, resp, &body)
	if body.Error != "insufficient_credit" || !strings.HasPrefix(body.Message, "Kredit tidak cukup") {
		t.Fatalf("body = %+v", body)
	}
	if body.Details["required"] != float64(2) {
		t.Fatalf("details = %v", body.Details)
	}

	for i := 0; i < 3; i++ {
		if resp := f.do(t, http.MethodPost, "/v1/jobs", "rich", upscale); resp.StatusCode != http.StatusAccepted {
			t.Fatalf("submit %d = %d", i, resp.StatusCode)
		}
	}
	resp = f.do(t, http.MethodPost, "/v1/jobs", "rich", upscale)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("over limit = %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestStreamJobUntilTerminal(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", 10)
	var job struct {
		ID string `json:"id"`
	}
	decode(t, f.do(t, http.MethodPost, "/v1/jobs", "u1", upscale), &job)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/jobs/" + job.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token(t, "u1")}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first struct {
		Status string `json:"status"`
	}
	if err := conn.ReadJSON(&first); err != nil || first.Status != "queued" {
		t.Fatalf("first frame = %+v, %v", first, err)
	}

	ctx := context.Background()
	if _, err := f.mem.ClaimNext(ctx, domain.LaneInteractive, "w1", time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := f.mem.Complete(ctx, job.ID, "w1", domain.GenerationResult{URL: "https://cdn.example.com/out.png", Width: 10, Height: 10}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	var last struct {
		Status  string          `json:"status"`
		Outcome *domain.Outcome `json:"outcome"`
	}
	for last.Status != "completed" {
		if err := conn.ReadJSON(&last); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if last.Outcome == nil || !last.Outcome.Success || last.Outcome.Data.URL != "https://cdn.example.com/out.png" {
		t.Fatalf("outcome = %+v", last.Outcome)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestBatchLifecycle(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", 10)

	resp := f.do(t, http.MethodPost, "/v1/batches", "u1", map[string]any{
		"name":      "Spring Rings",
		"operation": "remove-background",
		"images":    []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d", resp.StatusCode)
	}
	var created struct {
		ID    string `json:"id"`
		Total int    `json:"total"`
	}
	decode(t, resp, &created)
	if created.Total != 2 {
		t.Fatalf("created = %+v", created)
	}
	if resp := f.do(t, http.MethodGet, "/v1/batches/"+created.ID, "intruder", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign snapshot = %d", resp.StatusCode)
	}

	var progress domain.BatchProgress
	for i := 0; i < 2; i++ {
		resp := f.do(t, http.MethodPost, "/v1/batches/"+created.ID+"/process-next", "u1", map[string]string{"presetId": "p1", "presetName": "studio white"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("process %d = %d", i, resp.StatusCode)
		}
		progress = domain.BatchProgress{}
		decode(t, resp, &progress)
		if !progress.Processed || progress.CurrentImage == nil || progress.CurrentImage.Label != "Studio White" {
			t.Fatalf("step %d = %+v", i, progress)
		}
	}
	if !progress.Done || progress.Progress.Completed != 2 || progress.Remaining != 0 {
		t.Fatalf("final = %+v", progress.Progress)
	}

	resp = f.do(t, http.MethodPost, "/v1/batches/"+created.ID+"/process-next", "u1", nil)
	progress = domain.BatchProgress{}
	decode(t, resp, &progress)
	if progress.Processed || !progress.Done {
		t.Fatalf("drained batch = %+v", progress)
	}

	resp = f.do(t, http.MethodGet, "/v1/batches/"+created.ID+"/archive", "u1", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/zip" {
		t.Fatalf("archive = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	raw, _ := io.ReadAll(resp.Body)
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("archive entries = %d", len(zr.File))
	}
	if zr.File[0].Name != "001-studio-white.png" {
		t.Fatalf("entry name = %s", zr.File[0].Name)
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "spring-rings.zip") {
		t.Fatalf("disposition = %s", resp.Header.Get("Content-Disposition"))
	}

	var credits struct {
		Balance int64 `json:"balance"`
	}
	decode(t, f.do(t, http.MethodGet, "/v1/credits", "u1", nil), &credits)
	if credits.Balance != 8 {
		t.Fatalf("balance = %d", credits.Balance)
	}
}
