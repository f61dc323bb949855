package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"adgen-jobs/constant"
	"adgen-jobs/dto"
	"adgen-jobs/notify"
	"adgen-jobs/repository"
	"adgen-jobs/service"
)

type gatedBackend struct {
	gate chan struct{}
}

func (g gatedBackend) GenerateLogo(ctx context.Context, prompt string) (string, error) {
	select {
	case <-g.gate:
		return "logo://" + prompt, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g gatedBackend) GenerateVideo(ctx context.Context, prompt, _ string) (string, error) {
	return "video://" + prompt, nil
}

type fixture struct {
	router *gin.Engine
	runner service.JobRunner
	hub    *notify.Hub
	gate   chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := notify.NewHub()
	backend := gatedBackend{gate: make(chan struct{})}
	runner := service.NewJobRunner(ctx, repository.NewMemoryRepo(), hub, backend, backend, 2)

	router := gin.New()
	router.Use(RequestLogger(zerolog.Nop()))
	NewJobHandler(ctx, runner, hub, constant.StorageDriverMemory).Register(router)

	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		_ = runner.Shutdown(sctx)
		hub.Close(sctx)
		cancel()
	})
	return &fixture{router: router, runner: runner, hub: hub, gate: backend.gate}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) create(t *testing.T, body string) string {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/jobs", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp dto.CreateJobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if !resp.Accepted || !resp.Success || resp.JobId == "" {
		t.Fatalf("unexpected create response %+v", resp)
	}
	return resp.JobId
}

func TestCreateAndGetJob(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, `{"prompt":"taco truck","generateVideo":true,"ownerId":"u1"}`)

	rec := f.do(http.MethodGet, "/api/jobs/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	var resp dto.JobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Job.ID != id || resp.Job.OwnerID != "u1" || resp.Job.JobType != constant.JobTypeLogoAndVideo {
		t.Fatalf("unexpected job %+v", resp.Job)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestCreateJobValidation(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`{"prompt":"   "}`, `not json`, `{"prompt": 5}`} {
		rec := f.do(http.MethodPost, "/api/jobs", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
		var resp dto.ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Success || resp.Error == "" {
			t.Fatalf("body %q: unexpected error response %s", body, rec.Body.String())
		}
	}
}

func TestCreateJobWhileDraining(t *testing.T) {
	f := newFixture(t)
	_ = f.runner.Shutdown(context.Background())
	rec := f.do(http.MethodPost, "/api/jobs", `{"prompt":"late"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestUnknownJobIsNotFound(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/jobs/job_missing"},
		{http.MethodDelete, "/api/jobs/job_missing"},
		{http.MethodDelete, "/api/jobs/job_missing/record"},
	} {
		if rec := f.do(tc.method, tc.path, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestCancelThenDeleteRecord(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, `{"prompt":"cinema"}`)

	rec := f.do(http.MethodDelete, "/api/jobs/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d", rec.Code)
	}
	job, _ := f.runner.GetJob(context.Background(), id)
	if job.Status != constant.JobStatusFailed || *job.ErrorMessage != constant.CancelledMessage {
		t.Fatalf("expected cancelled job, got %+v", job)
	}
	if rec := f.do(http.MethodDelete, "/api/jobs/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second cancel: expected 404, got %d", rec.Code)
	}

	if rec := f.do(http.MethodDelete, "/api/jobs/"+id+"/record", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete record: status %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/jobs/"+id, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected deleted job to be gone, got %d", rec.Code)
	}
}

func TestListDashboardAndHealth(t *testing.T) {
	f := newFixture(t)
	f.create(t, `{"prompt":"a","ownerId":"team"}`)
	f.create(t, `{"prompt":"b","ownerId":"team"}`)
	f.create(t, `{"prompt":"c"}`)

	rec := f.do(http.MethodGet, "/api/jobs?owner=team&limit=1", "")
	var list dto.JobsListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].Prompt != "b" {
		t.Fatalf("expected most recent team job only, got %+v", list.Jobs)
	}
	if rec := f.do(http.MethodGet, "/api/jobs?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/jobs/dashboard?owner=team", "")
	var dash dto.DashboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dash.Summary.Total != 2 || dash.Summary.Pending+dash.Summary.Processing != 2 {
		t.Fatalf("unexpected dashboard summary %+v", dash.Summary)
	}

	rec = f.do(http.MethodGet, "/api/health", "")
	var health struct {
		Status     string `json:"status"`
		ActiveJobs int    `json:"activeJobs"`
		Storage    string `json:"storage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.ActiveJobs != 3 || health.Storage != "memory" {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestEventsStreamDeliversLifecycle(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("stream observer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	id := f.create(t, `{"prompt":"ramen"}`)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	var sawEvent, sawJob bool
	timeout := time.After(2 * time.Second)
	for !(sawEvent && sawJob) {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed early")
			}
			if line == "event:"+string(constant.EventJobStarted) {
				sawEvent = true
			}
			if strings.HasPrefix(line, "data:") && strings.Contains(line, id) {
				sawJob = true
			}
		case <-timeout:
			t.Fatalf("job_started not streamed (event=%v data=%v)", sawEvent, sawJob)
		}
	}
}
