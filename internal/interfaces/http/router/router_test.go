package router

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"theme-gen-ai-api/internal/application/generation"
	"theme-gen-ai-api/internal/application/job"
	"theme-gen-ai-api/internal/application/quota"
	"theme-gen-ai-api/internal/application/ratelimit"
	"theme-gen-ai-api/internal/config"
	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/domain/service"
	"theme-gen-ai-api/internal/interfaces/http/dto"
	"theme-gen-ai-api/internal/interfaces/http/handler"
	"theme-gen-ai-api/pkg/errors"
	"theme-gen-ai-api/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testIssuer = "theme-gen"
)

type fakeOrchestrator struct {
	result *generation.Result
	err    error
	calls  []generation.Request
	actors []*service.Actor
}

func (f *fakeOrchestrator) RequestGeneration(ctx context.Context, req generation.Request, _ generation.Options) (*generation.Result, error) {
	f.calls = append(f.calls, req)
	actor, _ := service.ActorFromContext(ctx)
	f.actors = append(f.actors, actor)
	return f.result, f.err
}

type fakeJobs struct {
	enqueue    *job.EnqueueResult
	bulkItems  []entity.GenerationParams
	bulkActor  string
	template   string
	seed       *uint64
	results    map[string]*entity.JobResult
	enqueueReq *job.EnqueueRequest
}

func (f *fakeJobs) EnqueueGeneration(_ context.Context, req job.EnqueueRequest) (*job.EnqueueResult, error) {
	f.enqueueReq = &req
	return f.enqueue, nil
}

func (f *fakeJobs) EnqueueBulk(_ context.Context, actorID string, items []entity.GenerationParams, _ job.BulkOptions) (string, error) {
	f.bulkActor = actorID
	f.bulkItems = items
	return "bulk-1", nil
}

func (f *fakeJobs) EnqueueTemplateBulk(_ context.Context, _ string, theme string, _ int, seed *uint64, _ job.BulkOptions) (string, error) {
	f.template = theme
	f.seed = seed
	return "tpl-1", nil
}

func (f *fakeJobs) PollResult(_ context.Context, jobID string) (*entity.JobResult, bool, error) {
	if r, ok := f.results[jobID]; ok {
		return r, true, nil
	}
	return nil, false, errors.ErrJobNotFound
}

type fakeQuota struct {
	status     *quota.QuotaStatus
	resetFor   string
	upgradeFor string
	newLimit   int
}

func (f *fakeQuota) Status(context.Context, string) (*quota.QuotaStatus, error) {
	return f.status, nil
}

func (f *fakeQuota) Reset(_ context.Context, actorID string) error {
	f.resetFor = actorID
	return nil
}

func (f *fakeQuota) Upgrade(_ context.Context, actorID string, newLimit int) (*quota.QuotaStatus, error) {
	f.upgradeFor = actorID
	f.newLimit = newLimit
	return &quota.QuotaStatus{Limit: newLimit, IsPremium: true}, nil
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

type envelope struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
	Error   *dto.ErrorDetail `json:"error"`
}

type harness struct {
	engine *gin.Engine
	orch   *fakeOrchestrator
	jobs   *fakeJobs
	quota  *fakeQuota
}

func newHarness(t *testing.T, checks map[string]handler.HealthChecker) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.App.Name = "theme-gen-ai-api"
	cfg.Security.JWT.Secret = testSecret
	cfg.Security.JWT.Issuer = testIssuer
	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.Metrics.Path = "/metrics"
	cfg.LLM.DefaultProvider = "openrouter"
	cfg.LLM.Providers = map[string]config.ProviderConfig{"openrouter": {Model: "openai/gpt-4o-mini"}}

	h := &harness{
		orch:  &fakeOrchestrator{},
		jobs:  &fakeJobs{results: map[string]*entity.JobResult{}},
		quota: &fakeQuota{status: &quota.QuotaStatus{Limit: 10, Used: 3, Remaining: 7}},
	}
	r := New(cfg, Handlers{
		Health:     handler.NewHealthHandler("v1.2.3", checks),
		Generation: handler.NewGenerationHandler(&cfg.LLM, h.orch),
		Job:        handler.NewJobHandler(&cfg.LLM, h.jobs),
		Quota:      handler.NewQuotaHandler(h.quota),
		Admin:      handler.NewAdminHandler(h.jobs, h.quota),
	})
	h.engine = r.Engine()
	return h
}

func token(t *testing.T, actorID, role string) string {
	t.Helper()
	tok, err := utils.NewJWTManager(testSecret, testIssuer).GenerateToken(utils.ActorGrant{ActorID: actorID, Role: role, DailyLimit: 10}, "access", time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) do(t *testing.T, method, path, bearer string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func successResult() *generation.Result {
	return &generation.Result{
		Status:         generation.StatusSuccess,
		QuotaRemaining: 4,
		Outcome: &entity.GenerationOutcome{
			Success:      true,
			Content:      "Warm wishes on your birthday",
			InputTokens:  40,
			OutputTokens: 12,
			CostEstimate: 0.00001,
			Provider:     "openrouter",
			Model:        "openai/gpt-4o-mini",
		},
	}
}

func TestGenerateText_AnonymousSuccess(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.result = successResult()

	rec, env := h.do(t, http.MethodPost, "/v1/generations/text", "", map[string]string{"theme": "birthday"})

	require.Equal(t, http.StatusOK, rec.Code)
	var data dto.GenerationResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Warm wishes on your birthday", data.Content)
	require.NotNil(t, data.QuotaRemaining)
	assert.Equal(t, 4, *data.QuotaRemaining)

	require.Len(t, h.orch.calls, 1)
	call := h.orch.calls[0]
	assert.Empty(t, call.ActorID)
	assert.NotEmpty(t, call.ClientIP)
	assert.Equal(t, entity.GenerationKindText, call.Kind)
	assert.Equal(t, "casual", call.Params.Style)
	assert.Equal(t, "medium", call.Params.Length)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGenerateText_AuthenticatedActorReachesOrchestrator(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.result = successResult()

	rec, _ := h.do(t, http.MethodPost, "/v1/generations/text", token(t, "actor-1", "user"), map[string]string{"theme": "wedding", "style": "formal", "length": "short"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.orch.calls, 1)
	assert.Equal(t, "actor-1", h.orch.calls[0].ActorID)
	require.NotNil(t, h.orch.actors[0])
	assert.Equal(t, 10, h.orch.actors[0].DailyLimit)
}

func TestGenerateText_RateLimited(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.result = &generation.Result{
		Status:     generation.StatusRateLimited,
		RetryAfter: 29500 * time.Millisecond,
		RateLimit:  &ratelimit.Decision{Limit: 5, RetryAfter: 29500 * time.Millisecond},
	}

	rec, env := h.do(t, http.MethodPost, "/v1/generations/text", "", map[string]string{"theme": "birthday"})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	require.NotNil(t, env.Error)
	assert.Equal(t, string(errors.CodeTooManyRequests), env.Error.ErrorCode)
	require.NotNil(t, env.Error.RetryAfter)
	assert.Equal(t, 30, *env.Error.RetryAfter)
	require.NotNil(t, env.Error.Limit)
	assert.Equal(t, 5, *env.Error.Limit)
}

func TestGenerateText_QuotaExceeded(t *testing.T) {
	h := newHarness(t, nil)
	resetAt := time.Now().Add(3 * time.Hour)
	h.orch.result = &generation.Result{
		Status: generation.StatusQuotaExceeded,
		Admission: &quota.Admission{
			Limit:           10,
			Used:            10,
			ResetAt:         resetAt,
			SuggestedAction: "upgrade to premium for 100 generations per day",
		},
	}

	rec, env := h.do(t, http.MethodPost, "/v1/generations/text", token(t, "actor-1", "user"), map[string]string{"theme": "birthday"})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(errors.CodeQuotaExceeded), env.Error.ErrorCode)
	assert.Equal(t, 10, *env.Error.Limit)
	assert.Equal(t, 0, *env.Error.Remaining)
	assert.Contains(t, env.Error.SuggestedAction, "premium")
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestGenerateText_ProviderErrorHidesDetail(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.result = &generation.Result{Status: generation.StatusProviderError, ErrorDetail: "upstream 502 from api.example"}

	rec, env := h.do(t, http.MethodPost, "/v1/generations/text", "", map[string]string{"theme": "birthday"})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, errors.ErrProviderFailure.Message, env.Message)
	assert.NotContains(t, rec.Body.String(), "api.example")
}

func TestGenerateText_InvalidParams(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.result = &generation.Result{Status: generation.StatusInvalidParams, ErrorDetail: "unknown style \"loud\""}

	rec, env := h.do(t, http.MethodPost, "/v1/generations/text", "", map[string]string{"theme": "birthday", "style": "loud"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "loud")
}

func TestGenerateText_RejectsBadInputBeforeOrchestrator(t *testing.T) {
	h := newHarness(t, nil)

	rec, _ := h.do(t, http.MethodPost, "/v1/generations/text", "", map[string]string{"style": "formal"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/v1/generations/text", "", map[string]string{"theme": "x", "provider": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, h.orch.calls)
}

func TestGenerateText_OrchestratorErrorIs500(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.err = stderrors.New("db down")

	rec, _ := h.do(t, http.MethodPost, "/v1/generations/text", "", map[string]string{"theme": "birthday"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAnalyzeImage_PassesImageKind(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.result = &generation.Result{
		Status:         generation.StatusSuccess,
		QuotaRemaining: -1,
		Outcome: &entity.GenerationOutcome{
			Success:  true,
			Analysis: &entity.ImageAnalysis{Description: "a cake", SuggestedThemes: []string{"birthday"}, Confidence: 0.9},
		},
	}

	rec, env := h.do(t, http.MethodPost, "/v1/generations/image", "", map[string]string{"image_url": "https://example.com/cake.png"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entity.GenerationKindImage, h.orch.calls[0].Kind)
	var data dto.GenerationResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotNil(t, data.Analysis)
	assert.Equal(t, []string{"birthday"}, data.Analysis.SuggestedThemes)
	assert.Nil(t, data.QuotaRemaining)
}

func TestAuth_InvalidTokenRejected(t *testing.T) {
	h := newHarness(t, nil)

	rec, env := h.do(t, http.MethodPost, "/v1/generations/text", "garbage", map[string]string{"theme": "birthday"})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(errors.CodeTokenInvalid), env.Error.ErrorCode)
	assert.Empty(t, h.orch.calls)
}

func TestAuth_RefreshTokenRejected(t *testing.T) {
	h := newHarness(t, nil)
	refresh, err := utils.NewJWTManager(testSecret, testIssuer).GenerateToken(utils.ActorGrant{ActorID: "actor-1"}, "refresh", time.Hour)
	require.NoError(t, err)

	rec, _ := h.do(t, http.MethodGet, "/v1/quota", refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQuota_RequiresAuth(t *testing.T) {
	h := newHarness(t, nil)

	rec, env := h.do(t, http.MethodGet, "/v1/quota", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(errors.CodeTokenMissing), env.Error.ErrorCode)

	rec, env = h.do(t, http.MethodGet, "/v1/quota", token(t, "actor-1", "user"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var data dto.QuotaStatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "actor-1", data.ActorID)
	assert.Equal(t, 7, data.Remaining)
}

func TestJobs_EnqueueAndPoll(t *testing.T) {
	h := newHarness(t, nil)
	h.jobs.enqueue = &job.EnqueueResult{JobID: "11111111-1111-1111-1111-111111111111", Status: generation.StatusSuccess}
	finished := time.Now()
	h.jobs.results["11111111-1111-1111-1111-111111111111"] = &entity.JobResult{
		JobID:      "11111111-1111-1111-1111-111111111111",
		JobType:    entity.JobTypeSingle,
		Status:     entity.JobStatusSucceeded,
		Outcome:    &entity.GenerationOutcome{Success: true, Content: "hello"},
		Attempts:   1,
		Progress:   100,
		FinishedAt: &finished,
	}

	rec, env := h.do(t, http.MethodPost, "/v1/generation-jobs", token(t, "actor-1", "user"), map[string]string{"theme": "birthday"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted dto.JobAcceptedResponse
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.Equal(t, "/v1/generation-jobs/"+accepted.JobID, accepted.PollURL)
	assert.Equal(t, "actor-1", h.jobs.enqueueReq.ActorID)
	assert.Equal(t, entity.GenerationKindText, h.jobs.enqueueReq.Kind)

	rec, env = h.do(t, http.MethodGet, accepted.PollURL, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var polled dto.JobResultResponse
	require.NoError(t, json.Unmarshal(env.Data, &polled))
	assert.True(t, polled.Done)
	assert.True(t, polled.Cached)
	assert.Equal(t, "hello", polled.Outcome.Content)

	rec, env = h.do(t, http.MethodGet, "/v1/generation-jobs/unknown", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(errors.CodeJobNotFound), env.Error.ErrorCode)
}

func TestJobs_EnqueueRateLimited(t *testing.T) {
	h := newHarness(t, nil)
	h.jobs.enqueue = &job.EnqueueResult{
		Status:     generation.StatusRateLimited,
		RetryAfter: 10 * time.Second,
		RateLimit:  &ratelimit.Decision{Limit: 3},
	}

	rec, _ := h.do(t, http.MethodPost, "/v1/generation-jobs", "", map[string]string{"kind": "image", "image_url": "https://example.com/a.png"})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
	assert.Equal(t, entity.GenerationKindImage, h.jobs.enqueueReq.Kind)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	h := newHarness(t, nil)
	body := map[string]any{"items": []map[string]string{{"theme": "birthday", "style": "casual", "length": "short"}}}

	rec, _ := h.do(t, http.MethodPost, "/v1/admin/bulk-jobs", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/v1/admin/bulk-jobs", token(t, "actor-1", "user"), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, h.jobs.bulkItems)

	rec, env := h.do(t, http.MethodPost, "/v1/admin/bulk-jobs", token(t, "root", "admin"), body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted dto.JobAcceptedResponse
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.Equal(t, "bulk-1", accepted.JobID)
	assert.Equal(t, "root", h.jobs.bulkActor)
	require.Len(t, h.jobs.bulkItems, 1)
	assert.Equal(t, "birthday", h.jobs.bulkItems[0].Theme)
}

func TestAdmin_TemplateBulkAndQuotaManagement(t *testing.T) {
	h := newHarness(t, nil)
	admin := token(t, "root", "admin")

	rec, _ := h.do(t, http.MethodPost, "/v1/admin/template-bulk-jobs", admin, map[string]any{"theme": "graduation", "count": 20, "seed": 42})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "graduation", h.jobs.template)
	require.NotNil(t, h.jobs.seed)
	assert.Equal(t, uint64(42), *h.jobs.seed)

	rec, _ = h.do(t, http.MethodPost, "/v1/admin/template-bulk-jobs", admin, map[string]any{"theme": "graduation", "count": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodPost, "/v1/admin/actors/actor-9/quota/reset", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "actor-9", h.quota.resetFor)

	rec, env := h.do(t, http.MethodPost, "/v1/admin/actors/actor-9/quota/upgrade", admin, map[string]int{"daily_limit": 500})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, h.quota.newLimit)
	var status dto.QuotaStatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.IsPremium)

	rec, _ = h.do(t, http.MethodPost, "/v1/admin/actors/actor-9/quota/upgrade", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, h.quota.newLimit)
}

func TestHealthAndReadiness(t *testing.T) {
	h := newHarness(t, map[string]handler.HealthChecker{
		"postgres": fakeChecker{},
		"redis":    fakeChecker{err: stderrors.New("connection refused")},
	})

	rec, _ := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "v1.2.3")

	rec, _ = h.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec, _ = h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID_PreservedOrReplaced(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "bad id\nwith newline")
	rec = httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	assert.NotEqual(t, "bad id\nwith newline", rec.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
