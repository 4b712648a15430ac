package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"

	"github.com/alfanzaky/txhook/internal/domain"
	"github.com/alfanzaky/txhook/internal/repository/memory"
	redisrepo "github.com/alfanzaky/txhook/internal/repository/redis"
	"github.com/alfanzaky/txhook/internal/usecase"
	"github.com/alfanzaky/txhook/pkg/ratelimit"
	"github.com/alfanzaky/txhook/pkg/xresponse"
)

const t1Body = `{"transaction_id":"T1","source_account":"A","destination_account":"B","amount":100.0,"currency":"USD"}`

type testServer struct {
	router *gin.Engine
	repo   *memory.TransactionRepository
	queue  domain.QueueRepository
	redis  *miniredis.Miniredis
}

func newTestServer(t *testing.T, opts RouteOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := memory.NewTransactionRepository()
	queue := redisrepo.NewQueueRepository(client, redisrepo.QueueOptions{Name: "handler-test", ResultTTL: time.Hour})

	router := gin.New()
	SetupRoutes(router, NewTransactionHandler(usecase.NewIngestionUsecase(repo, queue)), opts)

	return &testServer{router: router, repo: repo, queue: queue, redis: mr}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestReceiveWebhook_AcceptsAndReportsStatus(t *testing.T) {
	s := newTestServer(t, RouteOptions{})

	w := s.do(http.MethodPost, "/api/v1/webhooks/transactions", t1Body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var ack map[string]interface{}
	decode(t, w, &ack)
	if ack["accepted"] != true || ack["transaction_id"] != "T1" || ack["status"] != domain.StatusReceived {
		t.Fatalf("unexpected ack: %v", ack)
	}
	if len(ack) != 3 {
		t.Fatalf("ack must only carry accepted, transaction_id and status: %v", ack)
	}

	w = s.do(http.MethodGet, "/api/v1/transactions/T1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status map[string]interface{}
	decode(t, w, &status)
	if status["status"] != domain.StatusReceived || status["amount"] != float64(100) || status["currency"] != "USD" {
		t.Fatalf("unexpected status body: %v", status)
	}
	if _, ok := status["processed_at"]; ok {
		t.Fatalf("processed_at must be absent before processing: %v", status)
	}
	if _, ok := status["claimed_at"]; ok {
		t.Fatalf("claimed_at is internal: %v", status)
	}
}

func TestReceiveWebhook_DuplicateDelivery(t *testing.T) {
	s := newTestServer(t, RouteOptions{})

	first := s.do(http.MethodPost, "/api/v1/webhooks/transactions", t1Body)
	second := s.do(http.MethodPost, "/api/v1/webhooks/transactions", t1Body)
	if first.Code != http.StatusAccepted || second.Code != http.StatusAccepted {
		t.Fatalf("expected both deliveries to be accepted, got %d and %d", first.Code, second.Code)
	}

	length, _ := s.queue.GetQueueLength(context.Background())
	if length != 1 {
		t.Fatalf("duplicate delivery scheduled extra work: %d tasks", length)
	}
	counts, _ := s.repo.CountByStatus(context.Background())
	if counts[domain.StatusReceived] != 1 {
		t.Fatalf("expected one record, got %v", counts)
	}
}

func TestReceiveWebhook_ProcessedRecordShowsProcessedAt(t *testing.T) {
	s := newTestServer(t, RouteOptions{})
	s.do(http.MethodPost, "/api/v1/webhooks/transactions", t1Body)

	ctx := context.Background()
	created, _ := s.repo.GetByID(ctx, "T1")
	claimed, _, _ := s.repo.TryClaim(ctx, "T1", created.CreatedAt, nil)
	_ = s.repo.Finalize(ctx, "T1", claimed.ClaimToken, created.CreatedAt.Add(30*time.Second))

	var status TransactionResponse
	decode(t, s.do(http.MethodGet, "/api/v1/transactions/T1", ""), &status)
	if status.Status != domain.StatusProcessed || status.ProcessedAt == nil || status.ProcessedAt.Before(status.CreatedAt) {
		t.Fatalf("unexpected processed record: %+v", status)
	}
}

func TestReceiveWebhook_ValidationErrors(t *testing.T) {
	s := newTestServer(t, RouteOptions{})

	cases := map[string]string{
		"missing currency":    `{"transaction_id":"T1","source_account":"A","destination_account":"B","amount":1}`,
		"missing amount":      `{"transaction_id":"T1","source_account":"A","destination_account":"B","currency":"USD"}`,
		"negative amount":     `{"transaction_id":"T1","source_account":"A","destination_account":"B","amount":-5,"currency":"USD"}`,
		"blank id":            `{"transaction_id":"  ","source_account":"A","destination_account":"B","amount":1,"currency":"USD"}`,
		"malformed":           `{"transaction_id":`,
		"amount not a number": `{"transaction_id":"T1","source_account":"A","destination_account":"B","amount":"abc","currency":"USD"}`,
		"amount too precise":  `{"transaction_id":"T1","source_account":"A","destination_account":"B","amount":0.123456789,"currency":"USD"}`,
		"amount too large":    `{"transaction_id":"T1","source_account":"A","destination_account":"B","amount":1000000000000,"currency":"USD"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/v1/webhooks/transactions", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			var resp xresponse.ErrorResponse
			decode(t, w, &resp)
			if resp.ErrorCode != xresponse.ErrCodeValidationFailed {
				t.Fatalf("unexpected error code %q", resp.ErrorCode)
			}
		})
	}

	counts, _ := s.repo.CountByStatus(context.Background())
	if len(counts) != 0 {
		t.Fatalf("rejected payloads must not be stored: %v", counts)
	}
}

func TestReceiveWebhook_TrimsFields(t *testing.T) {
	s := newTestServer(t, RouteOptions{})

	body := `{"transaction_id":" T7 ","source_account":" A ","destination_account":"B  ","amount":999999999999.99999999,"currency":" USD"}`
	if w := s.do(http.MethodPost, "/api/v1/webhooks/transactions", body); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	tx, err := s.repo.GetByID(context.Background(), "T7")
	if err != nil {
		t.Fatalf("expected record under trimmed id: %v", err)
	}
	if tx.SourceAccount != "A" || tx.DestinationAccount != "B" || tx.Currency != "USD" {
		t.Fatalf("expected trimmed fields, got %+v", tx)
	}
	if tx.Amount.String() != "999999999999.99999999" {
		t.Fatalf("amount was altered: %s", tx.Amount)
	}
}

func TestGetTransaction_NotFound(t *testing.T) {
	s := newTestServer(t, RouteOptions{})

	w := s.do(http.MethodGet, "/api/v1/transactions/never-submitted", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var resp xresponse.ErrorResponse
	decode(t, w, &resp)
	if resp.ErrorCode != xresponse.ErrCodeNotFound {
		t.Fatalf("unexpected error code %q", resp.ErrorCode)
	}
}

func TestReceiveWebhook_QueueDownIs503(t *testing.T) {
	s := newTestServer(t, RouteOptions{})
	s.redis.Close()

	w := s.do(http.MethodPost, "/api/v1/webhooks/transactions", t1Body)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp xresponse.ErrorResponse
	decode(t, w, &resp)
	if resp.ErrorCode != xresponse.ErrCodeServiceUnavailable {
		t.Fatalf("unexpected error code %q", resp.ErrorCode)
	}
}

type stubIngestion struct {
	err error
}

func (s stubIngestion) Submit(context.Context, *domain.TransactionInput) (*domain.SubmitResult, error) {
	return nil, s.err
}

func (s stubIngestion) GetStatus(context.Context, string) (*domain.Transaction, error) {
	return nil, s.err
}

func TestRespondError_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		code int
	}{
		{domain.StoreError("insert transaction", errors.New("refused")), http.StatusServiceUnavailable},
		{domain.QueueError("enqueue task", errors.New("refused")), http.StatusServiceUnavailable},
		{domain.ErrTransactionNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		router := gin.New()
		SetupRoutes(router, NewTransactionHandler(stubIngestion{err: tc.err}), RouteOptions{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/transactions", strings.NewReader(t1Body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		if w.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, w.Code)
		}
	}
}

func TestHealth_RootEndpoint(t *testing.T) {
	s := newTestServer(t, RouteOptions{})

	w := s.do(http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["status"] != "HEALTHY" {
		t.Fatalf("unexpected health body: %v", body)
	}
	if _, err := time.Parse(time.RFC3339, body["current_time"]); err != nil {
		t.Fatalf("current_time is not RFC3339: %q", body["current_time"])
	}
}

func TestReceiveWebhook_RateLimited(t *testing.T) {
	s := newTestServer(t, RouteOptions{Limiter: ratelimit.NewPerMinute(1)})

	if w := s.do(http.MethodPost, "/api/v1/webhooks/transactions", t1Body); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/v1/webhooks/transactions", t1Body); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	// Status queries are not limited.
	if w := s.do(http.MethodGet, "/api/v1/transactions/T1", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestReceiveWebhook_OversizedBody(t *testing.T) {
	s := newTestServer(t, RouteOptions{MaxBodyBytes: 32})

	w := s.do(http.MethodPost, "/api/v1/webhooks/transactions", t1Body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}
