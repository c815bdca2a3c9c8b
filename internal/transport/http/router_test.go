package httptransport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempmail/capture/internal/auth/jwt"
	"tempmail/capture/internal/config"
	"tempmail/capture/internal/crypto"
	"tempmail/capture/internal/domain"
	"tempmail/capture/internal/health"
	"tempmail/capture/internal/middleware"
	"tempmail/capture/internal/monitoring"
	"tempmail/capture/internal/retry"
	"tempmail/capture/internal/service"
	"tempmail/capture/internal/storage"
	"tempmail/capture/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const internalSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	blobs  *memory.BlobStore
}

// unreachableStore 模拟持续超时的数据库
type unreachableStore struct {
	*memory.Store
}

func (unreachableStore) FindMailboxByID(context.Context, string) (*domain.Mailbox, error) {
	return nil, storage.ErrTransient
}

func testConfig() *config.Config {
	return &config.Config{
		CORS: config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
		Capture: config.CaptureConfig{
			MaxBodyBytes: 1 << 20,
			RateLimit:    1000,
			RateBurst:    1000,
		},
	}
}

func newTestServer(t *testing.T, mailboxes storage.MailboxRepository, auth *middleware.ServiceAuth) *testServer {
	t.Helper()
	store := memory.NewStore()
	blobs := memory.NewBlobStore()
	if mailboxes == nil {
		mailboxes = store
	}
	now := time.Now()
	require.NoError(t, store.SaveMailbox(context.Background(), &domain.Mailbox{
		ID: "mb-1", Address: "box@example.com", SecretToken: "secret-token",
		IsActive: true, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.SaveMailbox(context.Background(), &domain.Mailbox{
		ID: "mb-2", Address: "old@example.com", SecretToken: "old-token",
		IsActive: true, CreatedAt: now.Add(-3 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))

	key, err := crypto.DeriveKey("router-test-secret")
	require.NoError(t, err)
	enc, err := crypto.NewFieldEncryptor(key)
	require.NoError(t, err)

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	policy := retry.DefaultPolicy(storage.IsTransient)
	policy.BaseDelay, policy.MaxDelay = time.Millisecond, time.Millisecond

	capture := service.NewCaptureService(service.NewDirectory(store), store, blobs, enc, nil,
		service.WithCaptureMetrics(metrics))
	validation := service.NewValidationService(service.NewDirectory(mailboxes), nil,
		service.WithValidationMetrics(metrics), service.WithRetryPolicy(policy))

	hc := health.NewHealthChecker(nil)
	hc.AddDependency("database", store)

	router := NewRouter(RouterDependencies{
		Config:      testConfig(),
		Capture:     capture,
		Validation:  validation,
		ServiceAuth: auth,
		Metrics:     metrics,
		Health:      hc,
	})
	return &testServer{router: router, store: store, blobs: blobs}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func jsonRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestInbound_JSON(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.do(jsonRequest(t, http.MethodPost, "/v1/inbound/sendgrid", map[string]any{
		"to":      "BOX@example.com",
		"from":    "alice@example.org",
		"subject": "Hi",
		"text":    "body",
		"attachments": []map[string]string{
			{"filename": "a.txt", "contentType": "text/plain", "content": base64.StdEncoding.EncodeToString([]byte("hello"))},
		},
	}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, float64(1), body["attachments"])
	assert.Equal(t, []any{"a.txt"}, body["attachmentNames"])
	assert.NotEmpty(t, body["messageId"])
	assert.Equal(t, 1, srv.store.MessageCount())
	assert.Equal(t, 1, srv.blobs.Len())
}

func TestInbound_Multipart(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("recipient", "box@example.com"))
	require.NoError(t, mw.WriteField("sender", "bob@example.org"))
	require.NoError(t, mw.WriteField("subject", "Report"))
	require.NoError(t, mw.WriteField("attachment-count", "1"))
	part, err := mw.CreateFormFile("attachment-1", "report.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/inbound", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := srv.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, []any{"report.csv"}, body["attachmentNames"])
}

func TestInbound_Outcomes(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	t.Run("未知收件人返回 ignored", func(t *testing.T) {
		form := url.Values{"recipient": {"nobody@example.com"}, "subject": {"x"}}
		req := httptest.NewRequest(http.MethodPost, "/v1/inbound", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := srv.do(req)

		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "ignored", body["status"])
		assert.Equal(t, service.IgnoreUnknownRecipient, body["reason"])
		assert.Equal(t, 0, srv.store.MessageCount())
	})

	t.Run("缺少收件人返回 400", func(t *testing.T) {
		w := srv.do(jsonRequest(t, http.MethodPost, "/v1/inbound", map[string]any{"subject": "x"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "缺少收件人", decode(t, w)["msg"])
	})

	t.Run("不支持的类型返回 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/inbound", strings.NewReader("raw"))
		req.Header.Set("Content-Type", "text/plain")
		w := srv.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("JSON 格式错误返回 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/inbound", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		w := srv.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("请求体过大返回 413", func(t *testing.T) {
		big := strings.Repeat("a", 2<<20)
		w := srv.do(jsonRequest(t, http.MethodPost, "/v1/inbound", map[string]any{"to": "box@example.com", "text": big}))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestValidate_Single(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	t.Run("校验通过且不泄露令牌", func(t *testing.T) {
		w := srv.do(jsonRequest(t, http.MethodPost, "/v1/mailboxes/validate", map[string]any{
			"mailboxId": "mb-1", "token": "secret-token",
		}))
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "secret-token")

		body := decode(t, w)
		assert.Equal(t, true, body["valid"])
		mailbox := body["mailbox"].(map[string]any)
		assert.Equal(t, "mb-1", mailbox["id"])
		assert.Equal(t, "box@example.com", mailbox["address"])
	})

	t.Run("令牌可以放在请求头", func(t *testing.T) {
		req := jsonRequest(t, http.MethodPost, "/v1/mailboxes/validate", map[string]any{"mailboxId": "mb-1"})
		req.Header.Set(MailboxTokenHeader, "secret-token")
		w := srv.do(req)
		assert.Equal(t, true, decode(t, w)["valid"])
	})

	tests := []struct {
		name   string
		body   map[string]any
		code   int
		reason domain.ReasonCode
	}{
		{"令牌错误", map[string]any{"mailboxId": "mb-1", "token": "nope"}, http.StatusOK, domain.ReasonInvalidToken},
		{"邮箱已过期", map[string]any{"mailboxId": "mb-2", "token": "old-token"}, http.StatusOK, domain.ReasonMailboxExpired},
		{"邮箱不存在", map[string]any{"mailboxId": "missing", "token": "x"}, http.StatusOK, domain.ReasonMailboxNotFound},
		{"缺少参数", map[string]any{"mailboxId": "mb-1"}, http.StatusBadRequest, domain.ReasonInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(jsonRequest(t, http.MethodPost, "/v1/mailboxes/validate", tt.body))
			require.Equal(t, tt.code, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["valid"])
			assert.Equal(t, string(tt.reason), body["reasonCode"])
			assert.Nil(t, body["mailbox"])
		})
	}

	t.Run("请求体不是 JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/mailboxes/validate", strings.NewReader("mailboxId=1"))
		req.Header.Set("Content-Type", "application/json")
		w := srv.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestValidate_Batch(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.do(jsonRequest(t, http.MethodPost, "/v1/mailboxes/validate", map[string]any{
		"mailboxIds": []string{"mb-2", "mb-1", "missing"},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, []any{"mb-1"}, body["validEmailIds"])
	assert.NotContains(t, w.Body.String(), "secret-token")

	t.Run("没有可用邮箱", func(t *testing.T) {
		w := srv.do(jsonRequest(t, http.MethodPost, "/v1/mailboxes/validate", map[string]any{
			"mailboxIds": []string{"mb-2"},
		}))
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["valid"])
		assert.Equal(t, string(domain.ReasonNoUsableMailbox), body["reasonCode"])
		assert.Equal(t, []any{}, body["validEmailIds"])
	})
}

func TestValidate_BatchOverInputLimit(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	ids := []string{"mb-1"}
	for i := 0; i < service.MaxBatchInput+50; i++ {
		ids = append(ids, "stale-"+strconv.Itoa(i))
	}
	w := srv.do(jsonRequest(t, http.MethodPost, "/v1/mailboxes/validate", map[string]any{"mailboxIds": ids}))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, []any{"mb-1"}, body["validEmailIds"])
}

func TestValidate_ClientCanceled(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := jsonRequest(t, http.MethodPost, "/v1/mailboxes/validate", map[string]any{
		"mailboxId": "mb-1", "token": "secret-token",
	}).WithContext(ctx)

	w := srv.do(req)
	assert.Equal(t, StatusClientClosedRequest, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestValidate_StorageUnavailable(t *testing.T) {
	srv := newTestServer(t, unreachableStore{memory.NewStore()}, nil)

	w := srv.do(jsonRequest(t, http.MethodPost, "/v1/mailboxes/validate", map[string]any{
		"mailboxId": "mb-1", "token": "secret-token",
	}))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["retryable"])
	assert.Equal(t, string(domain.ReasonServiceUnavailable), body["reasonCode"])
}

func TestValidate_ServiceAuth(t *testing.T) {
	manager := jwt.NewManager(internalSecret, "tempmail", "tempmail-capture")
	srv := newTestServer(t, nil, middleware.NewServiceAuth(manager, nil))

	t.Run("缺少令牌返回 401", func(t *testing.T) {
		w := srv.do(jsonRequest(t, http.MethodPost, "/v1/mailboxes/validate", map[string]any{
			"mailboxId": "mb-1", "token": "secret-token",
		}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("携带服务令牌", func(t *testing.T) {
		token, err := manager.IssueToken("mailbox-api", time.Minute)
		require.NoError(t, err)
		req := jsonRequest(t, http.MethodPost, "/v1/mailboxes/validate", map[string]any{
			"mailboxId": "mb-1", "token": "secret-token",
		})
		req.Header.Set("Authorization", "Bearer "+token)
		w := srv.do(req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("入站接口不需要服务令牌", func(t *testing.T) {
		w := srv.do(jsonRequest(t, http.MethodPost, "/v1/inbound", map[string]any{"to": "nobody@example.com"}))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestOperationalEndpoints(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			w := srv.do(httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}

	t.Run("CORS 预检", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/mailboxes/validate", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		w := srv.do(req)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestGetErrorMessage(t *testing.T) {
	assert.Equal(t, MsgInvalidRequest, GetErrorMessage(errors.New("other")))
}
