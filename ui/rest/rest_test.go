package rest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
	domainInstance "github.com/AzielCF/az-wacrm/domains/instance"
	domainMessage "github.com/AzielCF/az-wacrm/domains/message"
	domainWebhook "github.com/AzielCF/az-wacrm/domains/webhook"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	"github.com/AzielCF/az-wacrm/pkg/msgworker"
	"github.com/AzielCF/az-wacrm/pkg/utils"
)

type fakeInstance struct {
	lastUser    string
	lastRequest domainInstance.ActionRequest
}

func (f *fakeInstance) GetStatus(ctx context.Context, actingUser string) (domainInstance.StatusResponse, error) {
	f.lastUser = actingUser
	return domainInstance.StatusResponse{Status: domainConnection.StatusQRReady, Message: "Scan the QR code", QRCode: "data:image/png;base64,AAA"}, nil
}

func (f *fakeInstance) PerformAction(ctx context.Context, actingUser string, request domainInstance.ActionRequest) (domainInstance.StatusResponse, error) {
	f.lastUser = actingUser
	f.lastRequest = request
	if request.Action != domainInstance.ActionConnect {
		return domainInstance.StatusResponse{}, pkgError.ValidationError("action: must be one of connect, reconnect, disconnect")
	}
	success := true
	return domainInstance.StatusResponse{Success: &success, Status: domainConnection.StatusQRReady, Message: "Scan the QR code"}, nil
}

type fakeSend struct {
	err error
}

func (f *fakeSend) Send(ctx context.Context, actingUser string, request domainMessage.SendMessageRequest) (domainMessage.GenericResponse, error) {
	if f.err != nil {
		return domainMessage.GenericResponse{}, f.err
	}
	return domainMessage.GenericResponse{MessageID: "OUT1", LeadID: "lead-1", Status: "sent"}, nil
}

type recordingWebhook struct {
	mu     sync.Mutex
	events []domainWebhook.Event
}

func (r *recordingWebhook) ProcessEvent(ctx context.Context, event domainWebhook.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingWebhook) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestServer(t *testing.T) (*fiber.App, fiber.Router) {
	app, api, err := NewServer(ServerOptions{BasicAuth: []string{"admin:secret"}})
	require.NoError(t, err)
	return app, api
}

func do(t *testing.T, app *fiber.App, method, path, body string, auth bool) (*http.Response, []byte) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestNewServer_RequiresBasicAuth(t *testing.T) {
	_, _, err := NewServer(ServerOptions{})
	assert.Error(t, err)

	_, _, err = NewServer(ServerOptions{BasicAuth: []string{"admin"}})
	assert.Error(t, err)
}

func TestInstance_RequiresAuthentication(t *testing.T) {
	app, api := newTestServer(t)
	InitRestInstance(api, &fakeInstance{})

	resp, _ := do(t, app, http.MethodGet, "/api/instance", "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/api/instance", `{"action":"connect"}`, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInstance_GetStatus(t *testing.T) {
	app, api := newTestServer(t)
	service := &fakeInstance{}
	InitRestInstance(api, service)

	resp, raw := do(t, app, http.MethodGet, "/api/instance", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "qr_ready", body["status"])
	assert.Equal(t, "data:image/png;base64,AAA", body["qrCode"])
	assert.NotContains(t, body, "success")
	assert.Equal(t, "admin", service.lastUser)
}

func TestInstance_PerformAction(t *testing.T) {
	app, api := newTestServer(t)
	service := &fakeInstance{}
	InitRestInstance(api, service)

	resp, raw := do(t, app, http.MethodPost, "/api/instance", `{"action":"connect"}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, domainInstance.ActionConnect, service.lastRequest.Action)

	resp, raw = do(t, app, http.MethodPost, "/api/instance", `{"action":"restart"}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var failure utils.ResponseData
	require.NoError(t, json.Unmarshal(raw, &failure))
	assert.Equal(t, "VALIDATION_ERROR", failure.Code)
}

func TestSend_RendersErrors(t *testing.T) {
	app, api := newTestServer(t)
	service := &fakeSend{}
	InitRestSend(api, service)

	resp, raw := do(t, app, http.MethodPost, "/api/messages/send", `{"phone":"5511988887777","text":"oi"}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ok utils.ResponseData
	require.NoError(t, json.Unmarshal(raw, &ok))
	assert.Equal(t, "SUCCESS", ok.Code)

	service.err = &pkgError.NotConnectedError{Instance: "crm", State: "close"}
	resp, raw = do(t, app, http.MethodPost, "/api/messages/send", `{"phone":"5511988887777","text":"oi"}`, true)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var failure utils.ResponseData
	require.NoError(t, json.Unmarshal(raw, &failure))
	assert.Equal(t, "NOT_CONNECTED", failure.Code)

	resp, _ = do(t, app, http.MethodPost, "/api/messages/send", `{"phone":`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhook_InlineAck(t *testing.T) {
	app, _ := newTestServer(t)
	service := &recordingWebhook{}
	InitRestWebhook(app, "/webhook/whatsapp", Webhook{Service: service, DefaultInstance: "crm"})

	resp, raw := do(t, app, http.MethodPost, "/webhook/whatsapp", `{"event":"MESSAGES_UPSERT","data":{"key":{"id":"ABC123"}}}`, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"received":true}`, string(raw))
	require.Equal(t, 1, service.count())
	assert.Equal(t, "crm", service.events[0].Instance)

	resp, _ = do(t, app, http.MethodPost, "/webhook/whatsapp", `not json`, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 1, service.count())
}

func TestWebhook_VerifiesAPIKey(t *testing.T) {
	app, _ := newTestServer(t)
	service := &recordingWebhook{}
	InitRestWebhook(app, "/webhook/whatsapp", Webhook{Service: service, APIKey: "gw-key"})

	resp, _ := do(t, app, http.MethodPost, "/webhook/whatsapp", `{"event":"CONNECTION_UPDATE","apikey":"wrong"}`, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, service.count())

	resp, _ = do(t, app, http.MethodPost, "/webhook/whatsapp", `{"event":"CONNECTION_UPDATE","apikey":"gw-key"}`, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, service.count())
}

func TestWebhook_DispatchesThroughPool(t *testing.T) {
	app, _ := newTestServer(t)
	pool := msgworker.NewWorkerPool(2, 10)
	pool.Start(context.Background())
	defer pool.Stop()

	service := &recordingWebhook{}
	InitRestWebhook(app, "/webhook/whatsapp", Webhook{Service: service, Pool: pool, DefaultInstance: "crm"})

	for i := 0; i < 3; i++ {
		resp, _ := do(t, app, http.MethodPost, "/webhook/whatsapp", `{"event":"MESSAGES_UPDATE","instance":"crm","data":[]}`, false)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	require.Eventually(t, func() bool { return service.count() == 3 }, time.Second, 5*time.Millisecond)
}

type blockingWebhook struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingWebhook) ProcessEvent(ctx context.Context, event domainWebhook.Event) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil
}

func TestWebhook_FullQueueAsksForRetry(t *testing.T) {
	app, _ := newTestServer(t)
	pool := msgworker.NewWorkerPool(1, 1)
	pool.Start(context.Background())

	service := &blockingWebhook{started: make(chan struct{}), release: make(chan struct{})}
	InitRestWebhook(app, "/webhook/whatsapp", Webhook{Service: service, Pool: pool, DefaultInstance: "crm"})
	body := `{"event":"MESSAGES_UPSERT","instance":"crm","data":[]}`

	resp, _ := do(t, app, http.MethodPost, "/webhook/whatsapp", body, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	<-service.started

	resp, _ = do(t, app, http.MethodPost, "/webhook/whatsapp", body, false)
	require.Equal(t, http.StatusOK, resp.StatusCode, "one queued behind the running job")

	resp, raw := do(t, app, http.MethodPost, "/webhook/whatsapp", body, false)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var payload utils.ResponseData
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "QUEUE_FULL", payload.Code)

	close(service.release)
	pool.Stop()
	assert.Equal(t, int64(1), pool.GetStats().TotalDropped)
}
