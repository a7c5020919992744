package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainGateway "github.com/AzielCF/az-wacrm/domains/gateway"
	"github.com/AzielCF/az-wacrm/infrastructure/httpclient"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
)

type fakeEvolution struct {
	mu         sync.Mutex
	exists     bool
	state      string
	calls      []string
	bodies     map[string]map[string]any
	failLogout bool
}

func (f *fakeEvolution) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("apikey"))

		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		if r.Body != nil && r.Method == http.MethodPost {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if f.bodies == nil {
				f.bodies = map[string]map[string]any{}
			}
			f.bodies[r.URL.Path] = body
		}

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/instance/connectionState/crm":
			if !f.exists {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"status":404,"error":"Not Found"}`))
				return
			}
			_, _ = w.Write([]byte(`{"instance":{"instanceName":"crm","state":"` + f.state + `"}}`))
		case r.URL.Path == "/instance/create":
			f.exists = true
			f.state = "connecting"
			_, _ = w.Write([]byte(`{"instance":{"instanceName":"crm"},"qrcode":{"code":"2@created","base64":"data:image/png;base64,AAA"}}`))
		case r.URL.Path == "/instance/connect/crm":
			_, _ = w.Write([]byte(`{"code":"2@fresh","base64":"data:image/png;base64,BBB","pairingCode":"WZYEH1YY"}`))
		case r.URL.Path == "/instance/logout/crm":
			if f.failLogout {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"instance is not connected"}`))
				return
			}
			f.state = "close"
			_, _ = w.Write([]byte(`{"status":"SUCCESS"}`))
		case r.URL.Path == "/instance/fetchInstances":
			assert.Equal(t, "crm", r.URL.Query().Get("instanceName"))
			_, _ = w.Write([]byte(`[{"name":"crm","profileName":"Loja ABC","ownerJid":"5511900001111@s.whatsapp.net"}]`))
		case r.URL.Path == "/webhook/set/crm":
			_, _ = w.Write([]byte(`{"enabled":true}`))
		case r.URL.Path == "/message/sendText/crm", r.URL.Path == "/message/sendMedia/crm":
			_, _ = w.Write([]byte(`{"key":{"remoteJid":"5511988887777@s.whatsapp.net","fromMe":true,"id":"OUT1"},"status":"PENDING"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeEvolution) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func newService(t *testing.T, f *fakeEvolution) *EvolutionService {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	client := httpclient.New(httpclient.Config{
		BaseURL:    srv.URL,
		APIKey:     "secret",
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
	})
	return NewEvolutionService(client, Options{WebhookURL: "https://crm.example.com/webhook/whatsapp"})
}

func TestCheckInstanceStatus(t *testing.T) {
	f := &fakeEvolution{}
	svc := newService(t, f)

	state, err := svc.CheckInstanceStatus(context.Background(), "crm")
	require.NoError(t, err)
	assert.False(t, state.Exists)

	f.exists, f.state = true, "open"
	state, err = svc.CheckInstanceStatus(context.Background(), "crm")
	require.NoError(t, err)
	assert.True(t, state.Connected())
}

func TestFetchQRCode_CreatesMissingInstance(t *testing.T) {
	f := &fakeEvolution{}
	svc := newService(t, f)

	qr, err := svc.FetchQRCode(context.Background(), "crm")
	require.NoError(t, err)
	assert.Equal(t, "2@created", qr.Code)
	assert.True(t, f.called("POST /instance/create"))
	assert.Equal(t, "crm", f.bodies["/instance/create"]["instanceName"])
	assert.Equal(t, true, f.bodies["/instance/create"]["qrcode"])
}

func TestFetchQRCode_AlreadyConnected(t *testing.T) {
	f := &fakeEvolution{exists: true, state: "open"}
	svc := newService(t, f)

	qr, err := svc.FetchQRCode(context.Background(), "crm")
	require.NoError(t, err)
	assert.True(t, qr.AlreadyConnected)
	assert.False(t, f.called("GET /instance/connect/crm"))
}

func TestReconnectInstance_ToleratesLogoutFailure(t *testing.T) {
	f := &fakeEvolution{exists: true, state: "connecting", failLogout: true}
	svc := newService(t, f)

	qr, err := svc.ReconnectInstance(context.Background(), "crm")
	require.NoError(t, err)
	assert.Equal(t, "2@fresh", qr.Code)
	assert.Equal(t, "WZYEH1YY", qr.PairingCode)
	assert.True(t, f.called("DELETE /instance/logout/crm"))
}

func TestFetchProfile(t *testing.T) {
	svc := newService(t, &fakeEvolution{exists: true, state: "open"})
	profile, err := svc.FetchProfile(context.Background(), "crm")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Loja ABC", profile.Name)
	assert.Equal(t, "5511900001111", profile.Number)
}

func TestSetupWebhook(t *testing.T) {
	f := &fakeEvolution{exists: true, state: "open"}
	svc := newService(t, f)
	require.NoError(t, svc.SetupWebhook(context.Background(), "crm"))

	hook := f.bodies["/webhook/set/crm"]["webhook"].(map[string]any)
	assert.Equal(t, "https://crm.example.com/webhook/whatsapp", hook["url"])
	assert.Len(t, hook["events"], len(WebhookEvents))
}

func TestSend_RefusesWhenNotConnected(t *testing.T) {
	f := &fakeEvolution{exists: true, state: "connecting"}
	svc := newService(t, f)

	_, err := svc.SendWhatsAppMessage(context.Background(), "crm", domainGateway.OutgoingMessage{Number: "5511988887777", Text: "oi"})
	var notConnected *pkgError.NotConnectedError
	require.True(t, errors.As(err, &notConnected))
	assert.Equal(t, "connecting", notConnected.State)
	assert.False(t, f.called("POST /message/sendText/crm"))
}

func TestSendWhatsAppMessage_DispatchesByShape(t *testing.T) {
	f := &fakeEvolution{exists: true, state: "open"}
	svc := newService(t, f)
	ctx := context.Background()

	res, err := svc.SendWhatsAppMessage(ctx, "crm", domainGateway.OutgoingMessage{Number: "+55 11 98888-7777", Text: "oi"})
	require.NoError(t, err)
	assert.Equal(t, "OUT1", res.MessageID)
	assert.Equal(t, "5511988887777", f.bodies["/message/sendText/crm"]["number"])

	_, err = svc.SendWhatsAppMessage(ctx, "crm", domainGateway.OutgoingMessage{
		Number: "5511988887777",
		Text:   "segue o catalogo",
		Media:  &domainGateway.SendMediaRequest{MediaType: domainGateway.MediaDocument, Media: "https://cdn.example.com/c.pdf", FileName: "c.pdf"},
	})
	require.NoError(t, err)
	media := f.bodies["/message/sendMedia/crm"]
	assert.Equal(t, "document", media["mediatype"])
	assert.Equal(t, "segue o catalogo", media["caption"])
	assert.Equal(t, "5511988887777", media["number"])
}
