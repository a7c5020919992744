package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-wacrm/core/config"
	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
	domainGateway "github.com/AzielCF/az-wacrm/domains/gateway"
	"github.com/AzielCF/az-wacrm/infrastructure/httpclient"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	"github.com/AzielCF/az-wacrm/pkg/utils"
)

// WebhookEvents is the event list registered with the gateway.
var WebhookEvents = []string{
	"QRCODE_UPDATED",
	"CONNECTION_UPDATE",
	"MESSAGES_UPSERT",
	"MESSAGES_UPDATE",
	"MESSAGES_DELETE",
	"SEND_MESSAGE",
	"CONTACTS_UPSERT",
	"CONTACTS_UPDATE",
	"CHATS_UPSERT",
}

type Options struct {
	WebhookURL  string
	Integration string
}

// EvolutionService talks to an Evolution-style hosted gateway.
type EvolutionService struct {
	client *httpclient.Client
	opts   Options
}

var _ domainGateway.IGatewayService = (*EvolutionService)(nil)

func NewEvolutionService(client *httpclient.Client, opts Options) *EvolutionService {
	if opts.Integration == "" {
		opts.Integration = "WHATSAPP-BAILEYS"
	}
	return &EvolutionService{client: client, opts: opts}
}

// NewFromConfig builds the service and its HTTP client from application config.
func NewFromConfig(cfg config.Config) *EvolutionService {
	client := httpclient.New(httpclient.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		APIKey:       cfg.Gateway.APIKey,
		APIKeyHeader: cfg.Gateway.APIKeyHeader,
		Timeout:      cfg.Gateway.Timeout,
		MaxRetries:   cfg.Gateway.MaxRetries,
	})
	return NewEvolutionService(client, Options{
		WebhookURL:  cfg.Webhook.TargetURL(),
		Integration: cfg.Gateway.Integration,
	})
}

func (s *EvolutionService) BaseURL() string {
	return s.client.BaseURL()
}

func escape(instance string) string {
	return url.PathEscape(instance)
}

func (s *EvolutionService) CheckInstanceStatus(ctx context.Context, instance string) (domainGateway.InstanceState, error) {
	state := domainGateway.InstanceState{Instance: instance}

	res, err := s.client.Get(ctx, "/instance/connectionState/"+escape(instance))
	if err != nil {
		return state, err
	}
	if res.StatusCode == http.StatusNotFound {
		return state, nil
	}
	if !res.Success {
		return state, fmt.Errorf("check instance status: %w", res.Err)
	}

	var body struct {
		Instance struct {
			InstanceName string `json:"instanceName"`
			State        string `json:"state"`
		}            `json:"instance"`
		State string `json:"state"`
	}
	if err := res.Decode(&body); err != nil {
		return state, fmt.Errorf("decode instance status: %w", err)
	}
	state.Exists = true
	state.State = strings.ToLower(firstNonEmpty(body.Instance.State, body.State))
	return state, nil
}

func (s *EvolutionService) FetchQRCode(ctx context.Context, instance string) (domainGateway.QRCode, error) {
	state, err := s.CheckInstanceStatus(ctx, instance)
	if err != nil {
		return domainGateway.QRCode{}, err
	}
	if !state.Exists {
		logrus.WithField("instance", instance).Info("[GATEWAY] instance not found, creating it")
		qr, err := s.CreateInstance(ctx, instance)
		if err != nil {
			return domainGateway.QRCode{}, err
		}
		if qr.Base64 != "" || qr.Code != "" {
			return qr, nil
		}
	} else if state.Connected() {
		return domainGateway.QRCode{AlreadyConnected: true}, nil
	}

	res, err := s.client.Get(ctx, "/instance/connect/"+escape(instance))
	if err != nil {
		return domainGateway.QRCode{}, err
	}
	if !res.Success {
		return domainGateway.QRCode{}, fmt.Errorf("fetch qr code: %w", res.Err)
	}
	return decodeQR(res)
}

func (s *EvolutionService) CreateInstance(ctx context.Context, instance string) (domainGateway.QRCode, error) {
	body := map[string]any{
		"instanceName": instance,
		"qrcode":       true,
		"integration":  s.opts.Integration,
	}
	res, err := s.client.Post(ctx, "/instance/create", body)
	if err != nil {
		return domainGateway.QRCode{}, err
	}
	if !res.Success {
		return domainGateway.QRCode{}, fmt.Errorf("create instance: %w", res.Err)
	}

	var created struct {
		QRCode json.RawMessage `json:"qrcode"`
	}
	if err := res.Decode(&created); err != nil || len(created.QRCode) == 0 {
		return domainGateway.QRCode{}, nil
	}
	return parseQR(created.QRCode)
}

// ReconnectInstance logs the instance out and asks for a fresh QR. A failed
// logout is logged and does not stop the reconnect.
func (s *EvolutionService) ReconnectInstance(ctx context.Context, instance string) (domainGateway.QRCode, error) {
	if err := s.LogoutInstance(ctx, instance); err != nil {
		logrus.WithField("instance", instance).Warnf("[GATEWAY] logout before reconnect failed: %v", err)
	}
	return s.FetchQRCode(ctx, instance)
}

func (s *EvolutionService) LogoutInstance(ctx context.Context, instance string) error {
	res, err := s.client.Delete(ctx, "/instance/logout/"+escape(instance))
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("logout instance: %w", res.Err)
	}
	return nil
}

func (s *EvolutionService) FetchProfile(ctx context.Context, instance string) (*domainConnection.Profile, error) {
	res, err := s.client.Get(ctx, "/instance/fetchInstances", httpclient.WithQuery("instanceName", instance))
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("fetch profile: %w", res.Err)
	}

	// v2 returns flat objects, v1 nests them under "instance".
	var items []struct {
		Name        string `json:"name"`
		ProfileName string `json:"profileName"`
		OwnerJID    string `json:"ownerJid"`
		Number      string `json:"number"`
		Instance    *struct {
			InstanceName string `json:"instanceName"`
			ProfileName  string `json:"profileName"`
			Owner        string `json:"owner"`
		}  `json:"instance"`
	}
	if err := res.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	for _, it := range items {
		name, profileName, owner := it.Name, it.ProfileName, firstNonEmpty(it.OwnerJID, it.Number)
		if it.Instance != nil {
			name = firstNonEmpty(name, it.Instance.InstanceName)
			profileName = firstNonEmpty(profileName, it.Instance.ProfileName)
			owner = firstNonEmpty(owner, it.Instance.Owner)
		}
		if name != "" && name != instance {
			continue
		}
		if profileName == "" && owner == "" {
			return nil, nil
		}
		return &domainConnection.Profile{Name: profileName, Number: utils.JIDUser(owner)}, nil
	}
	return nil, nil
}

func (s *EvolutionService) SetupWebhook(ctx context.Context, instance string) error {
	if s.opts.WebhookURL == "" {
		return pkgError.ValidationError("webhook public url is not configured")
	}
	body := map[string]any{
		"webhook": map[string]any{
			"enabled":         true,
			"url":             s.opts.WebhookURL,
			"webhookByEvents": false,
			"webhookBase64":   false,
			"events":          WebhookEvents,
		},
	}
	res, err := s.client.Post(ctx, "/webhook/set/"+escape(instance), body)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("setup webhook: %w", res.Err)
	}
	logrus.WithFields(logrus.Fields{"instance": instance, "url": s.opts.WebhookURL}).Info("[GATEWAY] webhook registered")
	return nil
}

func (s *EvolutionService) ensureConnected(ctx context.Context, instance string) error {
	state, err := s.CheckInstanceStatus(ctx, instance)
	if err != nil {
		return err
	}
	if !state.Connected() {
		st := state.State
		if !state.Exists {
			st = "not found"
		}
		return &pkgError.NotConnectedError{Instance: instance, State: st}
	}
	return nil
}

func (s *EvolutionService) SendTextMessage(ctx context.Context, instance string, request domainGateway.SendTextRequest) (domainGateway.SendResult, error) {
	if err := s.ensureConnected(ctx, instance); err != nil {
		return domainGateway.SendResult{}, err
	}
	request.Number = utils.OnlyDigits(utils.JIDUser(request.Number))
	return s.send(ctx, "/message/sendText/"+escape(instance), request)
}

func (s *EvolutionService) SendMediaMessage(ctx context.Context, instance string, request domainGateway.SendMediaRequest) (domainGateway.SendResult, error) {
	if err := s.ensureConnected(ctx, instance); err != nil {
		return domainGateway.SendResult{}, err
	}
	request.Number = utils.OnlyDigits(utils.JIDUser(request.Number))
	return s.send(ctx, "/message/sendMedia/"+escape(instance), request)
}

// SendWhatsAppMessage routes to the media endpoint when a media payload is set.
func (s *EvolutionService) SendWhatsAppMessage(ctx context.Context, instance string, message domainGateway.OutgoingMessage) (domainGateway.SendResult, error) {
	if message.Media != nil {
		media := *message.Media
		media.Number = message.Number
		if media.Caption == "" {
			media.Caption = message.Text
		}
		return s.SendMediaMessage(ctx, instance, media)
	}
	return s.SendTextMessage(ctx, instance, domainGateway.SendTextRequest{Number: message.Number, Text: message.Text})
}

func (s *EvolutionService) send(ctx context.Context, path string, body any) (domainGateway.SendResult, error) {
	res, err := s.client.Post(ctx, path, body)
	if err != nil {
		return domainGateway.SendResult{}, err
	}
	if !res.Success {
		return domainGateway.SendResult{}, fmt.Errorf("send message: %w", res.Err)
	}

	var sent struct {
		Key struct {
			RemoteJID string `json:"remoteJid"`
			ID        string `json:"id"`
		}             `json:"key"`
		Status string `json:"status"`
	}
	if err := res.Decode(&sent); err != nil {
		return domainGateway.SendResult{}, fmt.Errorf("decode send result: %w", err)
	}
	return domainGateway.SendResult{
		MessageID: sent.Key.ID,
		RemoteJID: sent.Key.RemoteJID,
		Status:    sent.Status,
	}, nil
}

func decodeQR(res *httpclient.Result) (domainGateway.QRCode, error) {
	raw := res.Bytes()
	if len(raw) == 0 {
		return domainGateway.QRCode{}, fmt.Errorf("fetch qr code: empty response")
	}
	return parseQR(raw)
}

func parseQR(raw json.RawMessage) (domainGateway.QRCode, error) {
	var body struct {
		Base64      string `json:"base64"`
		Code        string `json:"code"`
		PairingCode string `json:"pairingCode"`
		Instance    *struct {
			State string `json:"state"`
		}  `json:"instance"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return domainGateway.QRCode{}, fmt.Errorf("decode qr code: %w", err)
	}
	if body.Instance != nil && strings.EqualFold(body.Instance.State, domainGateway.StateOpen) {
		return domainGateway.QRCode{AlreadyConnected: true}, nil
	}
	return domainGateway.QRCode{
		Base64:      body.Base64,
		Code:        body.Code,
		PairingCode: body.PairingCode,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
