package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
	domainGateway "github.com/AzielCF/az-wacrm/domains/gateway"
	domainInstance "github.com/AzielCF/az-wacrm/domains/instance"
	domainSession "github.com/AzielCF/az-wacrm/domains/session"
	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	"github.com/AzielCF/az-wacrm/validations"
)

type InstanceConfig struct {
	Instance string
	TenantID string
}

// serviceInstance projects the stored connection onto the UI status shape and
// runs connect/reconnect/disconnect. With a manager it drives the local
// socket, otherwise the hosted gateway.
type serviceInstance struct {
	cfg     InstanceConfig
	conns   domainConnection.IConnectionRepository
	gateway domainGateway.IGatewayService
	manager domainSession.IConnectionManager
	now     func() time.Time
}

func NewInstanceService(cfg InstanceConfig, conns domainConnection.IConnectionRepository, gateway domainGateway.IGatewayService, manager domainSession.IConnectionManager) domainInstance.IInstanceUsecase {
	return &serviceInstance{
		cfg:     cfg,
		conns:   conns,
		gateway: gateway,
		manager: manager,
		now:     time.Now,
	}
}

func (service *serviceInstance) selfHosted() bool {
	return service.manager != nil
}

func (service *serviceInstance) stored(ctx context.Context) (domainConnection.Connection, error) {
	conn, err := service.conns.Get(ctx, service.cfg.Instance)
	var notFound pkgError.NotFoundError
	if errors.As(err, &notFound) {
		return domainConnection.Connection{InstanceName: service.cfg.Instance, Status: domainConnection.StatusDisconnected}, nil
	}
	return conn, err
}

func (service *serviceInstance) upsert(ctx context.Context, update domainConnection.Update) (domainConnection.Connection, error) {
	update.TenantID = domainConnection.StringPtr(service.cfg.TenantID)
	return service.conns.Upsert(ctx, service.cfg.Instance, update)
}

func (service *serviceInstance) GetStatus(ctx context.Context, actingUser string) (domainInstance.StatusResponse, error) {
	conn, err := service.stored(ctx)
	if err != nil {
		return domainInstance.StatusResponse{}, err
	}
	if service.selfHosted() {
		return service.project(conn, nil), nil
	}

	state, err := service.gateway.CheckInstanceStatus(ctx, service.cfg.Instance)
	if err != nil {
		logrus.WithField("instance", service.cfg.Instance).Warnf("[INSTANCE] gateway status check failed: %v", err)
		resp := service.project(conn, nil)
		resp.Message = "Could not reach the WhatsApp gateway. " + resp.Message
		return resp, nil
	}

	update := domainConnection.Update{}
	live := state.Status()
	// The gateway reports "connecting" while a QR is waiting to be scanned.
	if !(live == domainConnection.StatusConnecting && conn.Status == domainConnection.StatusQRReady) && live != conn.Status {
		update.Status = domainConnection.StatusPtr(live)
	}
	if live == domainConnection.StatusConnected && conn.Profile == nil {
		update.Profile = service.fetchProfile(ctx)
	}
	if update.Status == nil && update.Profile == nil {
		return service.project(conn, nil), nil
	}

	conn, err = service.upsert(ctx, update)
	if err != nil {
		return domainInstance.StatusResponse{}, err
	}
	return service.project(conn, nil), nil
}

func (service *serviceInstance) PerformAction(ctx context.Context, actingUser string, request domainInstance.ActionRequest) (domainInstance.StatusResponse, error) {
	if err := validations.ValidateInstanceAction(ctx, request); err != nil {
		return domainInstance.StatusResponse{}, err
	}
	if err := service.claimOwnership(ctx, actingUser, request.Action); err != nil {
		return domainInstance.StatusResponse{}, err
	}

	log := logrus.WithFields(logrus.Fields{"instance": service.cfg.Instance, "action": request.Action, "user": actingUser})
	log.Info("[INSTANCE] action requested")

	if service.selfHosted() {
		return service.performLocal(ctx, request.Action)
	}
	return service.performHosted(ctx, request.Action)
}

// claimOwnership makes the first user who connects the instance its owner.
func (service *serviceInstance) claimOwnership(ctx context.Context, actingUser string, action domainInstance.Action) error {
	if actingUser == "" || action == domainInstance.ActionDisconnect {
		return nil
	}
	conn, err := service.stored(ctx)
	if err != nil {
		return err
	}
	if conn.OwnerUserID != "" {
		return nil
	}
	_, err = service.upsert(ctx, domainConnection.Update{OwnerUserID: domainConnection.StringPtr(actingUser)})
	return err
}

func (service *serviceInstance) performHosted(ctx context.Context, action domainInstance.Action) (domainInstance.StatusResponse, error) {
	var (
		qr  domainGateway.QRCode
		err error
	)
	switch action {
	case domainInstance.ActionDisconnect:
		if err := service.gateway.LogoutInstance(ctx, service.cfg.Instance); err != nil {
			return service.failed(ctx, "Failed to disconnect WhatsApp", err)
		}
		conn, err := service.upsert(ctx, domainConnection.Update{
			Status:       domainConnection.StatusPtr(domainConnection.StatusDisconnected),
			ClearQR:      true,
			ClearProfile: true,
			ClearError:   true,
		})
		if err != nil {
			return domainInstance.StatusResponse{}, err
		}
		return service.project(conn, boolPtr(true)), nil
	case domainInstance.ActionReconnect:
		qr, err = service.gateway.ReconnectInstance(ctx, service.cfg.Instance)
	default:
		qr, err = service.gateway.FetchQRCode(ctx, service.cfg.Instance)
	}
	if err != nil {
		return service.failed(ctx, "Failed to fetch QR code, instance may need to be recreated", err)
	}

	update := domainConnection.Update{ClearError: true}
	if qr.AlreadyConnected {
		update.Status = domainConnection.StatusPtr(domainConnection.StatusConnected)
		update.Profile = service.fetchProfile(ctx)
	} else {
		update.Status = domainConnection.StatusPtr(domainConnection.StatusQRReady)
		update.ClearQR = true
		if code := firstNonBlank(qr.Base64, qr.Code); code != "" {
			update.QRCode = domainConnection.StringPtr(code)
		}
		if qr.PairingCode != "" {
			update.PairingCode = domainConnection.StringPtr(qr.PairingCode)
		}
	}
	conn, err := service.upsert(ctx, update)
	if err != nil {
		return domainInstance.StatusResponse{}, err
	}
	return service.project(conn, boolPtr(true)), nil
}

func (service *serviceInstance) performLocal(ctx context.Context, action domainInstance.Action) (domainInstance.StatusResponse, error) {
	var err error
	switch action {
	case domainInstance.ActionDisconnect:
		err = service.manager.Logout(ctx)
	case domainInstance.ActionReconnect:
		err = service.manager.Restart(ctx)
	default:
		err = service.manager.Start(ctx)
	}
	if err != nil {
		return service.failed(ctx, "Failed to start the WhatsApp session", err)
	}

	conn, err := service.stored(ctx)
	if err != nil {
		return domainInstance.StatusResponse{}, err
	}
	return service.project(conn, boolPtr(true)), nil
}

// failed records err on the connection and returns the unsuccessful response.
// Gateway failures are reported in the body, not as request errors.
func (service *serviceInstance) failed(ctx context.Context, message string, cause error) (domainInstance.StatusResponse, error) {
	logrus.WithField("instance", service.cfg.Instance).Errorf("[INSTANCE] %s: %v", message, cause)

	var notConnected *pkgError.NotConnectedError
	status := domainConnection.StatusError
	if errors.As(cause, &notConnected) {
		status = domainConnection.StatusDisconnected
	}
	if _, err := service.upsert(ctx, domainConnection.Update{
		Status:       domainConnection.StatusPtr(status),
		ErrorMessage: domainConnection.StringPtr(cause.Error()),
	}); err != nil {
		return domainInstance.StatusResponse{}, err
	}
	return domainInstance.StatusResponse{
		Success: boolPtr(false),
		Status:  status,
		Message: message,
	}, nil
}

func (service *serviceInstance) fetchProfile(ctx context.Context) *domainConnection.Profile {
	profile, err := service.gateway.FetchProfile(ctx, service.cfg.Instance)
	if err != nil {
		logrus.WithField("instance", service.cfg.Instance).Warnf("[INSTANCE] could not fetch profile: %v", err)
		return nil
	}
	return profile
}

func (service *serviceInstance) project(conn domainConnection.Connection, success *bool) domainInstance.StatusResponse {
	resp := domainInstance.StatusResponse{
		Success: success,
		Status:  conn.Status,
		Profile: conn.Profile,
		Message: statusMessage(conn, service.now()),
	}
	if conn.Status == "" {
		resp.Status = domainConnection.StatusDisconnected
	}
	if conn.QRCode != nil && conn.Status.HoldsQR() {
		resp.QRCode = QRDataURL(*conn.QRCode)
	}
	if conn.PairingCode != nil {
		resp.PairingCode = *conn.PairingCode
	}
	return resp
}

func statusMessage(conn domainConnection.Connection, now time.Time) string {
	switch conn.Status {
	case domainConnection.StatusConnected:
		msg := "Connected"
		if conn.Profile != nil && conn.Profile.Name != "" {
			msg += " as " + conn.Profile.Name
			if conn.Profile.Number != "" {
				msg += " (" + conn.Profile.Number + ")"
			}
		}
		if conn.LastConnectedAt != nil {
			msg += " since " + humanize.RelTime(*conn.LastConnectedAt, now, "ago", "from now")
		}
		return msg
	case domainConnection.StatusQRReady:
		return "Scan the QR code with WhatsApp on your phone"
	case domainConnection.StatusConnecting:
		return "Connecting to WhatsApp..."
	case domainConnection.StatusError:
		if conn.ErrorMessage != nil {
			return "Connection error: " + *conn.ErrorMessage
		}
		return "Connection error"
	default:
		if conn.ErrorMessage != nil && *conn.ErrorMessage != "" {
			return fmt.Sprintf("WhatsApp is disconnected (%s)", *conn.ErrorMessage)
		}
		return "WhatsApp is not connected"
	}
}

// QRDataURL renders a raw QR payload as a PNG data URL. Values that already
// are data URLs pass through.
func QRDataURL(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.HasPrefix(code, "data:") {
		return code
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		logrus.Warnf("[INSTANCE] failed to render QR code: %v", err)
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

func boolPtr(b bool) *bool { return &b }

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
