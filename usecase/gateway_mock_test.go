package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
	domainGateway "github.com/AzielCF/az-wacrm/domains/gateway"
)

type mockGateway struct {
	mock.Mock
}

var _ domainGateway.IGatewayService = (*mockGateway)(nil)

func (m *mockGateway) CheckInstanceStatus(ctx context.Context, instance string) (domainGateway.InstanceState, error) {
	args := m.Called(ctx, instance)
	return args.Get(0).(domainGateway.InstanceState), args.Error(1)
}

func (m *mockGateway) FetchQRCode(ctx context.Context, instance string) (domainGateway.QRCode, error) {
	args := m.Called(ctx, instance)
	return args.Get(0).(domainGateway.QRCode), args.Error(1)
}

func (m *mockGateway) CreateInstance(ctx context.Context, instance string) (domainGateway.QRCode, error) {
	args := m.Called(ctx, instance)
	return args.Get(0).(domainGateway.QRCode), args.Error(1)
}

func (m *mockGateway) ReconnectInstance(ctx context.Context, instance string) (domainGateway.QRCode, error) {
	args := m.Called(ctx, instance)
	return args.Get(0).(domainGateway.QRCode), args.Error(1)
}

func (m *mockGateway) LogoutInstance(ctx context.Context, instance string) error {
	return m.Called(ctx, instance).Error(0)
}

func (m *mockGateway) FetchProfile(ctx context.Context, instance string) (*domainConnection.Profile, error) {
	args := m.Called(ctx, instance)
	profile, _ := args.Get(0).(*domainConnection.Profile)
	return profile, args.Error(1)
}

func (m *mockGateway) SetupWebhook(ctx context.Context, instance string) error {
	return m.Called(ctx, instance).Error(0)
}

func (m *mockGateway) SendTextMessage(ctx context.Context, instance string, request domainGateway.SendTextRequest) (domainGateway.SendResult, error) {
	args := m.Called(ctx, instance, request)
	return args.Get(0).(domainGateway.SendResult), args.Error(1)
}

func (m *mockGateway) SendMediaMessage(ctx context.Context, instance string, request domainGateway.SendMediaRequest) (domainGateway.SendResult, error) {
	args := m.Called(ctx, instance, request)
	return args.Get(0).(domainGateway.SendResult), args.Error(1)
}

func (m *mockGateway) SendWhatsAppMessage(ctx context.Context, instance string, message domainGateway.OutgoingMessage) (domainGateway.SendResult, error) {
	args := m.Called(ctx, instance, message)
	return args.Get(0).(domainGateway.SendResult), args.Error(1)
}
