package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
	domainWebhook "github.com/AzielCF/az-wacrm/domains/webhook"
	"github.com/AzielCF/az-wacrm/infrastructure/httpclient"
	"github.com/AzielCF/az-wacrm/infrastructure/session"

	// database/sql drivers for the device store
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// EventSink receives events produced by the socket in gateway webhook shape.
type EventSink func(event domainWebhook.Event)

type Options struct {
	Instance string
	// StoreURI is a sqlite "file:" URI or a "postgres:" DSN for the device store.
	StoreURI string
	LogLevel string
	// SQLKeys keeps the signal keys in the sqlstore instead of the AuthState.
	SQLKeys bool
	Sink    EventSink
}

// Bridge opens whatsmeow sockets for the session manager. Creds and signal
// keys live in the manager's AuthState; the sqlstore keeps the remaining
// device tables (contacts, app state, chat settings).
type Bridge struct {
	opts      Options
	container *sqlstore.Container
	media     *httpclient.Client

	mu   sync.Mutex
	live *socket
}

func Open(ctx context.Context, opts Options) (*Bridge, error) {
	if opts.LogLevel == "" {
		opts.LogLevel = "WARN"
	}
	dialect := "sqlite3"
	if strings.HasPrefix(opts.StoreURI, "postgres:") || strings.HasPrefix(opts.StoreURI, "postgresql:") {
		dialect = "postgres"
	}

	container, err := sqlstore.New(ctx, dialect, opts.StoreURI, waLog.Stdout("Database", opts.LogLevel, true))
	if err != nil {
		return nil, fmt.Errorf("open whatsmeow store: %w", err)
	}
	return &Bridge{
		opts:      opts,
		container: container,
		media:     httpclient.New(httpclient.Config{Timeout: 60 * time.Second, MaxRetries: 2}),
	}, nil
}

func (b *Bridge) Close() error {
	return b.container.Close()
}

// Factory returns the SocketFactory handed to session.NewManager.
func (b *Bridge) Factory() session.SocketFactory {
	return b.connect
}

func (b *Bridge) connect(ctx context.Context, auth *session.AuthState) (session.Socket, error) {
	device, err := b.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	if device.ID == nil {
		creds, err := auth.LoadCreds(ctx)
		if err != nil {
			return nil, err
		}
		if err := applyCreds(device, creds); err != nil {
			return nil, fmt.Errorf("restore device from creds: %w", err)
		}
		if device.ID != nil {
			if err := device.Save(ctx); err != nil {
				return nil, fmt.Errorf("save restored device: %w", err)
			}
			logrus.WithField("jid", device.ID.String()).Info("[SESSION] device restored from stored credentials")
		}
	}
	var keys *signalStore
	if !b.opts.SQLKeys {
		keys = newSignalStore(auth)
		if device.ID != nil {
			keys.attach(device)
		}
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", b.opts.LogLevel, true))
	// Reconnects are owned by the session manager.
	client.EnableAutoReconnect = false

	sock := &socket{
		bridge:  b,
		client:  client,
		auth:    auth,
		keys:    keys,
		updates: make(chan session.ConnectionUpdate, 16),
	}
	sock.handlerID = client.AddEventHandler(sock.handleEvent)

	if client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		sock.cancelQR = cancel
		qrChan, err := client.GetQRChannel(qrCtx)
		if err != nil {
			sock.Close()
			return nil, fmt.Errorf("open qr channel: %w", err)
		}
		go sock.watchQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		sock.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	b.mu.Lock()
	b.live = sock
	b.mu.Unlock()
	return sock, nil
}

type socket struct {
	bridge    *Bridge
	client    *whatsmeow.Client
	auth      *session.AuthState
	keys      *signalStore
	handlerID uint32
	cancelQR  context.CancelFunc

	mu      sync.Mutex
	closed  bool
	updates chan session.ConnectionUpdate
}

func (s *socket) Updates() <-chan session.ConnectionUpdate {
	return s.updates
}

func (s *socket) Logout(ctx context.Context) error {
	return s.client.Logout(ctx)
}

func (s *socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.bridge.mu.Lock()
	if s.bridge.live == s {
		s.bridge.live = nil
	}
	s.bridge.mu.Unlock()

	if s.cancelQR != nil {
		s.cancelQR()
	}
	s.client.RemoveEventHandler(s.handlerID)
	s.client.Disconnect()

	s.mu.Lock()
	close(s.updates)
	s.mu.Unlock()
	return nil
}

// emit never blocks the whatsmeow event loop; a socket that is being closed
// drops late updates.
func (s *socket) emit(upd session.ConnectionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- upd:
	default:
		logrus.Warnf("[SESSION] update channel full, dropping %s update", upd.Connection)
	}
}

func (s *socket) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			s.emit(session.ConnectionUpdate{QR: item.Code})
		case "timeout":
			s.emit(session.ConnectionUpdate{Connection: session.ConnectionClose, Err: errors.New("qr code expired")})
		case "error":
			s.emit(session.ConnectionUpdate{Connection: session.ConnectionClose, Err: fmt.Errorf("pairing failed: %v", item.Error)})
		case "success":
			logrus.Info("[SESSION] QR code scanned")
		default:
			if strings.HasPrefix(item.Event, "err-") {
				s.emit(session.ConnectionUpdate{Connection: session.ConnectionClose, Err: fmt.Errorf("pairing failed: %s", item.Event)})
			}
		}
	}
}

func (s *socket) handleEvent(raw any) {
	switch evt := raw.(type) {
	case *events.PairSuccess:
		ctx := context.Background()
		if err := s.auth.MarkPaired(ctx, evt.ID.String(), evt.BusinessName, evt.Platform, time.Now()); err != nil {
			logrus.Warnf("[SESSION] could not record pairing: %v", err)
		}
		// Pairing saves the device, which resets its stores to the sqlstore.
		if s.keys != nil {
			s.keys.attach(s.client.Store)
		}
		s.mirrorCreds(ctx)
	case *events.Connected:
		s.mirrorCreds(context.Background())
		s.emit(session.ConnectionUpdate{Connection: session.ConnectionOpen, Profile: s.profile()})
	case *events.Disconnected:
		s.emit(session.ConnectionUpdate{Connection: session.ConnectionClose, Err: errors.New("connection closed")})
	case *events.LoggedOut:
		s.emit(session.ConnectionUpdate{Connection: session.ConnectionClose, LoggedOut: true, StatusCode: 401})
	case *events.StreamReplaced:
		s.emit(session.ConnectionUpdate{Connection: session.ConnectionClose, StatusCode: 440, Err: errors.New("session opened elsewhere")})
	case *events.ConnectFailure:
		s.emit(session.ConnectionUpdate{
			Connection: session.ConnectionClose,
			LoggedOut:  evt.Reason.IsLoggedOut(),
			StatusCode: int(evt.Reason),
			Err:        fmt.Errorf("connect failure: %v", evt.Reason),
		})
	case *events.TemporaryBan:
		s.emit(session.ConnectionUpdate{Connection: session.ConnectionClose, StatusCode: 402, Err: fmt.Errorf("temporary ban: %v", evt)})
	case *events.Message:
		if payload := MessageToPayload(evt); payload != nil {
			s.forward(domainWebhook.EventMessagesUpsert, payload)
		}
	case *events.Receipt:
		if items := ReceiptToPayload(evt); len(items) > 0 {
			s.forward(domainWebhook.EventMessagesUpdate, items)
		}
	case *events.PushName:
		s.forward(domainWebhook.EventContactsUpdate, []any{map[string]any{
			"remoteJid": evt.JID.String(),
			"pushName":  evt.NewPushName,
		}})
	}
}

func (s *socket) forward(name string, data any) {
	if s.bridge.opts.Sink == nil {
		return
	}
	s.bridge.opts.Sink(domainWebhook.Event{
		Event:    name,
		Instance: s.bridge.opts.Instance,
		Data:     data,
		DateTime: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *socket) profile() *domainConnection.Profile {
	if s.client.Store == nil || s.client.Store.ID == nil {
		return nil
	}
	return &domainConnection.Profile{
		Name:   s.client.Store.PushName,
		Number: s.client.Store.ID.User,
	}
}

func (s *socket) mirrorCreds(ctx context.Context) {
	creds, err := credsFromDevice(s.client.Store)
	if err == nil {
		err = s.auth.SaveCreds(ctx, creds)
	}
	if err != nil {
		logrus.Warnf("[SESSION] could not save credentials: %v", err)
	}
}
