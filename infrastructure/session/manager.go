package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
	domainSession "github.com/AzielCF/az-wacrm/domains/session"
)

const (
	ConnectionOpen       = "open"
	ConnectionConnecting = "connecting"
	ConnectionClose      = "close"
)

// ConnectionUpdate is one item of a socket's connection stream.
type ConnectionUpdate struct {
	Connection string
	QR         string
	Profile    *domainConnection.Profile
	LoggedOut  bool
	StatusCode int
	Err        error
}

// Socket is the live protocol connection. Updates must be closed once the
// socket is done; a close update before that is optional.
type Socket interface {
	Updates() <-chan ConnectionUpdate
	Logout(ctx context.Context) error
	Close() error
}

type SocketFactory func(ctx context.Context, auth *AuthState) (Socket, error)

// ScheduleFunc runs fn after d and returns a cancel func.
type ScheduleFunc func(d time.Duration, fn func()) (cancel func())

type ManagerConfig struct {
	Instance             string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	Schedule             ScheduleFunc
	Now                  func() time.Time
}

type Manager struct {
	mu sync.Mutex

	cfg     ManagerConfig
	factory SocketFactory
	auth    *AuthState
	repo    domainConnection.IConnectionRepository

	state     domainSession.State
	qr        string
	profile   *domainConnection.Profile
	lastError string
	updatedAt time.Time
	attempts  int

	socket     Socket
	generation int
	pending    *int
	cancelWait func()
	listeners  []func(domainSession.Transition)
}

var _ domainSession.IConnectionManager = (*Manager)(nil)

func NewManager(cfg ManagerConfig, factory SocketFactory, auth *AuthState, repo domainConnection.IConnectionRepository) *Manager {
	if cfg.Instance == "" {
		cfg.Instance = "default"
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 3
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Schedule == nil {
		cfg.Schedule = func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:     cfg,
		factory: factory,
		auth:    auth,
		repo:    repo,
		state:   domainSession.StateIdle,
	}
}

func (m *Manager) Auth() *AuthState { return m.auth }

// OnTransition registers a listener. Listeners run outside the manager lock.
func (m *Manager) OnTransition(fn func(domainSession.Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) Snapshot() domainSession.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() domainSession.Snapshot {
	var profile *domainConnection.Profile
	if m.profile != nil {
		p := *m.profile
		profile = &p
	}
	return domainSession.Snapshot{
		Instance:  m.cfg.Instance,
		State:     m.state,
		QRCode:    m.qr,
		Profile:   profile,
		Attempts:  m.attempts,
		LastError: m.lastError,
		UpdatedAt: m.updatedAt,
	}
}

// Start opens a socket unless one is already live.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.socket != nil {
		m.mu.Unlock()
		return nil
	}
	fired, err := m.connectLocked(ctx)
	m.mu.Unlock()
	m.notify(fired)
	return err
}

// Restart drops the current socket and any pending reconnect and starts over
// with a fresh attempt budget.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	m.cancelPendingLocked()
	m.dropSocketLocked()
	m.attempts = 0
	fired, err := m.connectLocked(ctx)
	m.mu.Unlock()
	m.notify(fired)
	return err
}

// Logout unpairs the device and wipes persisted credentials.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.cancelPendingLocked()
	var logoutErr error
	if m.socket != nil {
		logoutErr = m.socket.Logout(ctx)
		if logoutErr != nil {
			logrus.WithField("instance", m.cfg.Instance).Warnf("[SESSION] logout failed, clearing credentials anyway: %v", logoutErr)
		}
	}
	m.dropSocketLocked()
	m.attempts = 0
	m.profile = nil

	if n, err := m.auth.Clear(ctx); err != nil {
		logrus.WithField("instance", m.cfg.Instance).Errorf("[SESSION] failed to clear credentials: %v", err)
	} else {
		logrus.WithField("instance", m.cfg.Instance).Infof("[SESSION] cleared %d credential keys", n)
	}

	tr := m.transitionLocked(ctx, domainSession.StateDisconnected, "", domainConnection.Update{
		ClearQR:      true,
		ClearProfile: true,
		ClearError:   true,
	})
	m.mu.Unlock()
	m.notify([]domainSession.Transition{tr})
	return nil
}

// Stop closes the socket without touching credentials. Used on shutdown.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.cancelPendingLocked()
	hadSocket := m.socket != nil
	m.dropSocketLocked()
	var fired []domainSession.Transition
	if hadSocket {
		fired = append(fired, m.transitionLocked(ctx, domainSession.StateDisconnected, "", domainConnection.Update{}))
	}
	m.mu.Unlock()
	m.notify(fired)
	return nil
}

func (m *Manager) connectLocked(ctx context.Context) ([]domainSession.Transition, error) {
	fired := []domainSession.Transition{
		m.transitionLocked(ctx, domainSession.StateConnecting, "", domainConnection.Update{ClearError: true}),
	}

	sock, err := m.factory(ctx, m.auth)
	if err != nil {
		msg := fmt.Sprintf("failed to open socket: %v", err)
		fired = append(fired, m.transitionLocked(ctx, domainSession.StateError, msg, domainConnection.Update{}))
		return fired, err
	}
	m.attachLocked(sock)
	return fired, nil
}

func (m *Manager) attachLocked(sock Socket) {
	m.generation++
	m.socket = sock
	go m.consume(m.generation, sock)
}

func (m *Manager) consume(gen int, sock Socket) {
	for upd := range sock.Updates() {
		m.handle(gen, upd)
	}
	// A stream that ends without a close update is an unexpected close.
	m.handle(gen, ConnectionUpdate{Connection: ConnectionClose, Err: errors.New("connection stream ended")})
}

func (m *Manager) handle(gen int, upd ConnectionUpdate) {
	ctx := context.Background()

	m.mu.Lock()
	if gen != m.generation || m.socket == nil {
		m.mu.Unlock()
		return
	}

	var fired []domainSession.Transition
	switch {
	case upd.QR != "":
		m.qr = upd.QR
		fired = append(fired, m.transitionLocked(ctx, domainSession.StateQRReady, "", domainConnection.Update{
			QRCode: domainConnection.StringPtr(upd.QR),
		}))

	case upd.Connection == ConnectionConnecting:
		fired = append(fired, m.transitionLocked(ctx, domainSession.StateConnecting, "", domainConnection.Update{}))

	case upd.Connection == ConnectionOpen:
		m.attempts = 0
		if upd.Profile != nil {
			p := *upd.Profile
			m.profile = &p
		}
		fired = append(fired, m.transitionLocked(ctx, domainSession.StateConnected, "", domainConnection.Update{
			Profile: upd.Profile,
		}))

	case upd.Connection == ConnectionClose:
		fired = append(fired, m.closedLocked(ctx, upd)...)
	}
	m.mu.Unlock()
	m.notify(fired)
}

func (m *Manager) closedLocked(ctx context.Context, upd ConnectionUpdate) []domainSession.Transition {
	m.dropSocketLocked()
	log := logrus.WithFields(logrus.Fields{"instance": m.cfg.Instance, "status_code": upd.StatusCode})

	if upd.LoggedOut || upd.StatusCode == 401 {
		log.Warn("[SESSION] logged out by the phone, credentials cleared")
		if _, err := m.auth.Clear(ctx); err != nil {
			log.Errorf("[SESSION] failed to clear credentials: %v", err)
		}
		m.attempts = 0
		m.profile = nil
		return []domainSession.Transition{
			m.transitionLocked(ctx, domainSession.StateDisconnected, "logged out", domainConnection.Update{ClearProfile: true}),
		}
	}

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		msg := fmt.Sprintf("connection lost after %d reconnect attempts", m.cfg.MaxReconnectAttempts)
		log.Error("[SESSION] " + msg)
		m.attempts = 0
		return []domainSession.Transition{
			m.transitionLocked(ctx, domainSession.StateDisconnected, msg, domainConnection.Update{}),
		}
	}

	m.attempts++
	reason := "connection closed"
	if upd.Err != nil {
		reason = upd.Err.Error()
	}
	log.Warnf("[SESSION] %s, reconnecting in %s (attempt %d/%d)", reason, m.cfg.ReconnectDelay, m.attempts, m.cfg.MaxReconnectAttempts)

	tr := m.transitionLocked(ctx, domainSession.StateDisconnected, reason, domainConnection.Update{})
	m.scheduleReconnectLocked()
	return []domainSession.Transition{tr}
}

func (m *Manager) scheduleReconnectLocked() {
	token := new(int)
	m.pending = token
	m.cancelWait = m.cfg.Schedule(m.cfg.ReconnectDelay, func() {
		m.reconnect(token)
	})
}

func (m *Manager) reconnect(token *int) {
	m.mu.Lock()
	if m.pending != token {
		m.mu.Unlock()
		return
	}
	m.pending = nil
	m.cancelWait = nil

	// A socket that cannot even be opened counts against the attempt budget
	// like one that closes right away.
	ctx := context.Background()
	fired := []domainSession.Transition{
		m.transitionLocked(ctx, domainSession.StateConnecting, "", domainConnection.Update{ClearError: true}),
	}
	sock, err := m.factory(ctx, m.auth)
	if err != nil {
		logrus.WithField("instance", m.cfg.Instance).Errorf("[SESSION] reconnect failed: %v", err)
		fired = append(fired, m.closedLocked(ctx, ConnectionUpdate{
			Connection: ConnectionClose,
			Err:        fmt.Errorf("failed to open socket: %w", err),
		})...)
	} else {
		m.attachLocked(sock)
	}
	m.mu.Unlock()
	m.notify(fired)
}

func (m *Manager) cancelPendingLocked() {
	if m.cancelWait != nil {
		m.cancelWait()
	}
	m.cancelWait = nil
	m.pending = nil
}

// dropSocketLocked closes the current socket and invalidates its update loop.
func (m *Manager) dropSocketLocked() {
	if m.socket == nil {
		return
	}
	if err := m.socket.Close(); err != nil {
		logrus.WithField("instance", m.cfg.Instance).Debugf("[SESSION] socket close: %v", err)
	}
	m.socket = nil
	m.generation++
}

// transitionLocked moves to state, persists the connection row and returns
// the transition for listeners. errMsg, when set, is recorded as the error.
func (m *Manager) transitionLocked(ctx context.Context, to domainSession.State, errMsg string, u domainConnection.Update) domainSession.Transition {
	from := m.state
	m.state = to
	m.updatedAt = m.cfg.Now()
	if !to.ConnectionStatus().HoldsQR() {
		m.qr = ""
	}
	if errMsg != "" {
		m.lastError = errMsg
		u.ErrorMessage = domainConnection.StringPtr(errMsg)
	} else if u.ClearError || to == domainSession.StateConnected {
		m.lastError = ""
	}

	u.Status = domainConnection.StatusPtr(to.ConnectionStatus())
	if m.repo != nil {
		if _, err := m.repo.Upsert(ctx, m.cfg.Instance, u); err != nil {
			logrus.WithFields(logrus.Fields{"instance": m.cfg.Instance, "status": to}).
				Errorf("[SESSION] failed to persist connection status: %v", err)
		}
	}

	logrus.WithField("instance", m.cfg.Instance).Debugf("[SESSION] %s -> %s", from, to)
	return domainSession.Transition{From: from, To: to, Snapshot: m.snapshotLocked()}
}

func (m *Manager) notify(fired []domainSession.Transition) {
	if len(fired) == 0 {
		return
	}
	m.mu.Lock()
	listeners := append([]func(domainSession.Transition){}, m.listeners...)
	m.mu.Unlock()
	for _, tr := range fired {
		for _, fn := range listeners {
			fn(tr)
		}
	}
}
