package dap

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ctagard/dap-dump/internal/bridge"
	"github.com/ctagard/dap-dump/internal/config"
	"github.com/ctagard/dap-dump/internal/dump"
	"github.com/ctagard/dap-dump/internal/errors"
	"github.com/ctagard/dap-dump/internal/layout"
	"github.com/ctagard/dap-dump/internal/output"
	"github.com/ctagard/dap-dump/internal/qttypes"
	"github.com/ctagard/dap-dump/internal/slogutil"
	"github.com/ctagard/dap-dump/internal/variant"
	"github.com/ctagard/dap-dump/pkg/types"
)

// Session is one debugger attach with its dump state.
type Session struct {
	ID        string
	Adapter   types.AdapterKind
	Client    *Client
	Bridge    *Bridge
	Dump      *dump.Session
	Process   *exec.Cmd
	PID       int
	Program   string
	CreatedAt time.Time

	status   types.SessionStatus
	lastUsed time.Time
	mu       sync.RWMutex

	// fetchMu serializes fetches; a fetch may resume the debuggee.
	fetchMu sync.Mutex
}

// Status returns the session state.
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(st types.SessionStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// Info summarizes the session for listings.
func (s *Session) Info() types.SessionInfo {
	info := types.SessionInfo{
		SessionID: s.ID,
		Adapter:   s.Adapter,
		Status:    s.Status(),
		PID:       s.PID,
		Program:   s.Program,
	}
	if s.Dump != nil {
		target := s.Dump.Target()
		info.PointerSize = target.PointerSize
		info.OS = string(target.OS)
		info.Fetches = s.Dump.Fetches()
		if v, ns, ok := s.Dump.Detected(); ok {
			info.QtVersion = v.String()
			info.QtNamespace = ns
		}
	}
	return info
}

// ManagerOptions configure a SessionManager.
type ManagerOptions struct {
	MaxSessions    int
	SessionTimeout time.Duration
	// RequestTimeout bounds handshake and bookkeeping requests.
	RequestTimeout time.Duration
	Dump           dump.Options
	Layouts        *layout.Table
	Bridge         BridgeOptions
	Logger         *slog.Logger
}

// NewManagerOptions maps the configuration onto manager options. It fails
// when a layout override file is invalid.
func NewManagerOptions(cfg *config.Config, logger *slog.Logger) (ManagerOptions, error) {
	layouts, err := cfg.LayoutTable()
	if err != nil {
		return ManagerOptions{}, err
	}
	return ManagerOptions{
		MaxSessions:    cfg.MaxSessions,
		SessionTimeout: cfg.SessionTimeout,
		RequestTimeout: cfg.RequestTimeout,
		Dump:           cfg.DumpOptions(),
		Layouts:        layouts,
		Bridge:         BridgeOptions{TypeCommand: cfg.Dump.TypeCommand, LazyTimeout: cfg.RequestTimeout},
		Logger:         logger,
	}, nil
}

// SessionManager owns the attached sessions. Idle sessions are detached
// after SessionTimeout.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	opts     ManagerOptions
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSessionManager creates a manager and starts its cleanup loop.
func NewSessionManager(opts ManagerOptions) *SessionManager {
	if opts.Layouts == nil {
		opts.Layouts = layout.DefaultTable()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slogutil.NewDiscardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sm := &SessionManager{
		sessions: make(map[string]*Session),
		opts:     opts,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	if opts.SessionTimeout > 0 {
		go sm.cleanupLoop()
	}
	return sm
}

// Layouts returns the descriptor table shared by all sessions.
func (sm *SessionManager) Layouts() *layout.Table {
	return sm.opts.Layouts
}

// RequestTimeout is the default timeout of a request to the adapter.
func (sm *SessionManager) RequestTimeout() time.Duration {
	return sm.opts.RequestTimeout
}

func (sm *SessionManager) cleanupLoop() {
	interval := min(time.Minute, sm.opts.SessionTimeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.cleanupExpiredSessions(time.Now())
		}
	}
}

// cleanupExpiredSessions detaches sessions idle for longer than the
// session timeout.
func (sm *SessionManager) cleanupExpiredSessions(now time.Time) {
	sm.mu.Lock()
	var expired []*Session
	for id, s := range sm.sessions {
		if now.Sub(s.idleSince()) > sm.opts.SessionTimeout {
			expired = append(expired, s)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, s := range expired {
		sm.logger.Info("session expired", "session", s.ID, "idle", now.Sub(s.idleSince()).Round(time.Second))
		sm.shutdown(s, false)
	}
}

// CreateSession reserves a session slot.
func (sm *SessionManager) CreateSession(kind types.AdapterKind, program string, pid int) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.opts.MaxSessions > 0 && len(sm.sessions) >= sm.opts.MaxSessions {
		return nil, errors.SessionLimitReached(sm.opts.MaxSessions)
	}

	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		Adapter:   kind,
		PID:       pid,
		Program:   program,
		CreatedAt: now,
		status:    types.SessionStatusInitializing,
		lastUsed:  now,
	}
	sm.sessions[s.ID] = s
	return s, nil
}

// Attach runs the DAP handshake on client, attaches to the process and
// prepares the dump state. On failure the session is removed.
func (sm *SessionManager) Attach(ctx context.Context, id string, client *Client, cmd *exec.Cmd, attachArgs map[string]any) error {
	s, err := sm.GetSession(id)
	if err != nil {
		return err
	}
	s.Client, s.Process = client, cmd

	if err := sm.handshake(ctx, client, attachArgs); err != nil {
		_ = sm.TerminateSession(id, false)
		return err
	}

	s.Bridge = NewBridge(client, sm.opts.Bridge, sm.logger.With("session", id))
	ds, err := NewDumpSession(ctx, s.Bridge, sm.opts.Layouts, sm.opts.Dump, sm.logger.With("session", id))
	if err != nil {
		_ = sm.TerminateSession(id, false)
		return err
	}
	s.Dump = ds
	s.setStatus(types.SessionStatusAttached)
	s.touch()
	sm.logger.Info("session attached", "session", id, "adapter", s.Adapter, "pid", s.PID)
	return nil
}

// handshake is initialize, attach, initialized event, configurationDone.
// The attach response may only arrive after configurationDone.
func (sm *SessionManager) handshake(ctx context.Context, client *Client, attachArgs map[string]any) error {
	timeout := sm.opts.RequestTimeout
	if _, err := client.Initialize(ctx, "dap-dump"); err != nil {
		return errors.DAPInitFailed(err)
	}
	pending, err := client.AttachAsync(attachArgs)
	if err != nil {
		return errors.DAPAttachFailed(err)
	}
	if err := client.WaitInitialized(ctx, timeout); err != nil {
		return errors.DAPInitFailed(err)
	}
	if err := client.ConfigurationDone(ctx); err != nil {
		return errors.DAPInitFailed(err)
	}
	if err := pending.Wait(ctx, 3*timeout); err != nil {
		return errors.DAPAttachFailed(err)
	}
	return nil
}

// NewDumpSession creates a dump session with every decoder registered.
func NewDumpSession(ctx context.Context, nb bridge.NativeBridge, layouts *layout.Table, opts dump.Options, logger *slog.Logger) (*dump.Session, error) {
	reg := dump.NewRegistry()
	qttypes.Register(reg)
	variant.Register(reg)
	return dump.NewSession(ctx, nb, reg, layouts, opts, logger)
}

// GetSession returns the session with the given id.
func (sm *SessionManager) GetSession(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, ok := sm.sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return s, nil
}

// ListSessions returns all sessions.
func (sm *SessionManager) ListSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Fetch runs one dump request on a session. A lost target terminates the
// session.
func (sm *SessionManager) Fetch(ctx context.Context, id string, req types.FetchRequest) (*output.Document, error) {
	s, err := sm.GetSession(id)
	if err != nil {
		return nil, err
	}
	if s.Status() != types.SessionStatusAttached || s.Dump == nil {
		return nil, errors.SessionTerminated(id)
	}

	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	s.touch()
	s.Bridge.Refresh()

	doc, err := s.Dump.FetchDocument(ctx, req)
	if err != nil {
		if errors.IsFatal(err) {
			sm.logger.Error("target lost, terminating session", "session", id, "error", err)
			_ = sm.TerminateSession(id, false)
		}
		return nil, err
	}
	return doc, nil
}

// TerminateSession detaches from the debuggee, or kills it when
// terminateDebuggee is set, and removes the session.
func (sm *SessionManager) TerminateSession(id string, terminateDebuggee bool) error {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if !ok {
		return errors.SessionNotFound(id)
	}
	sm.shutdown(s, terminateDebuggee)
	return nil
}

func (sm *SessionManager) shutdown(s *Session, terminateDebuggee bool) {
	if s.Client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sm.opts.RequestTimeout)
		if err := s.Client.Disconnect(ctx, terminateDebuggee); err != nil && !errors.IsFatal(err) {
			sm.logger.Warn("failed to disconnect, continuing cleanup", "session", s.ID, "error", err)
		}
		cancel()
		if err := s.Client.Close(); err != nil {
			sm.logger.Debug("failed to close client", "session", s.ID, "error", err)
		}
	}
	if err := stopAdapter(s.Process); err != nil {
		sm.logger.Warn("failed to stop adapter", "session", s.ID, "error", err)
	}
	s.setStatus(types.SessionStatusTerminated)
}

// Close terminates every session and stops the cleanup loop.
func (sm *SessionManager) Close() {
	sm.cancel()

	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	for _, s := range sessions {
		sm.shutdown(s, false)
	}
}

// String identifies the session in logs.
func (s *Session) String() string {
	return fmt.Sprintf("%s(%s pid %d)", s.ID, s.Adapter, s.PID)
}
