package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/chazu/pumpkin/pkg/runtime"
)

const (
	SessionServiceName      = "pumpkin.v1.SessionService"
	CreateSessionProcedure  = "/" + SessionServiceName + "/CreateSession"
	RunProcedure            = "/" + SessionServiceName + "/Run"
	GlobalsProcedure        = "/" + SessionServiceName + "/Globals"
	ResetSessionProcedure   = "/" + SessionServiceName + "/ResetSession"
	ListSessionsProcedure   = "/" + SessionServiceName + "/ListSessions"
	DestroySessionProcedure = "/" + SessionServiceName + "/DestroySession"
)

// SessionService runs programs against long-lived sessions.
type SessionService struct {
	cfg      *serverConfig
	sessions *SessionStore
}

// NewSessionService creates a SessionService.
func NewSessionService(cfg *serverConfig, sessions *SessionStore) *SessionService {
	return &SessionService{cfg: cfg, sessions: sessions}
}

func (s *SessionService) handlers(opts []connect.HandlerOption) map[string]http.Handler {
	return map[string]http.Handler{
		CreateSessionProcedure:  connect.NewUnaryHandler(CreateSessionProcedure, s.CreateSession, opts...),
		RunProcedure:            connect.NewUnaryHandler(RunProcedure, s.Run, opts...),
		GlobalsProcedure:        connect.NewUnaryHandler(GlobalsProcedure, s.Globals, opts...),
		ResetSessionProcedure:   connect.NewUnaryHandler(ResetSessionProcedure, s.ResetSession, opts...),
		ListSessionsProcedure:   connect.NewUnaryHandler(ListSessionsProcedure, s.ListSessions, opts...),
		DestroySessionProcedure: connect.NewUnaryHandler(DestroySessionProcedure, s.DestroySession, opts...),
	}
}

// CreateSession creates a new session.
func (s *SessionService) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	session, err := s.sessions.Create(req.Msg.Name)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&CreateSessionResponse{SessionID: session.ID}), nil
}

// Run runs a program in a session. Bindings it makes stay in the session,
// including those made before a failure.
func (s *SessionService) Run(
	ctx context.Context,
	req *connect.Request[RunRequest],
) (*connect.Response[runtime.ExecutionResult], error) {
	session, err := s.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if len(req.Msg.Program) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("program is required"))
	}

	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	res, err := s.sessions.Run(ctx, session, req.Msg.Program)
	if err != nil {
		return nil, workerError(err)
	}
	return connect.NewResponse(res), nil
}

// Globals returns a session's bindings.
func (s *SessionService) Globals(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[GlobalsResponse], error) {
	session, err := s.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	globals, err := s.sessions.Globals(ctx, session)
	if err != nil {
		return nil, workerError(err)
	}
	return connect.NewResponse(&GlobalsResponse{Globals: globals}), nil
}

// ResetSession discards a session's bindings.
func (s *SessionService) ResetSession(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[Empty], error) {
	session, err := s.lookup(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Reset(ctx, session); err != nil {
		return nil, workerError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// ListSessions lists every session, oldest first.
func (s *SessionService) ListSessions(
	ctx context.Context,
	req *connect.Request[ListSessionsRequest],
) (*connect.Response[ListSessionsResponse], error) {
	list := s.sessions.List()
	infos := make([]SessionInfo, 0, len(list))
	for _, session := range list {
		infos = append(infos, session.Info())
	}
	return connect.NewResponse(&ListSessionsResponse{Sessions: infos}), nil
}

// DestroySession destroys a session and its stored state.
func (s *SessionService) DestroySession(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[Empty], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	if !s.sessions.Destroy(req.Msg.SessionID) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *SessionService) lookup(id string) (*Session, error) {
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session, nil
}

// workerError maps a VMWorker failure to a Connect error.
func workerError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, ErrWorkerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
