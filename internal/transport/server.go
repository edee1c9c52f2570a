package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danielpatrickdp/continuity-arbiter/internal/session"
	"github.com/danielpatrickdp/continuity-arbiter/internal/state"
	"github.com/danielpatrickdp/continuity-arbiter/internal/temporal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region wire-types

// TurnRequest is the JSON form of a ProcessTurn request.
type TurnRequest struct {
	SessionID string            `json:"session_id"`
	Turn      session.TurnInput `json:"turn"`
}

// StateRequest is the JSON form of a GetState request.
type StateRequest struct {
	SessionID string `json:"session_id"`
}

// StateView is the JSON form of a GetState response.
type StateView struct {
	SessionID string          `json:"session_id"`
	VersionID string          `json:"version_id"`
	State     *temporal.State `json:"state"`
	Memory    state.Memory    `json:"memory"`
}

// #endregion wire-types

// Sessions is what the server needs from the session layer.
type Sessions interface {
	ProcessTurn(ctx context.Context, sessionID string, in session.TurnInput) (session.TurnOutcome, error)
	GetState(ctx context.Context, sessionID string) (state.Loaded, error)
}

// #region server

// Server implements ArbiterServer over a session service.
type Server struct {
	sessions Sessions
	logger   *zap.Logger
}

// NewServer creates a Server. A nil logger is replaced by a no-op.
func NewServer(sessions Sessions, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{sessions: sessions, logger: logger.Named("transport")}
}

// ProcessTurn decodes a TurnRequest and returns the TurnOutcome.
func (s *Server) ProcessTurn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req TurnRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	out, err := s.sessions.ProcessTurn(ctx, req.SessionID, req.Turn)
	if err != nil {
		return nil, s.toStatus("process turn", req.SessionID, err)
	}
	resp, err := toStruct(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// GetState returns a session's active version.
func (s *Server) GetState(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req StateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	loaded, err := s.sessions.GetState(ctx, req.SessionID)
	if err != nil {
		return nil, s.toStatus("get state", req.SessionID, err)
	}
	resp, err := toStruct(StateView{
		SessionID: loaded.SessionID,
		VersionID: loaded.VersionID,
		State:     loaded.State,
		Memory:    loaded.Memory,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func (s *Server) toStatus(op, sessionID string, err error) error {
	switch {
	case errors.Is(err, session.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, state.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, state.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error(op+" failed", zap.String("session_id", sessionID), zap.Error(err))
	return status.Error(codes.Internal, fmt.Sprintf("%s: %v", op, err))
}

// #endregion server

// #region serve

// LoggingInterceptor logs every unary call with its code and latency.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)))
		return resp, err
	}
}

// NewGRPCServer builds a grpc.Server with the Arbiter service registered.
func NewGRPCServer(sessions Sessions, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor(logger.Named("rpc"))))
	gs := grpc.NewServer(opts...)
	RegisterArbiterServer(gs, NewServer(sessions, logger))
	return gs
}

// Serve runs gs on lis until ctx is done, then stops gracefully. In-flight
// calls get grace to finish before the server is stopped hard; zero waits
// indefinitely.
func Serve(ctx context.Context, gs *grpc.Server, lis net.Listener, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-stopped:
		case <-timer.C:
			gs.Stop()
			<-stopped
		}
	} else {
		<-stopped
	}
	<-errCh
	return nil
}

// #endregion serve
