package transport

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/continuity-arbiter/internal/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// #region client-struct
// Client wraps the gRPC connection to an Arbiter server.
type Client struct {
	conn   *grpc.ClientConn
	client ArbiterClient
}

// #endregion client-struct

// #region constructor
// NewClient connects to an Arbiter server.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{
		conn:   conn,
		client: NewArbiterClient(conn),
	}, nil
}

// NewClientWithService creates a Client with an injected service implementation.
func NewClientWithService(svc ArbiterClient) *Client {
	return &Client{client: svc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region process-turn
// ProcessTurn runs one turn remotely.
func (c *Client) ProcessTurn(ctx context.Context, sessionID string, in session.TurnInput) (session.TurnOutcome, error) {
	req, err := toStruct(TurnRequest{SessionID: sessionID, Turn: in})
	if err != nil {
		return session.TurnOutcome{}, err
	}
	resp, err := c.client.ProcessTurn(ctx, req)
	if err != nil {
		return session.TurnOutcome{}, fmt.Errorf("process turn rpc: %w", err)
	}
	var out session.TurnOutcome
	if err := fromStruct(resp, &out); err != nil {
		return session.TurnOutcome{}, err
	}
	return out, nil
}

// #endregion process-turn

// #region get-state
// GetState fetches a session's active version.
func (c *Client) GetState(ctx context.Context, sessionID string) (StateView, error) {
	req, err := toStruct(StateRequest{SessionID: sessionID})
	if err != nil {
		return StateView{}, err
	}
	resp, err := c.client.GetState(ctx, req)
	if err != nil {
		return StateView{}, fmt.Errorf("get state rpc: %w", err)
	}
	var view StateView
	if err := fromStruct(resp, &view); err != nil {
		return StateView{}, err
	}
	return view, nil
}

// #endregion get-state
