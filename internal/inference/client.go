package inference

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
)

// #region client-struct
// Client calls a remote inference service. It implements signals.Inferrer;
// errors make the engine fall back to the local lexicon.
type Client struct {
	conn    *grpc.ClientConn
	cc      grpc.ClientConnInterface
	timeout time.Duration
}

var _ signals.Inferrer = (*Client)(nil)
// #endregion client-struct

// #region constructor
// NewClient connects to the inference gRPC server. Each call is bounded by
// timeout when it is positive.
func NewClient(addr string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn, timeout: timeout}, nil
}

// NewClientWithConn creates a Client over an existing connection.
// Used for testing without dialing.
func NewClientWithConn(cc grpc.ClientConnInterface, timeout time.Duration) *Client {
	return &Client{cc: cc, timeout: timeout}
}

// Close shuts down the gRPC connection if the client owns one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion constructor

// #region infer
// Infer sends text to the inference service.
func (c *Client) Infer(ctx context.Context, text string) ([]signals.Hint, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := structpb.NewStruct(map[string]interface{}{"text": text})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, inferMethod, req, resp); err != nil {
		return nil, fmt.Errorf("infer rpc: %w", err)
	}
	hints, err := decodeHints(resp)
	if err != nil {
		return nil, fmt.Errorf("infer rpc: %w", err)
	}
	return hints, nil
}
// #endregion infer
