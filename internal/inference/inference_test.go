package inference

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// #region helpers

type inferFunc func(ctx context.Context, text string) ([]signals.Hint, error)

func (f inferFunc) Infer(ctx context.Context, text string) ([]signals.Hint, error) {
	return f(ctx, text)
}

// startServer serves inf on an in-memory listener and returns a connected client.
func startServer(t *testing.T, inf signals.Inferrer, timeout time.Duration) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewServer(inf).Register(gs)
	go func() { _ = gs.Serve(lis) }()

	client, err := NewClient("passthrough:///bufnet", timeout,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
		gs.Stop()
	})
	return client
}

// #endregion helpers

// #region round-trip

func TestClient_RoundTripLexicon(t *testing.T) {
	client := startServer(t, signals.NewLexicon(), time.Second)

	hints, err := client.Infer(context.Background(), "Feeling exhausted and distracted today")
	require.NoError(t, err)

	want, err := signals.NewLexicon().Infer(context.Background(), "Feeling exhausted and distracted today")
	require.NoError(t, err)
	assert.ElementsMatch(t, want, hints)
}

func TestClient_NoHints(t *testing.T) {
	client := startServer(t, signals.NewLexicon(), time.Second)

	hints, err := client.Infer(context.Background(), "the weather report")
	require.NoError(t, err)
	assert.Empty(t, hints)
}

func TestClient_FeedsProducer(t *testing.T) {
	client := startServer(t, inferFunc(func(context.Context, string) ([]signals.Hint, error) {
		return []signals.Hint{{Dimension: signals.Mood, Value: -0.4, Confidence: 0.95}}, nil
	}), time.Second)

	p := signals.NewProducer(client, signals.NewLexicon(), signals.DefaultProducerConfig())
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	recs, err := p.FromText(context.Background(), "anything", at)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, signals.SourceInferred, recs[0].Source)
	assert.InDelta(t, 0.9, recs[0].Confidence, 1e-9, "remote confidence is capped by the producer")
}

// #endregion round-trip

// #region errors

func TestServer_RejectsEmptyText(t *testing.T) {
	client := startServer(t, signals.NewLexicon(), time.Second)

	_, err := client.Infer(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Unwrap(err)))
}

func TestServer_InferrerFailure(t *testing.T) {
	client := startServer(t, inferFunc(func(context.Context, string) ([]signals.Hint, error) {
		return nil, errors.New("model offline")
	}), time.Second)

	_, err := client.Infer(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))
	assert.Contains(t, err.Error(), "model offline")
}

func TestClient_Timeout(t *testing.T) {
	client := startServer(t, inferFunc(func(ctx context.Context, _ string) ([]signals.Hint, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 50*time.Millisecond)

	_, err := client.Infer(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, codes.DeadlineExceeded, status.Code(errors.Unwrap(err)))
}

func TestProducer_FallsBackWhenServerDown(t *testing.T) {
	client, err := NewClient("passthrough:///127.0.0.1:1", 200*time.Millisecond)
	require.NoError(t, err)
	defer client.Close()

	p := signals.NewProducer(client, signals.NewLexicon(), signals.DefaultProducerConfig())
	recs, err := p.FromText(context.Background(), "so tired", time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, signals.Energy, recs[0].Dimension)
}

// #endregion errors

// #region decoding

func TestDecodeHints_DropsMalformed(t *testing.T) {
	resp, err := structpb.NewStruct(map[string]interface{}{
		"hints": []interface{}{
			map[string]interface{}{"dimension": "mood", "value": 0.3, "confidence": 0.5},
			map[string]interface{}{"dimension": "appetite", "value": 0.3, "confidence": 0.5},
			map[string]interface{}{"dimension": "focus", "value": "high", "confidence": 0.5},
			"junk",
		},
	})
	require.NoError(t, err)

	hints, err := decodeHints(resp)
	require.NoError(t, err)
	assert.Equal(t, []signals.Hint{{Dimension: signals.Mood, Value: 0.3, Confidence: 0.5}}, hints)
}

func TestDecodeHints_MissingField(t *testing.T) {
	_, err := decodeHints(&structpb.Struct{})
	assert.Error(t, err)
}

// #endregion decoding
