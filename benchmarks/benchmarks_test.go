package benchmarks

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/session-sdk-go/pkg/client"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/middleware"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/session-sdk-go/pkg/server"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport/memory"
)

func TestLoadTester(t *testing.T) {
	lt := NewLoadTester(LoadTestConfig{
		Clients:           4,
		RequestsPerClient: 25,
		OperationMix:      OperationMix{Echo: 1, Ping: 1, ServerInfo: 1},
	})
	result, err := lt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(100), result.TotalRequests)
	assert.Equal(t, int64(100), result.SuccessfulRequests)
	assert.Empty(t, result.ErrorCounts)
	assert.LessOrEqual(t, result.P50Latency, result.P99Latency)
	assert.LessOrEqual(t, result.MinLatency, result.MaxLatency)

	var out bytes.Buffer
	result.Print(&out)
	assert.Contains(t, out.String(), "Total Requests: 100")
}

func TestLoadTesterDuration(t *testing.T) {
	lt := NewLoadTester(LoadTestConfig{
		Clients:   2,
		Duration:  100 * time.Millisecond,
		RateLimit: 200,
	})
	start := time.Now()
	result, err := lt.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Positive(t, result.TotalRequests)
	assert.Zero(t, result.FailedRequests)
}

func setup(b *testing.B, clients int) (*server.Server, []*client.Session) {
	b.Helper()
	ctx := context.Background()
	hub := memory.NewHub(memory.WithMailboxSize(4096))
	srv := server.New(hub.Server(), server.WithLogger(logging.NewNop()))
	require.NoError(b, srv.HandleRequest(OpEcho, func(_ context.Context, payload any, _ *protocol.Context, _ string) (any, error) {
		return payload, nil
	}))
	require.NoError(b, srv.Start(ctx, loadTestAddress))
	b.Cleanup(func() { _ = srv.Stop(context.Background()) })

	sessions := make([]*client.Session, clients)
	for i := range sessions {
		s := client.New(hub.Client(), client.WithClientID(fmt.Sprintf("bench-%d", i)), client.WithLogger(logging.NewNop()))
		require.NoError(b, s.Connect(ctx, loadTestAddress))
		b.Cleanup(func() { _ = s.Disconnect(context.Background()) })
		sessions[i] = s
	}
	return srv, sessions
}

func BenchmarkRequest(b *testing.B) {
	_, sessions := setup(b, 1)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sessions[0].Request(ctx, OpEcho, i); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRequestParallel(b *testing.B) {
	_, sessions := setup(b, 8)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	var next atomic.Int64
	b.RunParallel(func(pb *testing.PB) {
		s := sessions[int(next.Add(1))%len(sessions)]
		for pb.Next() {
			if _, err := s.Request(ctx, OpEcho, "x"); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkBroadcast(b *testing.B) {
	for _, n := range []int{10, 100} {
		b.Run(fmt.Sprintf("clients=%d", n), func(b *testing.B) {
			srv, _ := setup(b, n)
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				srv.Broadcast(ctx, "bench.tick", i)
			}
		})
	}
}

func BenchmarkPipeline(b *testing.B) {
	p := middleware.New(middleware.WithLogger(logging.NewNop()))
	for i := 0; i < 5; i++ {
		p.Use(func(ctx context.Context, req *protocol.Request, next middleware.RequestNext) (*protocol.Response, error) {
			return next(ctx, req)
		})
	}
	ctx := context.Background()
	handler := func(_ context.Context, req *protocol.Request) (any, error) { return req.Payload, nil }

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.ProcessRequest(ctx, protocol.NewRequest(OpEcho, i, nil), handler)
	}
}
