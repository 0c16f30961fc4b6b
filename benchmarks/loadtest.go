// Package benchmarks load-tests sessions against a server over the
// in-memory transport.
package benchmarks

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/session-sdk-go/pkg/client"
	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
	"github.com/ajitpratap0/session-sdk-go/pkg/server"
	"github.com/ajitpratap0/session-sdk-go/pkg/transport/memory"
)

// Operation names reported in LoadTestResult.OperationMetrics.
const (
	OpEcho       = "echo"
	OpPing       = "ping"
	OpServerInfo = "serverInfo"
	OpBroadcast  = "broadcast"
)

const loadTestAddress = "inproc://loadtest"

// LoadTestConfig configures load testing parameters
type LoadTestConfig struct {
	// Number of concurrent sessions
	Clients int

	// Number of operations per session, 0 runs until Duration expires
	RequestsPerClient int

	// Operations per second across all sessions, 0 is unlimited
	RateLimit int

	// Test duration, 0 runs until every session completes its requests
	Duration time.Duration

	// Ramp up period over which sessions are started
	RampUpTime time.Duration

	OperationMix OperationMix

	// Interval between progress log lines, 0 disables them
	ReportInterval time.Duration

	Logger logging.Logger
}

// OperationMix defines the relative weight of each operation.
type OperationMix struct {
	Echo       float64
	Ping       float64
	ServerInfo float64
	Broadcast  float64
}

func (m OperationMix) total() float64 { return m.Echo + m.Ping + m.ServerInfo + m.Broadcast }

// LoadTestResult contains the results of a load test
type LoadTestResult struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TotalDuration      time.Duration

	MinLatency time.Duration
	MaxLatency time.Duration
	AvgLatency time.Duration
	P50Latency time.Duration
	P90Latency time.Duration
	P95Latency time.Duration
	P99Latency time.Duration

	RequestsPerSecond float64

	// ErrorCounts is keyed by error code.
	ErrorCounts map[string]int64

	OperationMetrics map[string]*OperationMetrics
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count      int64
	Successful int64
	Failed     int64
	TotalTime  time.Duration
	MinTime    time.Duration
	MaxTime    time.Duration

	mu        sync.Mutex
	latencies []time.Duration
}

// LoadTester drives a set of sessions against an in-process server.
type LoadTester struct {
	config LoadTestConfig
	logger logging.Logger

	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64

	mu         sync.Mutex
	errorCount map[string]int64
	operations map[string]*OperationMetrics
}

// NewLoadTester creates a new load tester
func NewLoadTester(config LoadTestConfig) *LoadTester {
	if config.Clients <= 0 {
		config.Clients = 1
	}
	if config.OperationMix.total() == 0 {
		config.OperationMix = OperationMix{Echo: 60, Ping: 20, ServerInfo: 15, Broadcast: 5}
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.New(io.Discard, logging.NewTextFormatter())
	}
	return &LoadTester{
		config:     config,
		logger:     logging.Component(logger, "loadtest"),
		errorCount: make(map[string]int64),
		operations: make(map[string]*OperationMetrics),
	}
}

// Run starts a server, connects the sessions and executes the workload.
func (lt *LoadTester) Run(ctx context.Context) (*LoadTestResult, error) {
	hub := memory.NewHub()
	srv := server.New(hub.Server(), server.WithServerID("loadtest"), server.WithLogger(logging.NewNop()))
	if err := srv.HandleRequest(OpEcho, func(_ context.Context, payload any, _ *protocol.Context, _ string) (any, error) {
		return payload, nil
	}); err != nil {
		return nil, err
	}
	if err := srv.Start(ctx, loadTestAddress); err != nil {
		return nil, fmt.Errorf("start server: %w", err)
	}
	defer srv.Stop(context.Background())

	sessions := make([]*client.Session, lt.config.Clients)
	for i := range sessions {
		s := client.New(hub.Client(),
			client.WithClientID(fmt.Sprintf("load-test-client-%d", i)),
			client.WithAutoReconnect(false),
			client.WithLogger(logging.NewNop()),
		)
		if err := s.Connect(ctx, loadTestAddress); err != nil {
			return nil, fmt.Errorf("connect client %d: %w", i, err)
		}
		defer s.Disconnect(context.Background())
		sessions[i] = s
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if lt.config.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, lt.config.Duration)
	}
	defer cancel()

	stopReport := lt.reportProgress(runCtx)
	defer stopReport()

	limiter := lt.rateLimiter(runCtx)
	start := time.Now()
	var g errgroup.Group
	for i, s := range sessions {
		s := s
		g.Go(func() error {
			lt.runClient(runCtx, s, limiter)
			return nil
		})
		if lt.config.RampUpTime > 0 && i < len(sessions)-1 {
			select {
			case <-time.After(lt.config.RampUpTime / time.Duration(len(sessions)-1)):
			case <-runCtx.Done():
			}
		}
	}
	_ = g.Wait()

	return lt.results(time.Since(start)), nil
}

func (lt *LoadTester) runClient(ctx context.Context, s *client.Session, limiter <-chan struct{}) {
	for n := 0; lt.config.RequestsPerClient <= 0 || n < lt.config.RequestsPerClient; n++ {
		if limiter != nil {
			select {
			case <-limiter:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		lt.execute(ctx, s, lt.selectOperation())
	}
}

func (lt *LoadTester) selectOperation() string {
	mix := lt.config.OperationMix
	r := rand.Float64() * mix.total()
	switch {
	case r < mix.Echo:
		return OpEcho
	case r < mix.Echo+mix.Ping:
		return OpPing
	case r < mix.Echo+mix.Ping+mix.ServerInfo:
		return OpServerInfo
	default:
		return OpBroadcast
	}
}

func (lt *LoadTester) execute(ctx context.Context, s *client.Session, op string) {
	start := time.Now()
	var err error
	switch op {
	case OpEcho:
		_, err = s.Request(ctx, OpEcho, map[string]any{"n": start.UnixNano()})
	case OpPing:
		_, err = s.Ping(ctx, nil)
	case OpServerInfo:
		_, err = s.GetServerInfo(ctx)
	case OpBroadcast:
		_, err = s.Request(ctx, protocol.TypeBroadcast, protocol.BroadcastParams{Event: "load.tick"})
	}
	if err != nil && ctx.Err() != nil {
		// Cut off by the run deadline.
		return
	}

	lt.totalRequests.Add(1)
	lt.operation(op).record(time.Since(start), err)
	if err != nil {
		lt.failedRequests.Add(1)
		lt.mu.Lock()
		lt.errorCount[sdkerrors.Wrap(err).Code()]++
		lt.mu.Unlock()
		return
	}
	lt.successfulRequests.Add(1)
}

func (lt *LoadTester) operation(name string) *OperationMetrics {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	m, ok := lt.operations[name]
	if !ok {
		m = &OperationMetrics{}
		lt.operations[name] = m
	}
	return m
}

func (m *OperationMetrics) record(d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Count++
	m.TotalTime += d
	if err != nil {
		m.Failed++
	} else {
		m.Successful++
	}
	if m.MinTime == 0 || d < m.MinTime {
		m.MinTime = d
	}
	if d > m.MaxTime {
		m.MaxTime = d
	}
	m.latencies = append(m.latencies, d)
}

func (lt *LoadTester) rateLimiter(ctx context.Context) <-chan struct{} {
	if lt.config.RateLimit <= 0 {
		return nil
	}
	ch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(lt.config.RateLimit))
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case ch <- struct{}{}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (lt *LoadTester) reportProgress(ctx context.Context) func() {
	if lt.config.ReportInterval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(lt.config.ReportInterval)
		defer ticker.Stop()
		last, lastAt := int64(0), time.Now()
		for {
			select {
			case now := <-ticker.C:
				total := lt.totalRequests.Load()
				lt.logger.Info("progress",
					logging.Any("requests", total),
					logging.Any("rps", float64(total-last)/now.Sub(lastAt).Seconds()),
					logging.Any("failed", lt.failedRequests.Load()),
				)
				last, lastAt = total, now
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (lt *LoadTester) results(elapsed time.Duration) *LoadTestResult {
	result := &LoadTestResult{
		TotalRequests:      lt.totalRequests.Load(),
		SuccessfulRequests: lt.successfulRequests.Load(),
		FailedRequests:     lt.failedRequests.Load(),
		TotalDuration:      elapsed,
		ErrorCounts:        make(map[string]int64),
		OperationMetrics:   make(map[string]*OperationMetrics),
	}
	if elapsed > 0 {
		result.RequestsPerSecond = float64(result.TotalRequests) / elapsed.Seconds()
	}

	lt.mu.Lock()
	for code, n := range lt.errorCount {
		result.ErrorCounts[code] = n
	}
	var all []time.Duration
	for name, m := range lt.operations {
		result.OperationMetrics[name] = m
		m.mu.Lock()
		all = append(all, m.latencies...)
		m.mu.Unlock()
	}
	lt.mu.Unlock()

	if len(all) == 0 {
		return result
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	var sum time.Duration
	for _, d := range all {
		sum += d
	}
	result.MinLatency = all[0]
	result.MaxLatency = all[len(all)-1]
	result.AvgLatency = sum / time.Duration(len(all))
	result.P50Latency = percentile(all, 50)
	result.P90Latency = percentile(all, 90)
	result.P95Latency = percentile(all, 95)
	result.P99Latency = percentile(all, 99)
	return result
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	i := int(math.Ceil(float64(len(sorted))*p/100.0)) - 1
	if i < 0 {
		i = 0
	}
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// Print writes a human readable summary to w.
func (r *LoadTestResult) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Load Test Results ===")
	fmt.Fprintf(w, "Total Duration: %s\n", r.TotalDuration)
	fmt.Fprintf(w, "Total Requests: %d (%d ok, %d failed)\n", r.TotalRequests, r.SuccessfulRequests, r.FailedRequests)
	fmt.Fprintf(w, "Requests/sec: %.2f\n", r.RequestsPerSecond)
	fmt.Fprintf(w, "Latency: min %s avg %s p50 %s p90 %s p95 %s p99 %s max %s\n",
		r.MinLatency, r.AvgLatency, r.P50Latency, r.P90Latency, r.P95Latency, r.P99Latency, r.MaxLatency)

	names := make([]string, 0, len(r.OperationMetrics))
	for name := range r.OperationMetrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := r.OperationMetrics[name]
		fmt.Fprintf(w, "  %s: count %d, ok %d, failed %d, max %s\n", name, m.Count, m.Successful, m.Failed, m.MaxTime)
	}
	for code, n := range r.ErrorCounts {
		fmt.Fprintf(w, "  error %s: %d\n", code, n)
	}
}
