package chart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	chartServiceName    = "kundali.v1.ChartService"
	computeChartMethod  = "/kundali.v1.ChartService/ComputeChart"
	defaultCallTimeout  = 30 * time.Second
	defaultConnectDelay = 5 * time.Second
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GrpcConfig holds configuration for the chart sidecar client.
type GrpcConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// GrpcCalculator calls the chart calculator sidecar. Requests and responses
// are google.protobuf.Struct messages so no generated stubs are needed.
type GrpcCalculator struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewGrpcCalculator dials the sidecar and waits until the connection is
// ready, failing fast on a bad address.
func NewGrpcCalculator(cfg GrpcConfig, logger *slog.Logger) (*GrpcCalculator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectDelay
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = 2 * time.Minute
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = 10 * time.Second
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chart service at %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("chart service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to chart service", "address", cfg.Address)
	return NewGrpcCalculatorWithConn(conn, cfg.RequestTimeout, logger), nil
}

// NewGrpcCalculatorWithConn wraps an existing connection.
func NewGrpcCalculatorWithConn(conn *grpc.ClientConn, requestTimeout time.Duration, logger *slog.Logger) *GrpcCalculator {
	if logger == nil {
		logger = slog.Default()
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultCallTimeout
	}
	return &GrpcCalculator{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		timeout: requestTimeout,
		logger:  logger.With("component", "chart_grpc"),
	}
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Calculate implements Calculator.
func (g *GrpcCalculator) Calculate(ctx context.Context, req Request) (*domain.Chart, error) {
	in, err := structpb.NewStruct(map[string]any{
		"name":         req.Name,
		"birth_date":   req.BirthDate,
		"birth_time":   req.BirthTime,
		"birth_place":  req.BirthPlace,
		"year":         req.Year,
		"month":        req.Month,
		"day":          req.Day,
		"hour":         req.Hour,
		"minute":       req.Minute,
		"latitude":     req.Latitude,
		"longitude":    req.Longitude,
		"ayanamsa":     req.Ayanamsa,
		"house_system": req.HouseSystem,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chart request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out := &structpb.Struct{}
	if err := g.conn.Invoke(callCtx, computeChartMethod, in, out); err != nil {
		return nil, g.classify(err)
	}

	raw, err := protojson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode chart response: %w", err)
	}
	var c domain.Chart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode chart response: %w", err)
	}
	return &c, nil
}

func (g *GrpcCalculator) classify(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", domain.ErrChartUnavailable, err)
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		return &domain.InputError{Field: "birth_details", Reason: st.Message(), Err: err}
	case codes.Canceled:
		return err
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w: %s", domain.ErrChartUnavailable, context.DeadlineExceeded, st.Message())
	default:
		g.logger.Warn("chart service call failed", "code", st.Code().String(), "error", st.Message())
		return fmt.Errorf("%w: %s: %s", domain.ErrChartUnavailable, st.Code(), st.Message())
	}
}

// Health reports whether the sidecar is serving.
func (g *GrpcCalculator) Health(ctx context.Context) error {
	resp, err := g.health.Check(ctx, &healthpb.HealthCheckRequest{Service: chartServiceName})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("chart service status %s", resp.GetStatus())
	}
	return nil
}

// Close closes the gRPC connection.
func (g *GrpcCalculator) Close() {
	if g.conn != nil {
		if err := g.conn.Close(); err != nil {
			g.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}
