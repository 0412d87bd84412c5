package chart

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type computeFunc func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func chartServiceDesc(fn computeFunc) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: chartServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "ComputeChart",
			Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := &structpb.Struct{}
				if err := dec(in); err != nil {
					return nil, err
				}
				return fn(ctx, in)
			},
		}},
		Streams: []grpc.StreamDesc{},
	}
}

func startChartServer(t *testing.T, fn computeFunc) *GrpcCalculator {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(chartServiceDesc(fn), struct{}{})

	hs := health.NewServer()
	hs.SetServingStatus(chartServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	calc := NewGrpcCalculatorWithConn(conn, 0, testLogger())
	t.Cleanup(calc.Close)
	return calc
}

func TestGrpcCalculatorDecodesChart(t *testing.T) {
	t.Parallel()

	var got map[string]any
	calc := startChartServer(t, func(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
		got = in.AsMap()
		return structpb.NewStruct(map[string]any{
			"key_positions": map[string]any{
				"sun":        map[string]any{"sign": "Capricorn", "nakshatra": "Shravana"},
				"moon":       map[string]any{"sign": "Cancer"},
				"ascendant":  map[string]any{"sign": "Leo"},
				"lagna_lord": "Sun",
			},
			"planets": []any{
				map[string]any{"object": "Sun", "rasi": "Capricorn", "house_nr": 6, "is_retrograde": false},
			},
			"planetary_aspects": []any{
				map[string]any{"p1": "Mars", "p2": "Saturn", "aspect_type": "Trine", "aspect_deg": 120},
			},
			"vimshottari_dasa": []any{
				map[string]any{"name": "Ketu", "start": "01-01-2020", "end": "01-01-2027"},
			},
		})
	})

	c, err := calc.Calculate(context.Background(), Request{
		Year: 1990, Month: 1, Day: 15, Hour: 10, Minute: 30,
		Latitude: 19.07, Longitude: 72.87, Ayanamsa: "Lahiri", HouseSystem: "Equal",
	})
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}

	if got["year"] != float64(1990) || got["ayanamsa"] != "Lahiri" || got["house_system"] != "Equal" {
		t.Fatalf("request payload = %v", got)
	}
	if c.KeyPositions.Sun.Sign != "Capricorn" || c.KeyPositions.LagnaLord != "Sun" {
		t.Fatalf("key positions = %+v", c.KeyPositions)
	}
	if len(c.Planets) != 1 || c.Planets[0].HouseNr == nil || *c.Planets[0].HouseNr != 6 {
		t.Fatalf("planets = %+v", c.Planets)
	}
	if len(c.Aspects) != 1 || c.Aspects[0].AspectDeg != 120 {
		t.Fatalf("aspects = %+v", c.Aspects)
	}
	if len(c.VimshottariDasa) != 1 || c.VimshottariDasa[0].Name != "Ketu" {
		t.Fatalf("dasa = %+v", c.VimshottariDasa)
	}
}

func TestGrpcCalculatorErrorMapping(t *testing.T) {
	t.Parallel()

	t.Run("invalid argument", func(t *testing.T) {
		t.Parallel()
		calc := startChartServer(t, func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return nil, status.Error(codes.InvalidArgument, "latitude out of range")
		})
		_, err := calc.Calculate(context.Background(), Request{})
		var ie *domain.InputError
		if !errors.As(err, &ie) {
			t.Fatalf("Calculate() error = %v, want InputError", err)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		t.Parallel()
		calc := startChartServer(t, func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
			return nil, status.Error(codes.Internal, "ephemeris missing")
		})
		_, err := calc.Calculate(context.Background(), Request{})
		if !errors.Is(err, domain.ErrChartUnavailable) {
			t.Fatalf("Calculate() error = %v, want ErrChartUnavailable", err)
		}
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		t.Parallel()
		calc := startChartServer(t, func(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := calc.Calculate(ctx, Request{})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Calculate() error = %v, want context.DeadlineExceeded", err)
		}
		if !errors.Is(err, domain.ErrChartUnavailable) {
			t.Fatalf("Calculate() error = %v, want ErrChartUnavailable", err)
		}
	})
}

func TestGrpcCalculatorHealth(t *testing.T) {
	t.Parallel()

	calc := startChartServer(t, func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
		return &structpb.Struct{}, nil
	})
	if err := calc.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
}
