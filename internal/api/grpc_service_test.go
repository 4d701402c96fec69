package api

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"tablebook/internal/config"
	"tablebook/internal/repository"
	"tablebook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func newBufconnClient(t *testing.T) (*grpc.ClientConn, *Authenticator) {
	t.Helper()
	logger := zerolog.New(io.Discard)

	svc := service.NewBookingService(repository.NewMemorySlotStore(), nil, nil, service.RetryPolicy{}, &logger)
	deps := Deps{Service: svc, Auth: NewAuthenticator(testSecret)}

	lis := bufconn.Listen(1 << 20)
	srv, err := newGRPCServer(&config.APIConfig{}, deps, &logger, lis)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, deps.Auth
}

func authed(t *testing.T, auth *Authenticator, email string) context.Context {
	t.Helper()
	token, err := auth.Issue(User{Email: email}, time.Hour)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func bookingStruct(t *testing.T, intervals ...any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(map[string]any{
		"data": map[string]any{"1": map[string]any{"2099-01-01": intervals}},
	})
	require.NoError(t, err)
	return s
}

const grpcMethodPrefix = "/" + bookingServiceName + "/"

func TestGRPCBookingFlow(t *testing.T) {
	conn, auth := newBufconnClient(t)
	ctxA := authed(t, auth, userA)
	ctxB := authed(t, auth, userB)

	view := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctxA, grpcMethodPrefix+"CreateBooking", bookingStruct(t, 4, 5, 6), view))
	assert.Equal(t, userA, view.AsMap()["1"].(map[string]any)["2099-01-01"].(map[string]any)["5"])

	err := conn.Invoke(ctxB, grpcMethodPrefix+"CreateBooking", bookingStruct(t, 5), &structpb.Struct{})
	st := status.Convert(err)
	require.Equal(t, codes.Aborted, st.Code())
	assert.Equal(t, service.ConflictMessage, st.Message())
	require.Len(t, st.Details(), 1)
	detail, ok := st.Details()[0].(*structpb.Struct)
	require.True(t, ok)
	assert.Equal(t, true, detail.AsMap()["1"].(map[string]any)["2099-01-01"].(map[string]any)["5"])

	shared := &structpb.Struct{}
	require.NoError(t, conn.Invoke(ctxB, grpcMethodPrefix+"SharedView", &emptypb.Empty{}, shared))
	assert.Equal(t, true, shared.AsMap()["1"].(map[string]any)["2099-01-01"].(map[string]any)["4"])

	itinerary := &structpb.ListValue{}
	require.NoError(t, conn.Invoke(ctxA, grpcMethodPrefix+"Itinerary", &emptypb.Empty{}, itinerary))
	require.Len(t, itinerary.AsSlice(), 1)
	assert.Equal(t, map[string]any{
		"start":       "2099-01-01T01:00:00Z",
		"end":         "2099-01-01T01:45:00Z",
		"tableNumber": "1",
	}, itinerary.AsSlice()[0])
}

func TestGRPCErrors(t *testing.T) {
	conn, auth := newBufconnClient(t)

	err := conn.Invoke(context.Background(), grpcMethodPrefix+"SharedView", &emptypb.Empty{}, &structpb.Struct{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	err = conn.Invoke(authed(t, auth, userA), grpcMethodPrefix+"CreateBooking", bookingStruct(t, 96), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = conn.Invoke(authed(t, auth, userA), grpcMethodPrefix+"CreateBooking", bookingStruct(t, "four"), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCHealth(t *testing.T) {
	conn, _ := newBufconnClient(t)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: bookingServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
