package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tablebook/internal/service"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const bookingServiceName = "tablebook.booking.v1.BookingService"

// BookingServiceServer is the gRPC surface of the booking engine. Payloads
// use the same JSON shapes as the HTTP API, carried in structpb messages.
type BookingServiceServer interface {
	SharedView(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CreateBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Itinerary(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SharedView", Handler: sharedViewHandler},
		{MethodName: "CreateBooking", Handler: createBookingHandler},
		{MethodName: "Itinerary", Handler: itineraryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tablebook/booking/v1/booking.proto",
}

func sharedViewHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingServiceServer).SharedView(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + bookingServiceName + "/SharedView"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(BookingServiceServer).SharedView(ctx, req.(*emptypb.Empty))
	})
}

func createBookingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingServiceServer).CreateBooking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + bookingServiceName + "/CreateBooking"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(BookingServiceServer).CreateBooking(ctx, req.(*structpb.Struct))
	})
}

func itineraryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingServiceServer).Itinerary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + bookingServiceName + "/Itinerary"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(BookingServiceServer).Itinerary(ctx, req.(*emptypb.Empty))
	})
}

// BookingGRPCService adapts the booking service to BookingServiceServer.
type BookingGRPCService struct {
	deps Deps
	now  func() time.Time
	log  zerolog.Logger
}

func NewBookingGRPCService(deps Deps, logger *zerolog.Logger) *BookingGRPCService {
	s := &BookingGRPCService{deps: deps, now: time.Now, log: zerolog.Nop()}
	if logger != nil {
		s.log = logger.With().Str("component", "grpc").Logger()
	}
	return s
}

func (s *BookingGRPCService) SharedView(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, errMissingToken.Error())
	}
	return toStruct(s.deps.Service.SharedView(ctx, user.Email))
}

// CreateBooking takes {"data": {table: {date: [intervals]}}} and returns the
// shared view. A conflict is reported as Aborted with the view attached as
// a status detail.
func (s *BookingGRPCService) CreateBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, errMissingToken.Error())
	}

	var body bookingBody
	if err := fromStruct(in, &body); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid booking payload")
	}
	req, verrs := ValidateBooking(body.Data, s.now())
	if len(verrs) > 0 {
		return nil, status.Error(codes.InvalidArgument, verrs.Error())
	}

	if !allowBooking(ctx, s.deps, user.Email, &s.log) {
		return nil, status.Error(codes.ResourceExhausted, "too many booking attempts")
	}

	view, err := s.deps.Service.CreateBooking(ctx, req, user.Email, calendarFor(s.deps, user, &s.log))
	if err != nil {
		var conflict *service.ConflictError
		if errors.As(err, &conflict) {
			st := status.New(codes.Aborted, service.ConflictMessage)
			if detail, derr := toStruct(conflict.View); derr == nil {
				if withDetail, werr := st.WithDetails(detail); werr == nil {
					st = withDetail
				}
			}
			return nil, st.Err()
		}
		s.log.Error().Err(err).Str("holder", user.Email).Msg("Booking failed")
		return nil, status.Error(codes.Internal, internalErrorMessage)
	}
	return toStruct(view)
}

func (s *BookingGRPCService) Itinerary(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, errMissingToken.Error())
	}

	raw, err := json.Marshal(s.deps.Service.Itinerary(ctx, user.Email))
	if err != nil {
		return nil, status.Error(codes.Internal, internalErrorMessage)
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, status.Error(codes.Internal, internalErrorMessage)
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, status.Error(codes.Internal, internalErrorMessage)
	}
	return list, nil
}

// toStruct converts v through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	out := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if string(raw) == "null" {
		return out, nil
	}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	raw, err := in.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
