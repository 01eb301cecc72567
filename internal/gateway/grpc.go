// ABOUTME: PresenceService gRPC admin service exposing who is connected to the push channel
// ABOUTME: Hand-registered service descriptor over protobuf well-known types, plus a typed client

package gateway

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/2389/reelchat/internal/realtime"
)

// PresenceServiceName is the fully qualified gRPC service name.
const PresenceServiceName = "reelchat.v1.PresenceService"

// Full method names, as seen by interceptors.
const (
	PresenceListOnlineMethod = "/" + PresenceServiceName + "/ListOnline"
	PresenceIsOnlineMethod   = "/" + PresenceServiceName + "/IsOnline"
	PresenceStatsMethod      = "/" + PresenceServiceName + "/Stats"
	PresenceDisconnectMethod = "/" + PresenceServiceName + "/Disconnect"
)

// PresenceServer is the server API for PresenceService.
type PresenceServer interface {
	// ListOnline returns the online user IDs as a list of string values. Admin only.
	ListOnline(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	// IsOnline reports whether one user has a live connection.
	IsOnline(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	// Stats returns online_users and connections counts. Admin only.
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Disconnect closes every connection of a user and returns the count. Admin only.
	Disconnect(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
}

// presenceService implements PresenceServer over the hub's presence set.
type presenceService struct {
	hub      *realtime.Hub
	presence *realtime.Presence
	logger   *slog.Logger
}

func newPresenceService(hub *realtime.Hub, logger *slog.Logger) *presenceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &presenceService{
		hub:      hub,
		presence: hub.Presence(),
		logger:   logger.With("component", "presence-service"),
	}
}

func (s *presenceService) ListOnline(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	online := s.presence.Online()
	values := make([]*structpb.Value, 0, len(online))
	for _, id := range online {
		values = append(values, structpb.NewStringValue(id))
	}
	return &structpb.ListValue{Values: values}, nil
}

func (s *presenceService) IsOnline(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "user id is required")
	}
	return wrapperspb.Bool(s.presence.IsOnline(req.GetValue())), nil
}

func (s *presenceService) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats := s.presence.Stats()
	out, err := structpb.NewStruct(map[string]any{
		"online_users": stats.OnlineUsers,
		"connections":  stats.Connections,
	})
	if err != nil {
		s.logger.Error("failed to build stats", "error", err)
		return nil, status.Error(codes.Internal, "building stats")
	}
	return out, nil
}

func (s *presenceService) Disconnect(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "user id is required")
	}
	n := s.hub.Disconnect(req.GetValue())
	s.logger.Info("admin disconnected user", "user_id", req.GetValue(), "connections", n)
	return wrapperspb.Int64(int64(n)), nil
}

// registerPresenceService registers srv on s.
func registerPresenceService(s grpc.ServiceRegistrar, srv PresenceServer) {
	s.RegisterService(&presenceServiceDesc, srv)
}

var presenceServiceDesc = grpc.ServiceDesc{
	ServiceName: PresenceServiceName,
	HandlerType: (*PresenceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListOnline", Handler: listOnlineHandler},
		{MethodName: "IsOnline", Handler: isOnlineHandler},
		{MethodName: "Stats", Handler: statsHandler},
		{MethodName: "Disconnect", Handler: disconnectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "reelchat/v1/presence.proto",
}

func listOnlineHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceServer).ListOnline(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PresenceListOnlineMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PresenceServer).ListOnline(ctx, req.(*emptypb.Empty))
	})
}

func isOnlineHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceServer).IsOnline(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PresenceIsOnlineMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PresenceServer).IsOnline(ctx, req.(*wrapperspb.StringValue))
	})
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PresenceStatsMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PresenceServer).Stats(ctx, req.(*emptypb.Empty))
	})
}

func disconnectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PresenceServer).Disconnect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PresenceDisconnectMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PresenceServer).Disconnect(ctx, req.(*wrapperspb.StringValue))
	})
}

// PresenceClient calls PresenceService.
type PresenceClient struct {
	cc grpc.ClientConnInterface
}

// NewPresenceClient creates a client over an established connection.
func NewPresenceClient(cc grpc.ClientConnInterface) *PresenceClient {
	return &PresenceClient{cc: cc}
}

// ListOnline returns the online user IDs.
func (c *PresenceClient) ListOnline(ctx context.Context, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, PresenceListOnlineMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		ids = append(ids, v.GetStringValue())
	}
	return ids, nil
}

// IsOnline reports whether userID has a live connection.
func (c *PresenceClient) IsOnline(ctx context.Context, userID string, opts ...grpc.CallOption) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, PresenceIsOnlineMethod, wrapperspb.String(userID), out, opts...); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// Stats returns the online user and connection counts.
func (c *PresenceClient) Stats(ctx context.Context, opts ...grpc.CallOption) (realtime.Stats, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PresenceStatsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return realtime.Stats{}, err
	}
	fields := out.GetFields()
	return realtime.Stats{
		OnlineUsers: int(fields["online_users"].GetNumberValue()),
		Connections: int(fields["connections"].GetNumberValue()),
	}, nil
}

// Disconnect closes every connection of userID and returns how many there were.
func (c *PresenceClient) Disconnect(ctx context.Context, userID string, opts ...grpc.CallOption) (int, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, PresenceDisconnectMethod, wrapperspb.String(userID), out, opts...); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}
