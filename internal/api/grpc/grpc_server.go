package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/olyamironova/matching-engine/internal/api/dto"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/market"
	"github.com/olyamironova/matching-engine/internal/marketdata"
)

// ParticipantMetadata carries the caller's participant id, like the
// X-Participant-ID header over HTTP.
const ParticipantMetadata = "x-participant-id"

type Service interface {
	Submit(ctx context.Context, req domain.ParticipantRequest) (domain.ParticipantResponse, error)
	Cancel(ctx context.Context, pid domain.ParticipantID, symbol domain.SymbolID, poid domain.OrderID) (domain.ParticipantResponse, error)
	Depth(ctx context.Context, symbol domain.SymbolID, n int) (*domain.BookSnapshot, error)
}

// GRPCServer implements MatchingEngineServer.
//
//	SubmitOrder      {symbol, order_id, side, price, quantity} -> ack
//	CancelOrder      {symbol, order_id} -> ack
//	GetBook          {symbol, depth?} -> book
//	StreamMarketData {symbol} -> stream of market updates
//
// Acks, books and updates have the same fields as their JSON forms.
type GRPCServer struct {
	svc     Service
	markets *market.Markets
	hub     *marketdata.Hub
	log     *zap.Logger
}

var _ MatchingEngineServer = (*GRPCServer)(nil)

func NewGRPCServer(svc Service, markets *market.Markets, hub *marketdata.Hub, log *zap.Logger) *GRPCServer {
	return &GRPCServer{svc: svc, markets: markets, hub: hub, log: log.Named("grpc")}
}

// NewServer builds a grpc.Server with the service and a logging interceptor
// registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.logUnary))
	srv := grpc.NewServer(opts...)
	Register(srv, s)
	return srv
}

// Serve listens on addr until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc: listen %s: %w", addr, err)
	}
	srv := s.NewServer()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	return srv.Serve(lis)
}

func (s *GRPCServer) SubmitOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	pid, err := participant(ctx)
	if err != nil {
		return nil, err
	}
	poid, err := uintField(in, "order_id")
	if err != nil {
		return nil, err
	}
	qty, err := uintField(in, "quantity")
	if err != nil {
		return nil, err
	}
	if qty > math.MaxUint32 {
		return nil, status.Error(codes.InvalidArgument, "quantity out of range")
	}
	price, err := decimal.NewFromString(stringField(in, "price"))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid price: %v", err)
	}
	order := dto.SubmitOrderRequest{
		Symbol:   stringField(in, "symbol"),
		OrderID:  &poid,
		Side:     stringField(in, "side"),
		Price:    price,
		Quantity: uint32(qty),
	}
	req, err := order.ToRequest(s.markets, pid)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := s.svc.Submit(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(dto.NewAck(s.markets, resp))
}

func (s *GRPCServer) CancelOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	pid, err := participant(ctx)
	if err != nil {
		return nil, err
	}
	symbol, err := s.symbol(in)
	if err != nil {
		return nil, err
	}
	poid, err := uintField(in, "order_id")
	if err != nil {
		return nil, err
	}
	resp, err := s.svc.Cancel(ctx, pid, symbol, domain.OrderID(poid))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(dto.NewAck(s.markets, resp))
}

func (s *GRPCServer) GetBook(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	symbol, err := s.symbol(in)
	if err != nil {
		return nil, err
	}
	depth := 0
	if _, ok := in.GetFields()["depth"]; ok {
		n, err := uintField(in, "depth")
		if err != nil {
			return nil, err
		}
		depth = int(n)
	}
	snap, err := s.svc.Depth(ctx, symbol, depth)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(dto.NewBook(s.markets, snap))
}

func (s *GRPCServer) StreamMarketData(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	symbol, err := s.symbol(in)
	if err != nil {
		return err
	}
	sub := s.hub.Subscribe(256)
	sub.Watch(symbol)
	defer sub.Close()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			msg, err := toStruct(dto.NewMarketUpdate(s.markets, ev.Seq, ev.Update, ev.Time))
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func (s *GRPCServer) symbol(in *structpb.Struct) (domain.SymbolID, error) {
	name := stringField(in, "symbol")
	id, ok := s.markets.Lookup(name)
	if !ok {
		return 0, status.Errorf(codes.NotFound, "unknown symbol %q", name)
	}
	return id, nil
}

func (s *GRPCServer) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Info("grpc_request",
		zap.String("method", info.FullMethod),
		zap.String("code", status.Code(err).String()),
		zap.Duration("latency", time.Since(start)))
	return resp, err
}

func participant(ctx context.Context) (domain.ParticipantID, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	vals := md.Get(ParticipantMetadata)
	if len(vals) == 0 {
		return 0, status.Error(codes.Unauthenticated, ParticipantMetadata+" metadata required")
	}
	id, err := strconv.ParseUint(vals[0], 10, 32)
	if err != nil || domain.ParticipantID(id) == domain.InvalidParticipantID {
		return 0, status.Errorf(codes.InvalidArgument, "invalid %s", ParticipantMetadata)
	}
	return domain.ParticipantID(id), nil
}

func stringField(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

// uintField accepts a whole number or its decimal string form. Numbers
// above 2^53 must be sent as strings.
func uintField(in *structpb.Struct, name string) (uint64, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f > 1<<53 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be a whole number", name)
		}
		return uint64(f), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s: %v", name, err)
		}
		return n, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrUnknownSymbol):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrEngineStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Errorf(codes.Internal, "%v", err)
}
