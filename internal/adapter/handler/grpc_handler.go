package handler

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/seckill/internal/core/domain"
	"github.com/rl1809/seckill/internal/core/service"
)

type GRPCHandler struct {
	seckill      SeckillUseCase
	useProcedure bool
	logger       zerolog.Logger
}

func NewGRPCHandler(seckill SeckillUseCase, useProcedure bool, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		seckill:      seckill,
		useProcedure: useProcedure,
		logger:       logger.With().Str("component", "grpc_handler").Logger(),
	}
}

// Expose expects {"item_id": n}.
func (h *GRPCHandler) Expose(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	itemID, err := int64Field(req, "item_id", false, 0)
	if err != nil {
		return nil, err
	}

	exposure, err := h.seckill.Expose(ctx, itemID)
	if err != nil {
		return nil, h.lookupStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"exposed": exposure.Exposed(),
		"state":   exposure.State.String(),
		"item_id": exposure.ItemID,
		"token":   exposure.Token,
		"now":     formatTime(exposure.Now),
		"start":   formatTime(exposure.Start),
		"end":     formatTime(exposure.End),
	})
}

// Execute expects {"item_id": n, "buyer_id": s, "token": s}. Purchase outcomes
// are returned as data, never as status errors.
func (h *GRPCHandler) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	itemID, err := int64Field(req, "item_id", false, 0)
	if err != nil {
		return nil, err
	}
	buyerID := strings.TrimSpace(req.GetFields()["buyer_id"].GetStringValue())
	if buyerID == "" {
		return nil, status.Error(codes.InvalidArgument, "buyer_id is required")
	}
	accessToken := req.GetFields()["token"].GetStringValue()

	result := execute(ctx, h.seckill, h.useProcedure, itemID, buyerID, accessToken)

	out := map[string]interface{}{
		"item_id":    result.ItemID,
		"state":      result.State.String(),
		"state_code": int(result.State),
		"state_info": result.State.Info(),
	}
	if result.Record != nil {
		out["record"] = recordValue(*result.Record)
	}
	return structpb.NewStruct(out)
}

// List expects {"offset": n, "limit": n}; both are optional.
func (h *GRPCHandler) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	offset, err := int64Field(req, "offset", true, defaultOffset)
	if err != nil {
		return nil, err
	}
	limit, err := int64Field(req, "limit", true, defaultLimit)
	if err != nil {
		return nil, err
	}

	items, err := h.seckill.ListItems(ctx, int(offset), int(limit))
	if err != nil {
		return nil, h.lookupStatus(err)
	}

	list := make([]interface{}, 0, len(items))
	for _, item := range items {
		list = append(list, itemValue(item))
	}
	return structpb.NewStruct(map[string]interface{}{"items": list})
}

func (h *GRPCHandler) lookupStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrItemNotFound):
		return status.Error(codes.NotFound, "item not found")
	case errors.Is(err, service.ErrInvalidPage):
		return status.Error(codes.InvalidArgument, "invalid page")
	default:
		h.logger.Error().Stack().Err(err).Msg("rpc failed")
		return status.Error(codes.Internal, "internal error")
	}
}

// int64Field accepts a whole number or its decimal string form.
func int64Field(req *structpb.Struct, key string, optional bool, def int64) (int64, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		if optional {
			return def, nil
		}
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return int64(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(kind.StringValue, 10, 64)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
		}
		return n, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
}

func itemValue(item domain.Item) map[string]interface{} {
	return map[string]interface{}{
		"id":         item.ID,
		"name":       item.Name,
		"stock":      item.Stock,
		"start_time": formatTime(item.StartTime),
		"end_time":   formatTime(item.EndTime),
		"created_at": formatTime(item.CreatedAt),
	}
}

func recordValue(record domain.PurchaseRecord) map[string]interface{} {
	return map[string]interface{}{
		"item_id":    record.ItemID,
		"buyer_id":   record.BuyerID,
		"created_at": formatTime(record.CreatedAt),
		"item":       itemValue(record.Item),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
