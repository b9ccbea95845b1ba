package xgrpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// skippedValue replaces values of fields that must not be logged.
const skippedValue = "<skipped>"

// skipLoggingFields are field names, or struct keys, whose values are never
// logged: raw packet payloads.
var skipLoggingFields = map[string]struct{}{
	"data": {},
}

// ProtoLogValue is implemented by requests that provide their own log
// representation instead of the reflected one.
type ProtoLogValue interface {
	AsLogValue() any
}

// AccessLogInterceptor returns a gRPC unary server interceptor that logs
// requests and responses.
//
// The interceptor logs:
// - Debug: method entry with sanitized request
// - Info: successful completion with duration and status
// - Error: failed calls with duration, status and error message
func AccessLogInterceptor(log *zap.SugaredLogger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		now := time.Now()

		if log.Level().Enabled(zap.DebugLevel) {
			log.Debugw("started gRPC execution",
				zap.String("method", info.FullMethod),
				zap.Any("request", requestLogValue(req)),
			)
		}

		resp, err := handler(ctx, req)
		logCompletion(log, info.FullMethod, time.Since(now), err)

		return resp, err
	}
}

// StreamAccessLogInterceptor returns a gRPC stream server interceptor that
// logs stream lifetime.
func StreamAccessLogInterceptor(log *zap.SugaredLogger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		now := time.Now()

		log.Debugw("started gRPC stream", zap.String("method", info.FullMethod))
		err := handler(srv, stream)
		logCompletion(log, info.FullMethod, time.Since(now), err)

		return err
	}
}

func logCompletion(log *zap.SugaredLogger, method string, duration time.Duration, err error) {
	status, _ := status.FromError(err)

	if err != nil {
		log.Errorw("failed to execute gRPC",
			zap.String("method", method),
			zap.String("status", status.Code().String()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	} else {
		log.Infow("completed gRPC execution",
			zap.String("method", method),
			zap.String("status", status.Code().String()),
			zap.Duration("duration", duration),
		)
	}
}

func requestLogValue(req any) any {
	switch req := req.(type) {
	case ProtoLogValue:
		return req.AsLogValue()
	case proto.Message:
		return sanitizeMessage(req.ProtoReflect())
	default:
		return nil
	}
}

// sanitizeMessage creates a sanitized copy of the proto message for logging.
// Fields listed in skipLoggingFields have their values replaced with
// "<skipped>", including keys of map fields, which covers
// google.protobuf.Struct payloads.
func sanitizeMessage(msg protoreflect.Message) map[string]any {
	result := map[string]any{}

	msg.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		fieldName := string(fd.Name())

		if shouldSkipLogging(fieldName) {
			result[fieldName] = skippedValue
			return true
		}

		// Handle map fields, keyed by strings for well-known types.
		if fd.IsMap() {
			mapResult := map[string]any{}
			v.Map().Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
				key := k.String()
				switch {
				case shouldSkipLogging(key):
					mapResult[key] = skippedValue
				case fd.MapValue().Kind() == protoreflect.MessageKind:
					mapResult[key] = sanitizeMessage(v.Message())
				default:
					mapResult[key] = v.Interface()
				}
				return true
			})
			result[fieldName] = mapResult
			return true
		}

		// Handle repeated message fields.
		if fd.IsList() && fd.Kind() == protoreflect.MessageKind {
			list := v.List()
			items := make([]any, list.Len())
			for i := 0; i < list.Len(); i++ {
				items[i] = sanitizeMessage(list.Get(i).Message())
			}
			result[fieldName] = items
			return true
		}

		// Handle nested messages recursively.
		if fd.Kind() == protoreflect.MessageKind && !fd.IsList() {
			if nested := v.Message(); nested.IsValid() {
				result[fieldName] = sanitizeMessage(nested)
			}
			return true
		}

		// For other fields, use the interface value.
		result[fieldName] = v.Interface()
		return true
	})

	return result
}

// shouldSkipLogging checks whether values of the field must not be logged.
func shouldSkipLogging(name string) bool {
	_, ok := skipLoggingFields[name]
	return ok
}
