package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"agendei/internal/config"
	"agendei/internal/domain"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestAuthInterceptor(t *testing.T) {
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "valid-key", Extra: "valid-extra", BusinessID: 7, Permissions: []string{config.PermReadAgenda}},
			},
		},
		RateLimit: config.APIRateLimitConfig{
			RPS:   100,
			Burst: 200,
		},
	}

	auth := NewAuthInterceptor(&cfg)
	interceptor := auth.Unary()

	var seen config.APIClientKey
	handler := func(ctx context.Context, req any) (any, error) {
		seen, _ = clientFrom(ctx)
		return "ok", nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	t.Run("Success", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "valid-key", "x-api-extra", "valid-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		resp, err := interceptor(ctx, "req", info, handler)
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
		assert.Equal(t, int64(7), seen.BusinessID)
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "invalid", "x-api-extra", "valid-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		md := metadata.Pairs("x-api-key", "valid-key", "x-api-extra", "invalid")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := interceptor(ctx, "req", info, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("RateLimit", func(t *testing.T) {
		limited := cfg
		limited.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
		li := NewAuthInterceptor(&limited).Unary()

		md := metadata.Pairs("x-api-key", "valid-key", "x-api-extra", "valid-extra")
		ctx := metadata.NewIncomingContext(context.Background(), md)
		_, err := li(ctx, "req", info, handler)
		assert.NoError(t, err)
		_, err = li(ctx, "req", info, handler)
		assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	})

	t.Run("NoKeysConfigured", func(t *testing.T) {
		open := NewAuthInterceptor(&config.APIConfig{}).Unary()
		resp, err := open(context.Background(), "req", info, handler)
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})
}

func TestAuthorize(t *testing.T) {
	reader := config.APIClientKey{Permissions: []string{config.PermReadAgenda, " " + config.PermWriteAgenda + " "}}

	assert.NoError(t, authorize(reader, config.PermReadAgenda))
	assert.NoError(t, authorize(reader, config.PermWriteAgenda))
	assert.NoError(t, authorize(reader, ""))
	assert.ErrorIs(t, authorize(reader, config.PermWriteCatalog), errPermissionDenied)

	assert.NoError(t, authorize(config.APIClientKey{}, config.PermWriteProfile))
}

func TestKeyringDefaults(t *testing.T) {
	k := newKeyring(config.APIAuthConfig{HeaderAPIKey: " X-Owner-Key "})
	assert.Equal(t, "x-owner-key", k.apiKeyHeader)
	assert.Equal(t, apiExtraHeaderDefault, k.extraHeader)

	_, err := k.authenticate("", "")
	assert.ErrorIs(t, err, errMissingKey)
}

func TestChainUnaryInterceptors(t *testing.T) {
	var order []string
	mk := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return next(ctx, req)
		}
	}

	chained := ChainUnaryInterceptors(mk("first"), mk("second"))
	_, err := chained(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		order = append(order, "handler")
		return nil, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{domain.NewValidationError("time", "time is required"), http.StatusBadRequest},
		{domain.WrapValidation("date", domain.ErrPastDate), http.StatusBadRequest},
		{fmt.Errorf("advance: %w", domain.ErrInvalidTransition), http.StatusConflict},
		{fmt.Errorf("session x: %w", domain.ErrSessionExpired), http.StatusConflict},
		{domain.NotFoundError("get business", nil), http.StatusNotFound},
		{domain.WriteError("create appointment", errBoom), http.StatusBadGateway},
		{domain.SubscriptionError("subscribe", errBoom), http.StatusBadGateway},
		{errBoom, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, statusFor(tt.err), tt.err.Error())
	}
}

func TestWriteServiceError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, domain.NewValidationError("client_id", "client is required"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"client is required","field":"client_id"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	writeServiceError(rec, errBoom)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
