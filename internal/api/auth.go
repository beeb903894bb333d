package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"agendei/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"
	requestIDMetadataKey  = "x-request-id"
)

var (
	errMissingKey       = errors.New("missing api key headers")
	errInvalidKey       = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

// keyring resolves API keys to the business they are bound to.
type keyring struct {
	apiKeyHeader string
	extraHeader  string
	clients      map[string]config.APIClientKey
}

func newKeyring(cfg config.APIAuthConfig) *keyring {
	m := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		m[k.Key] = k
	}

	apiKeyHeader := strings.ToLower(strings.TrimSpace(cfg.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(cfg.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	return &keyring{apiKeyHeader: apiKeyHeader, extraHeader: extraHeader, clients: m}
}

func (k *keyring) authenticate(apiKey, extra string) (config.APIClientKey, error) {
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingKey
	}
	client, ok := k.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	return client, nil
}

// authorize checks one permission. An empty permission list allows everything.
func authorize(client config.APIClientKey, required string) error {
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

type clientCtxKey struct{}

func withClient(ctx context.Context, client config.APIClientKey) context.Context {
	return context.WithValue(ctx, clientCtxKey{}, client)
}

// clientFrom returns the authenticated key of a dashboard request.
func clientFrom(ctx context.Context) (config.APIClientKey, bool) {
	client, ok := ctx.Value(clientCtxKey{}).(config.APIClientKey)
	return client, ok
}

// AuthInterceptor authenticates gRPC calls once any API key is configured.
type AuthInterceptor struct {
	keys    *keyring
	limiter *rateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{
		keys:    newKeyring(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := a.check(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if _, err := a.check(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (a *AuthInterceptor) check(ctx context.Context) (context.Context, error) {
	if len(a.keys.clients) > 0 {
		md, _ := metadata.FromIncomingContext(ctx)
		client, err := a.keys.authenticate(first(md.Get(a.keys.apiKeyHeader)), first(md.Get(a.keys.extraHeader)))
		if err != nil {
			return ctx, status.Error(codes.Unauthenticated, err.Error())
		}
		ctx = withClient(ctx, client)
	}

	if !a.limiter.allow(a.clientKey(ctx)) {
		return ctx, status.Error(codes.ResourceExhausted, errRateLimited.Error())
	}
	return ctx, nil
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	if client, ok := clientFrom(ctx); ok {
		return client.Key
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := componentLogger(logger, "grpc")

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		logGRPC(ctx, base, requestID, info.FullMethod, err, time.Since(start))
		return resp, err
	}
}

func LoggingStreamInterceptor(logger *zerolog.Logger) grpc.StreamServerInterceptor {
	base := componentLogger(logger, "grpc")

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		requestID := requestIDFromMetadata(ss.Context())
		_ = ss.SetHeader(metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		err := handler(srv, ss)
		logGRPC(ss.Context(), base, requestID, info.FullMethod, err, time.Since(start))
		return err
	}
}

func logGRPC(ctx context.Context, base zerolog.Logger, requestID, method string, err error, dur time.Duration) {
	code := codes.OK
	if err != nil {
		code = status.Code(err)
	}

	remote := clientKeyUnknown
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}

	base.Info().
		Str("request_id", requestID).
		Str("method", method).
		Str("remote", remote).
		Str("code", code.String()).
		Dur("duration", dur).
		Msg("gRPC request")
}

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if vals := md.Get(requestIDMetadataKey); len(vals) > 0 {
			if id := strings.TrimSpace(vals[0]); id != "" {
				return id
			}
		}
	}
	return uuid.NewString()
}

func componentLogger(logger *zerolog.Logger, component string) zerolog.Logger {
	if logger == nil {
		return zerolog.Nop()
	}
	return logger.With().Str("component", component).Logger()
}
