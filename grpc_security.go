package main

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"forefront/arena/internal/config"
	"forefront/arena/internal/logging"
)

const sharedSecretMetadataKey = "x-forefront-health-secret"

// healthServerOptions returns the gRPC options for the health listener. An
// empty secret leaves the listener open to local probes.
func healthServerOptions(cfg *config.Config, logger *logging.Logger) []grpc.ServerOption {
	if logger == nil {
		logger = logging.L()
	}
	if cfg == nil || cfg.HealthSecret == "" {
		return nil
	}
	logger.Info("gRPC health shared-secret authentication enabled")
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(newSharedSecretUnaryInterceptor(cfg.HealthSecret)),
		grpc.ChainStreamInterceptor(newSharedSecretStreamInterceptor(cfg.HealthSecret)),
	}
}

func newSharedSecretUnaryInterceptor(secret string) grpc.UnaryServerInterceptor {
	normalized := strings.TrimSpace(secret)
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := checkSharedSecret(ctx, normalized); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func newSharedSecretStreamInterceptor(secret string) grpc.StreamServerInterceptor {
	normalized := strings.TrimSpace(secret)
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkSharedSecret(ss.Context(), normalized); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func checkSharedSecret(ctx context.Context, secret string) error {
	if secret == "" {
		return status.Error(codes.Unauthenticated, "shared secret not configured")
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	candidate := extractSharedSecret(md)
	if candidate == "" {
		return status.Error(codes.Unauthenticated, "missing shared secret")
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) != 1 {
		return status.Error(codes.Unauthenticated, "invalid shared secret")
	}
	return nil
}

// extractSharedSecret accepts the dedicated header or a bearer token.
func extractSharedSecret(md metadata.MD) string {
	for _, value := range md.Get(sharedSecretMetadataKey) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	for _, value := range md.Get("authorization") {
		if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
			if token := strings.TrimSpace(value[7:]); token != "" {
				return token
			}
		}
	}
	return ""
}
