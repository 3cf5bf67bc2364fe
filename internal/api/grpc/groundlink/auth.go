package groundlink

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Token scopes.
const (
	// ScopeControl allows WriteCommand.
	ScopeControl = "control"
	// ScopeTelemetry allows the read-only calls.
	ScopeTelemetry = "telemetry"
)

const (
	// authorizationHeader is the metadata key carrying the bearer token.
	authorizationHeader = "authorization"
	// bearerPrefix precedes the token in the header value.
	bearerPrefix = "Bearer "
	// issuer is stamped into minted tokens.
	issuer = "parachutectl"
)

var (
	// ErrMissingToken is returned when a call carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// errUnknownScope is returned when minting a token with an unknown scope.
	errUnknownScope = errors.New("unknown scope")
)

// Claims are the ground-link token claims.
type Claims struct {
	// Scopes are the granted scopes.
	Scopes []string `json:"scopes"`

	jwt.RegisteredClaims
}

// HasScope reports whether scope is granted.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// Authenticator mints and verifies HS256 tokens.
type Authenticator struct {
	// secret is the shared HMAC key.
	secret []byte
	// now is the clock used for minting.
	now func() time.Time
}

// NewAuthenticator returns an Authenticator using secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Mint issues a token for subject with scopes, valid for ttl.
func (a *Authenticator) Mint(subject string, scopes []string, ttl time.Duration) (string, error) {
	for _, s := range scopes {
		if s != ScopeControl && s != ScopeTelemetry {
			return "", fmt.Errorf("%w: %q", errUnknownScope, s)
		}
	}

	now := a.now()
	claims := &Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates token.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	claims := new(Claims)

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// UnaryInterceptor rejects calls without a valid token carrying the scope the method requires.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		token, err := bearerToken(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		claims, err := a.Verify(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		scope := RequiredScope(info.FullMethod)
		if !claims.HasScope(scope) {
			return nil, status.Errorf(codes.PermissionDenied, "scope %q required", scope)
		}

		return handler(ctx, req)
	}
}

// RequiredScope returns the scope needed to call fullMethod.
func RequiredScope(fullMethod string) string {
	if fullMethod == MethodWriteCommand {
		return ScopeControl
	}

	return ScopeTelemetry
}

// BearerCredentials attaches a bearer token to every call.
type BearerCredentials struct {
	// Token is the signed token.
	Token string
	// Secure requires transport security when set.
	Secure bool
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (b BearerCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{authorizationHeader: bearerPrefix + b.Token}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (b BearerCredentials) RequireTransportSecurity() bool {
	return b.Secure
}

// bearerToken extracts the token from the incoming metadata.
func bearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrMissingToken
	}

	for _, value := range md.Get(authorizationHeader) {
		if token, found := strings.CutPrefix(value, bearerPrefix); found && token != "" {
			return token, nil
		}
	}

	return "", ErrMissingToken
}
