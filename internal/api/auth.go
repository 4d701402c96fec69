package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
	errNoEmail      = errors.New("token has no user email")
)

// User is the identity carried in the bearer token.
type User struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

type Claims struct {
	User User `json:"user"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Issue mints a token for user valid for ttl. A zero ttl never expires.
func (a *Authenticator) Issue(user User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.Email,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies a raw token, with or without the "Bearer " prefix.
func (a *Authenticator) Parse(raw string) (*User, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return nil, errMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	if claims.User.Email == "" {
		return nil, errNoEmail
	}
	return &claims.User, nil
}

type userKey struct{}

func withUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the authenticated caller, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey{}).(*User)
	return u, ok && u != nil
}

// AuthInterceptor authenticates and rate limits unary gRPC calls.
type AuthInterceptor struct {
	auth    *Authenticator
	limiter *rateLimiter
}

func NewAuthInterceptor(auth *Authenticator, limiter *rateLimiter) *AuthInterceptor {
	return &AuthInterceptor{auth: auth, limiter: limiter}
}

const authorizationMetadataKey = "authorization"

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !requiresAuth(info.FullMethod) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		user, err := a.auth.Parse(first(md.Get(authorizationMetadataKey)))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		if a.limiter != nil && !a.limiter.Allow(user.Email) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}

		return handler(withUser(ctx, user), req)
	}
}

func requiresAuth(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/"+bookingServiceName+"/")
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

const clientKeyUnknown = "unknown"

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
