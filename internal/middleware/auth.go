package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"school-notification-service/pkg/response"
	"school-notification-service/pkg/xerrors"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	ContextUserID   contextKey = "user_id"
	ContextSchoolID contextKey = "school_id"
	ContextBranchID contextKey = "branch_id"
	ContextRole     contextKey = "role"
)

// Claims carried in platform-issued access tokens
type Claims struct {
	UserID   string `json:"userId"`
	SchoolID string `json:"schoolId"`
	BranchID string `json:"branchId,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier verifies HS256 access tokens issued by the auth service
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, xerrors.ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, xerrors.ErrExpiredToken
		}
		return nil, xerrors.ErrInvalidToken
	}
	if !token.Valid || claims.UserID == "" {
		return nil, xerrors.ErrInvalidToken
	}
	return claims, nil
}

// TokenFromRequest pulls the access token from the Authorization header, or
// from the token query parameter for browser WebSocket clients that cannot
// set headers on the upgrade request.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware rejects requests without a valid access token and stashes
// the identity claims in the request context.
func (v *TokenVerifier) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized, "Missing access token")
			return
		}

		claims, err := v.Verify(token)
		if err != nil {
			if errors.Is(err, xerrors.ErrExpiredToken) {
				response.Error(w, http.StatusUnauthorized, "Token expired")
				return
			}
			response.Error(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(setContextValues(r.Context(), claims)))
	})
}

// RequireRoles restricts a route to the named roles. Must run after
// AuthMiddleware.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, http.StatusForbidden, "Insufficient role")
		})
	}
}

func setContextValues(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, ContextUserID, claims.UserID)
	ctx = context.WithValue(ctx, ContextSchoolID, claims.SchoolID)
	ctx = context.WithValue(ctx, ContextBranchID, claims.BranchID)
	return context.WithValue(ctx, ContextRole, claims.Role)
}

func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextUserID).(string)
	return v
}

func SchoolIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextSchoolID).(string)
	return v
}

func RoleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextRole).(string)
	return v
}
