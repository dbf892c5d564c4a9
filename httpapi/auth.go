package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const subjectContextKey contextKey = "httpapi.subject"

var errNoBearerToken = errors.New("no bearer token presented")

// AuthMiddleware rejects any request that does not carry a bearer JWT valid
// against secret, matching the auth collaborator's "reject unauthenticated
// requests with 401" behavior. A verified token's subject claim is carried
// on the request context for handlers and access logging downstream.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := authenticate(r, secret)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectContextKey, subject)))
		})
	}
}

// authenticate extracts and validates the bearer token on r, returning the
// token's subject claim (empty if the token carries none). secret is the
// HMAC key every token must be signed with.
func authenticate(r *http.Request, secret string) (string, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", errors.New("token rejected: " + err.Error())
	}

	return claims.Subject, nil
}

// bearerToken pulls the token out of a "Bearer <token>" Authorization
// header, case-insensitively on the scheme, rejecting anything else.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errNoBearerToken
	}
	return token, nil
}

// Subject returns the authenticated subject attached by AuthMiddleware, or
// "" when the request was never authenticated (auth disabled, or the value
// predates the middleware running).
func Subject(ctx context.Context) string {
	sub, _ := ctx.Value(subjectContextKey).(string)
	return sub
}

type errorBody struct {
	Error string `json:"error"`
}
