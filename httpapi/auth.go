package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

var clock = time.Now

type contextKey string

// UserIdentityContextKey carries the authenticated subject through request
// contexts.
const UserIdentityContextKey = contextKey("userIdentity")

const DefaultTokenTTL = 24 * time.Hour

// Authenticator gates the HTTP interface behind HMAC signed bearer tokens.
type Authenticator struct {
	Secret []byte
	TTL    time.Duration
}

// Issue mints a bearer token for the given subject, valid for the
// authenticator's TTL.
func (a Authenticator) Issue(subject string) (string, error) {
	ttl := a.TTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	now := clock()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Id:        uuid.New().String(),
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})

	return token.SignedString(a.Secret)
}

// Verify checks a bearer token and returns the subject it was issued to.
func (a Authenticator) Verify(tokenString string) (string, error) {
	claims := &jwt.StandardClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return a.Secret, nil
	})
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", errors.New("token invalid")
	}

	return claims.Subject, nil
}

func (a Authenticator) AuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader, found := r.Header["Authorization"]
		if !found || len(authHeader) != 1 {
			w.Header().Add("WWW-Authenticate", "Bearer realm=\"nestsdm\"")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		authParts := strings.SplitN(authHeader[0], " ", 2)
		if len(authParts) != 2 || authParts[0] != "Bearer" {
			w.Header().Add("WWW-Authenticate", "Bearer realm=\"nestsdm\", error=\"invalid_request\"")
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		uid, err := a.Verify(authParts[1])
		if err != nil {
			w.Header().Add("WWW-Authenticate", "Bearer realm=\"nestsdm\", error=\"invalid_token\"")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		nextR := r.WithContext(context.WithValue(r.Context(), UserIdentityContextKey, uid))
		next.ServeHTTP(w, nextR)
	})
}
