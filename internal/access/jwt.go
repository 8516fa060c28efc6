package access

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by access tokens issued by the identity service.
type Claims struct {
	jwt.RegisteredClaims
	Role        Role `json:"role"`
	IsSuperuser bool `json:"is_superuser"`
}

// JWTAuthenticator turns bearer tokens into principals.
type JWTAuthenticator struct {
	key    []byte
	issuer string
}

func NewJWTAuthenticator(signingKey, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{key: []byte(signingKey), issuer: issuer}
}

// Authenticate returns Anonymous when the request carries no Authorization header
// and ErrInvalidToken when the header is present but unusable.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Anonymous{}, nil
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, ErrInvalidToken
	}

	return a.ParseToken(parts[1])
}

func (a *JWTAuthenticator) ParseToken(tokenStr string) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return a.key, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}

	return User{UserID: id, UserRole: claims.Role, Superuser: claims.IsSuperuser}, nil
}

// IssueToken signs claims with the authenticator key. Used by the simulator and tests.
func (a *JWTAuthenticator) IssueToken(claims Claims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = a.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
}
