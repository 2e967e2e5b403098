package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	principalKey = "principal"
	bearerPrefix = "Bearer "
)

var errInvalidToken = errors.New("invalid token")

// Claims carries the identity issued by the host session layer
type Claims struct {
	jwt.RegisteredClaims
	Admin bool `json:"admin,omitempty"`
}

// Authenticator turns bearer tokens into principals
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator creates an HS256 authenticator
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// IssueToken signs a token for userID valid for ttl
func (a *Authenticator) IssueToken(userID int64, admin bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Admin: admin,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Principal validates tokenString and returns its principal
func (a *Authenticator) Principal(tokenString string) (models.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return a.secret, nil
	}, jwt.WithIssuer(a.issuer))
	if err != nil {
		return models.Principal{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return models.Principal{}, errInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return models.Principal{}, errInvalidToken
	}
	return models.Principal{UserID: userID, IsAdmin: claims.Admin}, nil
}

// authenticate resolves the principal from the Authorization header. Routes
// registered with required=false serve anonymous callers too.
func (h *Handler) authenticate(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if required {
				abortWithError(c, apperr.Unauthenticated())
				return
			}
			c.Next()
			return
		}

		if !strings.HasPrefix(header, bearerPrefix) {
			abortWithError(c, apperr.Unauthenticated())
			return
		}

		p, err := h.auth.Principal(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			h.logger.Debug("Rejected bearer token")
			abortWithError(c, apperr.Unauthenticated())
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !principal(c).IsAdmin {
			abortWithError(c, apperr.Forbidden("admin_required", "You do not have permission to access this endpoint."))
			return
		}
		c.Next()
	}
}

// principal returns the request's principal, or the anonymous one
func principal(c *gin.Context) models.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(models.Principal); ok {
			return p
		}
	}
	return models.Principal{}
}
