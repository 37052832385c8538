package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
)

const (
	contextTokenKey = "learnerToken"
	tokenAudience   = "Academia"
)

// Claims represents the authorization claims transmitted via a JWT.
// Tokens are issued by the LMS; Subject is the learner id.
type Claims struct {
	jwt.StandardClaims
	Name string `json:"name,omitempty"`
}

func (c Claims) Learner() scorm.Learner {
	return scorm.Learner{ID: c.Subject, Name: c.Name}
}

// newJWTConfig returns the JWT auth middleware config.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func GetLearnerClaims(conf *core.Config, learner scorm.Learner) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   learner.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name: learner.Name,
	}
}

// GenerateToken generates a signed JWT token string representing the learner Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	jwtConf := newJWTConfig(conf)
	method := jwt.GetSigningMethod(jwtConf.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(jwtConf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextLearner(ctx echo.Context) (scorm.Learner, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return scorm.Learner{}, err
	}
	if claims.Subject == "" {
		return scorm.Learner{}, errUnauthorized
	}
	return claims.Learner(), nil
}
