package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/user"
)

const (
	contextTokenKey = "userToken"
	contextActorKey = "actor"
	contextUserKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
// They only drive client affordances: privileges are re-read from the store on every request.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt  int64           `json:"oriat,omitempty"`
	Name          string          `json:"name,omitempty"`
	Email         string          `json:"email,omitempty"`
	Privilege     privilege.Level `json:"privilege"`
	SocietyID     string          `json:"society_id,omitempty"`
	SocietyRole   string          `json:"society_role,omitempty"`
	EmailVerified bool            `json:"email_verified,omitempty"`
}

type authenticator struct {
	conf      *core.Config
	usrSvc    *user.Service
	jwtConfig middleware.JWTConfig
}

func newAuthenticator(conf *core.Config, usrSvc *user.Service) *authenticator {
	return &authenticator{
		conf:   conf,
		usrSvc: usrSvc,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

// required rejects requests without a valid bearer token.
func (a *authenticator) required() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(a.jwtConfig)
}

// optional authenticates the request when it carries a bearer token; anonymous requests pass through.
func (a *authenticator) optional() echo.MiddlewareFunc {
	cfg := a.jwtConfig
	cfg.Skipper = func(ctx echo.Context) bool {
		return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
	}
	return middleware.JWTWithConfig(cfg)
}

// fromQuery reads the token from the `token` query param, for clients that cannot set headers (websockets).
func (a *authenticator) fromQuery() echo.MiddlewareFunc {
	cfg := a.jwtConfig
	cfg.TokenLookup = "query:token"
	return middleware.JWTWithConfig(cfg)
}

func (a *authenticator) userClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	actor := usr.Actor()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  a.conf.AppName,
			ExpiresAt: now.Add(a.conf.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt:  oriat,
		Name:          usr.Name,
		Email:         usr.Email,
		Privilege:     actor.Privilege,
		SocietyID:     actor.SocietyID,
		SocietyRole:   core.StringVal(usr.SocietyRole),
		EmailVerified: usr.EmailVerified,
	}
}

// generateToken generates a signed JWT token string representing the user Claims.
func (a *authenticator) generateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.jwtConfig.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *authenticator) claims(ctx echo.Context) (Claims, error) {
	return contextClaims(ctx)
}

func contextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// actor resolves the caller from the store; unauthenticated requests get the anonymous actor.
func (a *authenticator) actor(ctx echo.Context) privilege.Actor {
	if actor, ok := ctx.Get(contextActorKey).(privilege.Actor); ok {
		return actor
	}
	claims, err := a.claims(ctx)
	if err != nil {
		return privilege.Actor{}
	}
	actor := a.usrSvc.Actor(ctx.Request().Context(), claims.Subject)
	ctx.Set(contextActorKey, actor)
	return actor
}

func (a *authenticator) user(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	claims, err := a.claims(ctx)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context claims")
	}
	usr, err := a.usrSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func (a *authenticator) refreshToken(ctx echo.Context) (string, error) {
	claims, err := a.claims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}
	usr, err := a.user(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := a.generateToken(a.userClaims(usr, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
