package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/society"
	"github.com/trezcool/iems/core/user"
)

type userApi struct {
	auth     *authenticator
	svc      *user.Service
	socSvc   *society.Service
	logger   core.Logger
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, auth *authenticator, deps ServerDeps) {
	api := userApi{
		auth:     auth,
		svc:      deps.UserSvc,
		socSvc:   deps.SocietySvc,
		logger:   deps.Logger,
		validate: deps.Validate,
	}
	jwt := auth.required()

	ag := g.Group("/auth")
	// un-authed endpoints
	// TODO: rate limit `/password-reset` & `/login`
	ag.POST("/signup", api.signup)
	ag.POST("/login", api.login)
	ag.POST("/password-reset", api.requestPasswordReset)
	ag.POST("/password-reset/confirm", api.confirmPasswordReset)
	ag.POST("/verify-email/confirm", api.confirmEmail)

	// authed endpoints
	ag.POST("/token-refresh", api.refreshToken, jwt)
	ag.POST("/logout", api.logout, jwt)
	ag.POST("/verify-email", api.requestEmailVerification, jwt)

	ug := g.Group("/users")
	ug.GET("/me/changes", api.changes(deps.Hub), auth.fromQuery())
	ug.GET("/me", api.me, jwt)
	ug.PUT("/me", api.updateMe, jwt)
	ug.GET("", api.query, jwt, adminMiddleware(auth))
	ug.PUT("/:id/privilege", api.setPrivilege, jwt, adminMiddleware(auth))
}

// Handlers

func (api *userApi) signup(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		if errors.Cause(err) == user.ErrInvalidCredentials {
			return errAuthenticationFailed
		}
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.auth.generateToken(api.auth.userClaims(usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: &usr})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) logout(ctx echo.Context) error {
	claims, err := api.auth.claims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	api.svc.SignOut(ctx.Request().Context(), claims.Subject)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) requestPasswordReset(ctx echo.Context) error {
	var data EmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) requestEmailVerification(ctx echo.Context) error {
	claims, err := api.auth.claims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if err = api.svc.RequestEmailVerification(ctx.Request().Context(), claims.Subject); err != nil {
		if core.IsNotFound(err) {
			return errUnauthorized
		}
		return errors.Wrap(err, "requesting email verification")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "A verification email has been sent to your inbox."})
}

func (api *userApi) confirmEmail(ctx echo.Context) error {
	var data user.VerifyUserEmail
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyUserEmail")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.VerifyEmail(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "verifying email")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := api.auth.user(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	resp := ProfileResponse{User: usr, Privilege: usr.Actor().Privilege}
	if resp.Privilege == privilege.SocietyHead {
		soc, err := api.socSvc.Get(ctx.Request().Context(), core.StringVal(usr.SocietyID))
		switch {
		case err == nil:
			resp.Society = &soc
		case !core.IsNotFound(err):
			return errors.Wrap(err, "finding society")
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) updateMe(ctx echo.Context) error {
	claims, err := api.auth.claims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data user.UpdateProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.UpdateProfile(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		if core.IsNotFound(err) {
			return errUnauthorized
		}
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) setPrivilege(ctx echo.Context) error {
	var data SetPrivilegeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetPrivilegeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// Say No to Suicide! admins cannot demote themselves
	if ctx.Param("id") == api.auth.actor(ctx).UserID && !*data.Admin {
		return errHttpForbidden
	}

	usr, err := api.svc.SetAdmin(ctx.Request().Context(), ctx.Param("id"), *data.Admin)
	if err != nil {
		return errors.Wrap(err, "setting privilege")
	}
	return ctx.JSON(http.StatusOK, usr)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user,omitempty"`
	}

	EmailRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	ProfileResponse struct {
		user.User
		Privilege privilege.Level  `json:"privilege"`
		Society   *society.Society `json:"society"`
	}

	SetPrivilegeRequest struct {
		Admin *bool `json:"admin" validate:"required"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (er *EmailRequest) Validate(validate *validator.Validate) error {
	er.Email = core.CleanString(er.Email, true /* lower */)
	return validate.Struct(er)
}

func (sp *SetPrivilegeRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(sp)
}
