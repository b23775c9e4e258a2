package handler

import (
	"net/http"
	"time"

	"timetracker/internal/service"
	"timetracker/pkg/apperror"
	"timetracker/pkg/pagination"
	"timetracker/pkg/response"

	"github.com/gin-gonic/gin"
)

// SessionCookies stores and clears the session cookie.
type SessionCookies interface {
	SetTokenCookie(c *gin.Context, token string, ttl time.Duration)
	ClearTokenCookie(c *gin.Context)
}

type UserHandler struct {
	userService service.UserService
	cookies     SessionCookies
	now         func() time.Time
}

// NewUserHandler sets up the routing dependencies for User endpoints
func NewUserHandler(userService service.UserService, cookies SessionCookies) *UserHandler {
	return &UserHandler{userService: userService, cookies: cookies, now: time.Now}
}

// RegisterRoutes binds login/logout on public and the rest on protected.
func (h *UserHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/login", h.Login)
	public.POST("/logout", h.Logout)

	protected.GET("/me", h.GetMe)
	users := protected.Group("/users")
	{
		users.GET("", h.ListUsers)
		users.POST("", h.CreateUser)
		users.PUT("/:id/role", h.SetRole)
	}
}

// Login handles POST /login to authenticate and return a JWT token
// @Summary      Login user
// @Description  Authenticates a user by email and password, returning a JWT token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginUserRequest   true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /api/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req service.LoginUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	tokenRes, err := h.userService.Login(c.Request.Context(), req)
	if err != nil {
		if apperror.Is(err, apperror.KindValidation) {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, apperror.PublicMessage(err)))
			return
		}
		respondError(c, err)
		return
	}

	if expiresAt, err := time.Parse(time.RFC3339, tokenRes.ExpiresAt); err == nil {
		h.cookies.SetTokenCookie(c, tokenRes.Token, expiresAt.Sub(h.now()))
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokenRes))
}

// Logout handles POST /logout to clear the session cookie
// @Summary      Logout
// @Tags         auth
// @Success      200  {object}  response.Response
// @Router       /api/logout [post]
func (h *UserHandler) Logout(c *gin.Context) {
	h.cookies.ClearTokenCookie(c)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Logged out"))
}

// GetMe returns the authenticated user with their current role
// @Summary      Get current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      401      {object}  response.Response
// @Router       /api/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.userService.Me(c.Request.Context(), actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// CreateUser handles POST /users (admin)
// @Summary      Create a new user
// @Description  Creates a new user validating constraints and hashing password
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateUserRequest  true  "Create User Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.CreateUser(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}

// ListUsers handles GET /users (admin)
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	p := pagination.Parse(c)
	users, total, err := h.userService.ListUsers(c.Request.Context(), actorID(c), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, users, total, p)
}

// SetRole grants a role (admin)
// @Summary      Set user role
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                  true  "User ID"
// @Param        payload  body      service.SetRoleRequest  true  "Role"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Router       /api/users/{id}/role [put]
func (h *UserHandler) SetRole(c *gin.Context) {
	var req service.SetRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.SetRole(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}
