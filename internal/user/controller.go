package user

import (
	"errors"
	"net/http"

	"todo_service/internal/apperror"
	"todo_service/internal/auth"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	userService UserServiceInterface
}

func NewUserController(userService UserServiceInterface) *UserController {
	return &UserController{
		userService: userService,
	}
}

// Register handles POST /auth/register
func (a *UserController) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperror.ErrorResponse{Error: err.Error(), Code: "VALIDATION_ERROR"})
		return
	}

	user, err := a.userService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Token handles POST /auth/token. The body may be JSON or form encoded.
func (a *UserController) Token(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperror.ErrorResponse{Error: "username and password are required", Code: "VALIDATION_ERROR"})
		return
	}

	token, err := a.userService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidCredentials) {
			c.Header("WWW-Authenticate", "Bearer")
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

// Me handles GET /auth/users/me
func (a *UserController) Me(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	user, err := a.userService.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondIdentityError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateMe handles PATCH /auth/users/me
func (a *UserController) UpdateMe(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperror.ErrorResponse{Error: err.Error(), Code: "VALIDATION_ERROR"})
		return
	}

	user, err := a.userService.UpdateProfile(c.Request.Context(), userID, req.ToPatch())
	if err != nil {
		respondIdentityError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func requireUser(c *gin.Context) (string, bool) {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apperror.ErrorResponse{Error: "User ID not found in context", Code: "UNAUTHORIZED"})
		return "", false
	}
	return userID, true
}

// respondIdentityError treats a token whose user no longer exists as an
// authentication failure.
func respondIdentityError(c *gin.Context, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, apperror.ErrorResponse{Error: "could not validate credentials", Code: "UNAUTHORIZED"})
		return
	}
	respondError(c, err)
}

func respondError(c *gin.Context, err error) {
	httpErr := apperror.MapErrorToHTTP(err)
	c.JSON(httpErr.StatusCode, httpErr.ToErrorResponse())
}
