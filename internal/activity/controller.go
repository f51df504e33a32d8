package activity

import (
	"net/http"

	"todo_service/internal/apperror"
	"todo_service/internal/auth"

	"github.com/gin-gonic/gin"
)

type ActivityController struct {
	service ServiceInterface
}

func NewActivityController(service ServiceInterface) *ActivityController {
	return &ActivityController{
		service: service,
	}
}

// GetTaskActivity handles GET /tasks/:id/activity
func (ac *ActivityController) GetTaskActivity(c *gin.Context) {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apperror.ErrorResponse{Error: "User ID not found in context", Code: "UNAUTHORIZED"})
		return
	}

	events, err := ac.service.History(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		httpErr := apperror.MapErrorToHTTP(err)
		c.JSON(httpErr.StatusCode, httpErr.ToErrorResponse())
		return
	}

	c.JSON(http.StatusOK, events)
}
