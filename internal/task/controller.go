package task

import (
	"net/http"

	"todo_service/internal/apperror"
	"todo_service/internal/auth"

	"github.com/gin-gonic/gin"
)

type TaskController struct {
	service TaskServiceInterface
}

func NewTaskController(service TaskServiceInterface) *TaskController {
	return &TaskController{
		service: service,
	}
}

// CreateTask handles POST /tasks
func (tc *TaskController) CreateTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperror.ErrorResponse{Error: err.Error(), Code: "VALIDATION_ERROR"})
		return
	}

	task, err := tc.service.CreateTask(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

// UpdateTask handles PUT /tasks/:id with a partial body
func (tc *TaskController) UpdateTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperror.ErrorResponse{Error: err.Error(), Code: "VALIDATION_ERROR"})
		return
	}

	task, err := tc.service.UpdateTask(c.Request.Context(), userID, c.Param("id"), req.ToPatch())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// DeleteTask handles DELETE /tasks/:id
func (tc *TaskController) DeleteTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := tc.service.DeleteTask(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListTasks handles GET /tasks
func (tc *TaskController) ListTasks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	tasks, err := tc.service.ListTasks(c.Request.Context(), userID, listParamsFromQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tasks)
}

func listParamsFromQuery(c *gin.Context) ListParams {
	optional := func(key string) *string {
		if v, ok := c.GetQuery(key); ok {
			return &v
		}
		return nil
	}

	return ListParams{
		Status:        optional("task_status"),
		IncludeLabels: c.QueryArray("include_labels"),
		MaxDeadline:   optional("max_deadline"),
		MinDeadline:   optional("min_deadline"),
		SortBy:        optional("sort_by"),
		SortOrder:     optional("sort_order"),
		Skip:          optional("skip"),
		Limit:         optional("limit"),
	}
}

func requireUser(c *gin.Context) (string, bool) {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apperror.ErrorResponse{Error: "User ID not found in context", Code: "UNAUTHORIZED"})
		return "", false
	}
	return userID, true
}

func respondError(c *gin.Context, err error) {
	httpErr := apperror.MapErrorToHTTP(err)
	c.JSON(httpErr.StatusCode, httpErr.ToErrorResponse())
}
