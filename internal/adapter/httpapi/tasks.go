package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"relmap/internal/shared"
)

type createTaskRequest struct {
	UserID      int64  `json:"user_id" binding:"required,gt=0"`
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"max=1000"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, shared.MarkKind(err, shared.KindValidation))
		return
	}
	task, err := s.tasks.Create(c.Request.Context(), req.UserID, req.Title, req.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	task, err := s.tasks.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleListTasks(c *gin.Context) {
	filters := map[string]any{}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.fail(c, shared.New(shared.KindValidation, "user_id must be an integer"))
			return
		}
		filters["user_id"] = userID
	}
	if raw := c.Query("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			s.fail(c, shared.New(shared.KindValidation, "completed must be a boolean"))
			return
		}
		filters["completed"] = completed
	}
	tasks, err := s.tasks.List(c.Request.Context(), filters)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	task, err := s.tasks.Complete(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
