package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"relmap/internal/shared"
)

type createUserRequest struct {
	Name  string `json:"name" binding:"required,max=50"`
	Email string `json:"email" binding:"required,email,max=100"`
	Age   int    `json:"age" binding:"gte=0,lte=150"`
}

type updateUserRequest struct {
	Name  *string `json:"name" binding:"omitempty,max=50"`
	Email *string `json:"email" binding:"omitempty,email,max=100"`
	Age   *int    `json:"age" binding:"omitempty,gte=0,lte=150"`
}

func (s *Server) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, shared.MarkKind(err, shared.KindValidation))
		return
	}
	u, err := s.users.Create(c.Request.Context(), req.Name, req.Email, req.Age)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (s *Server) handleGetUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	u, err := s.users.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) handleListUsers(c *gin.Context) {
	filters := map[string]any{}
	if name := c.Query("name"); name != "" {
		filters["name"] = name
	}
	if email := c.Query("email"); email != "" {
		filters["email"] = email
	}
	if ageRaw := c.Query("age"); ageRaw != "" {
		age, err := strconv.Atoi(ageRaw)
		if err != nil {
			s.fail(c, shared.New(shared.KindValidation, "age must be an integer"))
			return
		}
		filters["age"] = age
	}
	users, err := s.users.List(c.Request.Context(), filters)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) handleUpdateUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, shared.MarkKind(err, shared.KindValidation))
		return
	}
	changes := map[string]any{}
	if req.Name != nil {
		changes["name"] = *req.Name
	}
	if req.Email != nil {
		changes["email"] = *req.Email
	}
	if req.Age != nil {
		changes["age"] = *req.Age
	}
	if len(changes) == 0 {
		s.fail(c, shared.New(shared.KindValidation, "no fields to update"))
		return
	}
	u, err := s.users.Update(c.Request.Context(), id, changes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.users.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTaskCounts(c *gin.Context) {
	counts, err := s.users.TaskCounts(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.New(shared.KindValidation, "id must be a positive integer")
	}
	return id, nil
}
