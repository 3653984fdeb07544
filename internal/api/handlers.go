package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/maloquacious/taskflow/internal/store"
)

// ProjectRequest is the body of project create and update.
type ProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// TaskRequest is the body of task create and update.
// Omitted fields keep their stored values on update. Clear lists the nullable
// fields (project_id, start_date, end_date, duration_days) to set to null.
type TaskRequest struct {
	ProjectID    *int64         `json:"project_id"`
	Name         string         `json:"name" binding:"required"`
	Description  string         `json:"description"`
	Status       store.Status   `json:"status"`
	Priority     store.Priority `json:"priority"`
	StartDate    *store.Date    `json:"start_date"`
	EndDate      *store.Date    `json:"end_date"`
	DurationDays *int64         `json:"duration_days"`
	PositionX    *float64       `json:"position_x"`
	PositionY    *float64       `json:"position_y"`
	Clear        []string       `json:"clear"`
}

func (r TaskRequest) input() store.TaskInput {
	return store.TaskInput{
		ProjectID:    r.ProjectID,
		Name:         r.Name,
		Description:  r.Description,
		Status:       r.Status,
		Priority:     r.Priority,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		DurationDays: r.DurationDays,
		PositionX:    r.PositionX,
		PositionY:    r.PositionY,
		Clear:        r.Clear,
	}
}

// PositionRequest moves a task on the layout canvas.
type PositionRequest struct {
	X *float64 `json:"x" binding:"required"`
	Y *float64 `json:"y" binding:"required"`
}

// pathID parses the :id parameter. It writes the 400 itself and reports false on failure.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(c, http.StatusBadRequest, "invalid_request", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeJSONError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func (s *Server) listProjects(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (s *Server) createProject(c *gin.Context) {
	var req ProjectRequest
	if !bind(c, &req) {
		return
	}
	p, err := s.store.CreateProject(c.Request.Context(), store.ProjectInput{Name: req.Name, Description: req.Description})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) getProject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := s.store.GetProject(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) updateProject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ProjectRequest
	if !bind(c, &req) {
		return
	}
	p, err := s.store.UpdateProject(c.Request.Context(), id, store.ProjectInput{Name: req.Name, Description: req.Description})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteProject(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listProjectTasks(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.store.GetProject(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	tasks, err := s.store.ListTasks(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) createProjectTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req TaskRequest
	if !bind(c, &req) {
		return
	}
	in := req.input()
	in.ProjectID = &id
	t, err := s.store.CreateTask(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) getTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	t, err := s.store.GetTask(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) updateTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req TaskRequest
	if !bind(c, &req) {
		return
	}
	t, err := s.store.UpdateTask(c.Request.Context(), id, req.input())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteTask(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) moveTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req PositionRequest
	if !bind(c, &req) {
		return
	}
	if err := s.store.UpdateTaskPosition(c.Request.Context(), id, *req.X, *req.Y); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
