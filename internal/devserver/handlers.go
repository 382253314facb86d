package devserver

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ontime/internal/domain"
	"ontime/internal/remote"
)

// ---- tasks ----

type taskResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Project         string `json:"project"`
	Status          string `json:"status"`
	Billable        bool   `json:"billable"`
	DefaultDuration string `json:"default_duration"`
	ScopeID         string `json:"scope_id"`
}

func newTaskResponse(t domain.Task) taskResponse {
	return taskResponse{
		ID:              t.ID,
		Title:           t.Title,
		Project:         t.Project,
		Status:          string(t.Status),
		Billable:        t.Billable,
		DefaultDuration: t.DefaultDuration,
		ScopeID:         t.ScopeID,
	}
}

type taskRequest struct {
	Title           *string `json:"title"`
	Project         *string `json:"project"`
	Status          *string `json:"status"`
	Billable        *bool   `json:"billable"`
	DefaultDuration *string `json:"defaultDuration"`
	ScopeID         string  `json:"scopeId"`
	UserID          string  `json:"userId"`
}

func (r taskRequest) fields() domain.TaskFields {
	f := domain.TaskFields{
		Title:           r.Title,
		Project:         r.Project,
		Billable:        r.Billable,
		DefaultDuration: r.DefaultDuration,
	}
	if r.Status != nil {
		f = f.WithStatus(domain.Status(*r.Status))
	}
	return f
}

func (s *Server) handleListTasks(c *gin.Context) {
	scopeID, ok := scopeParam(c)
	if !ok {
		badRequest(c, "scopeId is required")
		return
	}
	tasks, err := s.backend.ListTasks(c, scopeID)
	if err != nil {
		s.abort(c, err)
		return
	}
	out := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = newTaskResponse(t)
	}
	rows(c, out)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	scopeID := firstNonEmpty(req.ScopeID, req.UserID)
	if scopeID == "" {
		badRequest(c, "scopeId is required")
		return
	}
	if req.Title == nil || *req.Title == "" {
		badRequest(c, "title is required")
		return
	}
	if err := s.backend.CreateTask(c, scopeID, req.fields()); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := s.backend.UpdateTask(c, firstNonEmpty(req.ScopeID, req.UserID), c.Param("id"), req.fields()); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.backend.DeleteTask(c, c.Param("id")); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- time entries ----

type entryResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	ScopeID   string `json:"scope_id"`
	Start     string `json:"start"`
	End       string `json:"end"`
	TaskTitle string `json:"task_title"`
}

func newEntryResponse(e domain.TimeEntry) entryResponse {
	return entryResponse{
		ID:        e.ID,
		TaskID:    e.TaskID,
		ScopeID:   e.ScopeID,
		Start:     remote.FormatTime(e.Start),
		End:       remote.FormatTime(e.End),
		TaskTitle: e.Title,
	}
}

type entryRequest struct {
	TaskID  string `json:"taskId" binding:"required"`
	ScopeID string `json:"scopeId"`
	UserID  string `json:"userId"`
	Start   string `json:"start" binding:"required"`
	End     string `json:"end" binding:"required"`
	Title   string `json:"title"`
}

func (s *Server) handleListEntries(c *gin.Context) {
	scopeID, ok := scopeParam(c)
	if !ok {
		badRequest(c, "scopeId is required")
		return
	}
	entries, err := s.backend.ListEntries(c, scopeID)
	if err != nil {
		s.abort(c, err)
		return
	}
	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		out[i] = newEntryResponse(e)
	}
	rows(c, out)
}

func (s *Server) handleCreateEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	start, err := remote.ParseTime(req.Start)
	if err != nil {
		badRequest(c, "invalid start")
		return
	}
	end, err := remote.ParseTime(req.End)
	if err != nil {
		badRequest(c, "invalid end")
		return
	}
	scopeID := firstNonEmpty(req.ScopeID, req.UserID)
	if scopeID == "" {
		badRequest(c, "scopeId is required")
		return
	}
	if err := s.backend.CreateEntry(c, scopeID, domain.EntryFields{TaskID: req.TaskID, Start: start, End: end, Title: req.Title}); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) handleDeleteEntry(c *gin.Context) {
	if err := s.backend.DeleteEntry(c, c.Param("id")); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- sheets / projects ----

type sheetResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func newSheetResponse(sh domain.Sheet) sheetResponse {
	return sheetResponse{
		ID:          sh.ID,
		Name:        sh.Name,
		Description: sh.Description,
		Color:       sh.Color,
		CreatedAt:   remote.FormatTime(sh.CreatedAt),
		UpdatedAt:   remote.FormatTime(sh.UpdatedAt),
	}
}

type sheetRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

func (r sheetRequest) fields() domain.SheetFields {
	return domain.SheetFields{Name: r.Name, Description: r.Description, Color: r.Color}
}

func (s *Server) handleListSheets(c *gin.Context) {
	sheets, err := s.backend.ListSheets(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	out := make([]sheetResponse, len(sheets))
	for i, sh := range sheets {
		out[i] = newSheetResponse(sh)
	}
	rows(c, out)
}

func (s *Server) handleCreateSheet(c *gin.Context) {
	var req sheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	sh, err := s.backend.CreateSheet(c, req.fields())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSheetResponse(sh))
}

func (s *Server) handleUpdateSheet(c *gin.Context) {
	var req sheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := s.backend.UpdateSheet(c, c.Param("id"), req.fields()); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteSheet(c *gin.Context) {
	if err := s.backend.DeleteSheet(c, c.Param("id")); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type projectResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (s *Server) handleListProjects(c *gin.Context) {
	ps, err := s.backend.ListProjects(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	out := make([]projectResponse, len(ps))
	for i, p := range ps {
		out[i] = projectResponse{ID: p.ID, Label: p.Label}
	}
	rows(c, out)
}

// ---- reports ----

type reportRequest struct {
	UserID      string `json:"userId"`
	ScopeID     string `json:"scopeId"`
	SenderEmail string `json:"senderEmail" binding:"required"`
	PeriodStart string `json:"periodStart" binding:"required"`
	PeriodEnd   string `json:"periodEnd" binding:"required"`
	Format      string `json:"format" binding:"required"`
}

type reportFiles struct {
	CSV string `json:"csv_base64,omitempty"`
	PDF string `json:"pdf_base64,omitempty"`
}

type reportResultResponse struct {
	ID               string      `json:"id"`
	Message          string      `json:"message"`
	DestinationEmail string      `json:"destination_email"`
	Files            reportFiles `json:"files"`
}

type reportResponse struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	SenderEmail      string `json:"sender_email"`
	DestinationEmail string `json:"destination_email"`
	PeriodStart      string `json:"period_start"`
	PeriodEnd        string `json:"period_end"`
	Format           string `json:"format"`
	CreatedAt        string `json:"created_at"`
}

func (s *Server) handleSendReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	from, err := time.Parse(time.DateOnly, req.PeriodStart)
	if err != nil {
		badRequest(c, "invalid periodStart")
		return
	}
	to, err := time.Parse(time.DateOnly, req.PeriodEnd)
	if err != nil {
		badRequest(c, "invalid periodEnd")
		return
	}
	res, err := s.backend.SendReport(c, remote.ReportRequest{
		ScopeID:     firstNonEmpty(req.UserID, req.ScopeID),
		SenderEmail: req.SenderEmail,
		PeriodStart: from,
		PeriodEnd:   to,
		Format:      remote.ReportFormat(req.Format),
	})
	if err != nil {
		s.abort(c, err)
		return
	}
	out := reportResultResponse{ID: res.ID, Message: res.Message, DestinationEmail: res.DestinationEmail}
	if len(res.CSV) > 0 {
		out.Files.CSV = base64.StdEncoding.EncodeToString(res.CSV)
	}
	if len(res.PDF) > 0 {
		out.Files.PDF = base64.StdEncoding.EncodeToString(res.PDF)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListReports(c *gin.Context) {
	rs, err := s.backend.ListReports(c)
	if err != nil {
		s.abort(c, err)
		return
	}
	out := make([]reportResponse, len(rs))
	for i, r := range rs {
		out[i] = reportResponse{
			ID:               r.ID,
			UserID:           r.ScopeID,
			SenderEmail:      r.SenderEmail,
			DestinationEmail: r.DestinationEmail,
			PeriodStart:      r.PeriodStart,
			PeriodEnd:        r.PeriodEnd,
			Format:           string(r.Format),
			CreatedAt:        remote.FormatTime(r.CreatedAt),
		}
	}
	rows(c, out)
}
