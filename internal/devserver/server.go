// Package devserver serves the remote task/entry API from memory.
//
// It answers in snake_case inside a {"rows": [...]} envelope, which is one of
// the shapes the client must normalize. Errors are {"error": "..."} with the
// status carried by the backend's TransportError.
package devserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ontime/internal/domain"
	"ontime/internal/remote"
	"ontime/pkg/logx"
)

const requestIDHeader = "X-Request-ID"

type Server struct {
	backend remote.Client
	log     logx.Logger
	router  *gin.Engine
}

func New(backend remote.Client, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		backend: backend,
		log:     log.With(logx.String("comp", "devserver")),
		router:  gin.New(),
	}
	s.router.Use(gin.Recovery(), s.accessLog)
	s.registerRoutes(s.router)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is canceled, then shuts down with a
// five second grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", logx.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes(r gin.IRouter) {
	r.GET("/tasks", s.handleListTasks)
	r.POST("/tasks", s.handleCreateTask)
	r.PUT("/tasks/:id", s.handleUpdateTask)
	r.DELETE("/tasks/:id", s.handleDeleteTask)

	r.GET("/time-entries", s.handleListEntries)
	r.POST("/time-entries", s.handleCreateEntry)
	r.DELETE("/time-entries/:id", s.handleDeleteEntry)

	r.GET("/sheets", s.handleListSheets)
	r.POST("/sheets", s.handleCreateSheet)
	r.PUT("/sheets/:id", s.handleUpdateSheet)
	r.DELETE("/sheets/:id", s.handleDeleteSheet)

	r.GET("/projects", s.handleListProjects)

	r.GET("/reports", s.handleListReports)
	r.POST("/reports/send", s.handleSendReport)
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	rid := c.GetHeader(requestIDHeader)
	if rid == "" {
		rid = uuid.NewString()
	}
	c.Header(requestIDHeader, rid)
	c.Next()
	s.log.Debug("request",
		logx.String("method", c.Request.Method),
		logx.String("path", c.Request.URL.Path),
		logx.Int("status", c.Writer.Status()),
		logx.String("request_id", rid),
		logx.Duration("took", time.Since(start)),
	)
}

// abort writes err as {"error": msg} with the status it carries.
func (s *Server) abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := http.StatusText(status)
	var te *domain.TransportError
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		status, msg = http.StatusBadRequest, ve.Error()
	case errors.As(err, &te) && te.Status != 0:
		status = te.Status
		msg = http.StatusText(status)
		if te.Err != nil {
			msg = te.Err.Error()
		}
	default:
		s.log.Error("backend failed", logx.String("path", c.Request.URL.Path), logx.Err(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func rows[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, gin.H{"rows": items})
}

// scopeParam reads the scope from either query name.
func scopeParam(c *gin.Context) (string, bool) {
	if v := c.Query("scopeId"); v != "" {
		return v, true
	}
	v := c.Query("userId")
	return v, v != ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
