package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"storyteller/server/internal/catalog"
	"storyteller/server/internal/config"
	"storyteller/server/internal/conversation"
	"storyteller/server/internal/model"
	"storyteller/server/internal/orchestrator"
	"storyteller/server/internal/report"
	"storyteller/server/internal/session"
)

// Catalog 模板查询。
type Catalog interface {
	Find(q catalog.Query) []model.StoryTemplate
	ByID(id string) (model.StoryTemplate, bool)
}

type Server struct {
	cfg      config.ServerConfig
	catalog  Catalog
	sessions *session.Manager
	log      zerolog.Logger

	upgrader websocket.Upgrader
}

func NewServer(cfg config.ServerConfig, cat Catalog, sessions *session.Manager, log zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		catalog:  cat,
		sessions: sessions,
		log:      log.With().Str("component", "api").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	return s
}

func (s *Server) Routes() http.Handler {
	// Gin 统一承载中间件与路由，便于扩展日志/鉴权/限流等能力。
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger(), requestMetrics(), s.corsMiddleware())

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	api.GET("/templates", s.handleTemplates)
	api.GET("/templates/:id", s.handleTemplate)
	api.GET("/replicas", s.handleReplicas)

	api.POST("/sessions", s.handleCreateSession)
	api.GET("/sessions/:id", s.handleGetSession)
	api.POST("/sessions/:id/utterances", s.handleUtterance)
	api.POST("/sessions/:id/emotions", s.handleEmotion)
	api.POST("/sessions/:id/choices", s.handleChoice)
	api.POST("/sessions/:id/stop", s.handleStop)
	api.POST("/sessions/:id/emergency-stop", s.handleEmergencyStop)
	api.POST("/sessions/:id/alerts/:index/resolve", s.handleResolveAlert)
	api.GET("/sessions/:id/events", s.handleSessionEvents)
	api.GET("/sessions/:id/transcript", s.handleRemoteTranscript)
	api.GET("/sessions/:id/stream", s.handleSessionStream)

	api.GET("/reports", s.handleReports)
	api.GET("/reports/:id", s.handleReport)
	return engine
}

// handleHealthz 返回服务健康状态。
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleTemplates 按年龄/类别/类型过滤模板。
func (s *Server) handleTemplates(c *gin.Context) {
	var q catalog.Query
	if v := c.Query("age"); v != "" {
		age, err := strconv.Atoi(v)
		if err != nil || age < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid age"})
			return
		}
		q.Age = age
	}
	q.Category = strings.TrimSpace(c.Query("category"))
	switch t := model.StoryType(c.Query("type")); t {
	case "", model.StoryTypeStatic, model.StoryTypeDynamic:
		q.StoryType = t
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be static or dynamic"})
		return
	}
	c.JSON(http.StatusOK, s.catalog.Find(q))
}

func (s *Server) handleTemplate(c *gin.Context) {
	tpl, ok := s.catalog.ByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (s *Server) handleReplicas(c *gin.Context) {
	replicas, err := s.sessions.Replicas(c.Request.Context())
	if err != nil {
		// 详细错误只进日志，返回给前端的错误保持简洁。
		s.log.Error().Err(err).Msg("list replicas failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "list replicas failed"})
		return
	}
	c.JSON(http.StatusOK, replicas)
}

// handleCreateSession 创建会话。远端会话创建失败时返回 503 与已结束的会话快照。
func (s *Server) handleCreateSession(c *gin.Context) {
	var req session.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.TemplateID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "template_id required"})
		return
	}

	snap, err := s.sessions.Create(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrConversationStart) {
			s.log.Error().Err(err).Str("session_id", snap.SessionID).Msg("session could not start")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":          "session could not start",
				"emergency_stop": true,
				"session":        snap,
			})
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleGetSession(c *gin.Context) {
	snap, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type utteranceRequest struct {
	Text    string `json:"text"`
	EventID string `json:"event_id,omitempty"`
}

func (s *Server) handleUtterance(c *gin.Context) {
	var req utteranceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text required"})
		return
	}
	s.submit(c, model.Event{Type: model.EventUtterance, Text: req.Text, EventID: req.EventID})
}

func (s *Server) handleEmotion(c *gin.Context) {
	var sample model.EmotionalState
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s.submit(c, model.Event{Type: model.EventEmotion, Emotion: &sample})
}

type choiceRequest struct {
	ChoiceID string `json:"choice_id"`
	EventID  string `json:"event_id,omitempty"`
}

func (s *Server) handleChoice(c *gin.Context) {
	var req choiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ChoiceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "choice_id required"})
		return
	}
	s.submit(c, model.Event{Type: model.EventChoice, ChoiceID: req.ChoiceID, EventID: req.EventID})
}

func (s *Server) handleStop(c *gin.Context) {
	s.submit(c, model.Event{Type: model.EventStop})
}

func (s *Server) handleEmergencyStop(c *gin.Context) {
	s.submit(c, model.Event{Type: model.EventEmergencyStop})
}

func (s *Server) handleResolveAlert(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert index"})
		return
	}
	s.submit(c, model.Event{Type: model.EventResolveAlert, AlertIndex: index})
}

type submitResponse struct {
	Seq       int64                 `json:"seq"`
	Duplicate bool                  `json:"duplicate"`
	Session   model.SessionSnapshot `json:"session"`
}

// submit 事件走 append-first 后同步处理，返回处理后的快照。
func (s *Server) submit(c *gin.Context, evt model.Event) {
	id := c.Param("id")
	seq, dup, err := s.sessions.Submit(c.Request.Context(), id, evt)
	if err != nil {
		s.writeError(c, err)
		return
	}
	snap, err := s.sessions.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, submitResponse{Seq: seq, Duplicate: dup, Session: snap})
}

func (s *Server) handleSessionEvents(c *gin.Context) {
	events, err := s.sessions.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// handleRemoteTranscript 数字人一侧的对话记录（来自远端会话）。
func (s *Server) handleRemoteTranscript(c *gin.Context) {
	utterances, err := s.sessions.RemoteTranscript(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.writeError(c, err)
			return
		}
		s.log.Error().Err(err).Str("session_id", c.Param("id")).Msg("fetch remote transcript failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "fetch transcript failed"})
		return
	}
	if utterances == nil {
		utterances = []conversation.Utterance{}
	}
	c.JSON(http.StatusOK, utterances)
}

func (s *Server) handleReports(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	reports, err := s.sessions.RecentReports(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (s *Server) handleReport(c *gin.Context) {
	rep, err := s.sessions.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report":       rep,
		"duration_sec": int(rep.Duration().Seconds()),
		"unresolved":   rep.Unresolved(),
	})
}

// writeError 领域错误到 HTTP 状态码的映射。
func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrTemplateNotFound),
		errors.Is(err, report.ErrNotFound),
		errors.Is(err, orchestrator.ErrUnknownAlert):
		return http.StatusNotFound
	case errors.Is(err, session.ErrEnded),
		errors.Is(err, session.ErrNotStarted),
		errors.Is(err, session.ErrInFlight),
		errors.Is(err, orchestrator.ErrEnded),
		errors.Is(err, orchestrator.ErrUnknownChoice):
		return http.StatusConflict
	case errors.Is(err, session.ErrBadEvent):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrQueueFull),
		errors.Is(err, session.ErrNotQueued):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
