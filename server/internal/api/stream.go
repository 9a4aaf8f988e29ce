package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"storyteller/server/internal/model"
	"storyteller/server/internal/session"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8 << 10
)

// 推送消息类型
const (
	msgSnapshot = "snapshot"
	msgEnded    = "ended"
	msgAck      = "ack"
	msgError    = "error"
)

// streamMessage 服务端推送给前端的消息。
type streamMessage struct {
	Type      string                 `json:"type"`
	Session   *model.SessionSnapshot `json:"session,omitempty"`
	Seq       int64                  `json:"seq,omitempty"`
	Duplicate bool                   `json:"duplicate,omitempty"`
	EventID   string                 `json:"event_id,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// clientMessage 前端通过 WebSocket 发送的事件，字段与 model.Event 对齐。
type clientMessage struct {
	Type       model.EventType       `json:"type"`
	EventID    string                `json:"event_id,omitempty"`
	Text       string                `json:"text,omitempty"`
	ChoiceID   string                `json:"choice_id,omitempty"`
	Emotion    *model.EmotionalState `json:"emotion,omitempty"`
	AlertIndex int                   `json:"alert_index,omitempty"`
	ClientTS   time.Time             `json:"client_ts,omitempty"`
}

func (m clientMessage) event() model.Event {
	return model.Event{
		Type:       m.Type,
		EventID:    m.EventID,
		Text:       m.Text,
		ChoiceID:   m.ChoiceID,
		Emotion:    m.Emotion,
		AlertIndex: m.AlertIndex,
		ClientTS:   m.ClientTS,
	}
}

// handleSessionStream 升级为 WebSocket：推送会话快照（每秒计时与每个事件之后），
// 接收发言/情绪/选择等事件。会话结束时推送 ended 并关闭连接。
func (s *Server) handleSessionStream(c *gin.Context) {
	sessionID := c.Param("id")
	runner, err := s.sessions.Runner(c.Request.Context(), sessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("websocket upgrade failed")
		return
	}

	pingInterval := s.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	st := &stream{
		sessionID:    sessionID,
		conn:         conn,
		runner:       runner,
		sessions:     s.sessions,
		out:          make(chan streamMessage, 16),
		quit:         make(chan struct{}),
		pingInterval: pingInterval,
		log:          s.log.With().Str("session_id", sessionID).Logger(),
	}
	st.log.Info().Str("client", c.Request.RemoteAddr).Msg("stream connected")
	st.run()
	st.log.Info().Msg("stream closed")
}

// stream 单个 WebSocket 连接。写操作只在 writePump 协程中进行。
type stream struct {
	sessionID    string
	conn         *websocket.Conn
	runner       *session.Runner
	sessions     *session.Manager
	out          chan streamMessage
	quit         chan struct{}
	pingInterval time.Duration
	log          zerolog.Logger
}

func (st *stream) run() {
	updates, unsubscribe := st.runner.Subscribe()
	defer unsubscribe()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		st.readPump()
	}()

	st.writePump(updates, readDone)
	close(st.quit)
	_ = st.conn.Close()
	<-readDone
}

func (st *stream) readPump() {
	pongWait := 2 * st.pingInterval
	st.conn.SetReadLimit(maxMessageSize)
	_ = st.conn.SetReadDeadline(time.Now().Add(pongWait))
	st.conn.SetPongHandler(func(string) error {
		return st.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := st.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				st.log.Warn().Err(err).Msg("stream read failed")
			}
			return
		}

		seq, dup, err := st.sessions.Submit(context.Background(), st.sessionID, msg.event())
		reply := streamMessage{Type: msgAck, Seq: seq, Duplicate: dup, EventID: msg.EventID}
		if err != nil {
			reply = streamMessage{Type: msgError, EventID: msg.EventID, Error: err.Error()}
		}
		select {
		case st.out <- reply:
		case <-st.quit:
			return
		}
	}
}

func (st *stream) writePump(updates <-chan model.SessionSnapshot, readDone <-chan struct{}) {
	ticker := time.NewTicker(st.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				final := st.runner.Snapshot()
				_ = st.write(streamMessage{Type: msgEnded, Session: &final})
				_ = st.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(final.EndReason)),
					time.Now().Add(writeWait))
				return
			}
			if err := st.write(streamMessage{Type: msgSnapshot, Session: &snap}); err != nil {
				return
			}

		case msg := <-st.out:
			if err := st.write(msg); err != nil {
				return
			}

		case <-readDone:
			return

		case <-ticker.C:
			_ = st.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := st.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (st *stream) write(msg streamMessage) error {
	_ = st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := st.conn.WriteJSON(msg); err != nil {
		st.log.Debug().Err(err).Str("type", msg.Type).Msg("stream write failed")
		return err
	}
	return nil
}
