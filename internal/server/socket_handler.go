package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	pkgmdw "github.com/nguyentranbao-ct/team-messaging/internal/server/middleware"
	"github.com/nguyentranbao-ct/team-messaging/internal/session"
	"github.com/nguyentranbao-ct/team-messaging/pkg/logger"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

const (
	writeWait      = 10 * time.Second
	maxCommandSize = 64 << 10

	frameEvent = "event"
	frameAck   = "ack"
)

// command is a client request. The ack carries the same id.
type command struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ackFrame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	OK    bool            `json:"ok"`
	Data  any             `json:"data,omitempty"`
	Error *models.Failure `json:"error,omitempty"`
}

type eventFrame struct {
	Type  string        `json:"type"`
	Event session.Event `json:"event"`
}

type channelPayload struct {
	ChannelID string `json:"channel_id" validate:"required"`
}

type messagePayload struct {
	MessageID string `json:"message_id" validate:"required"`
	Content   string `json:"content"`
	Emoji     string `json:"emoji"`
}

type directMessagePayload struct {
	UserID string `json:"user_id" validate:"required"`
}

type searchPayload struct {
	Query string `json:"query"`
}

type SocketHandler struct {
	sessions *session.Factory
	conf     config.SocketConfig
	validate *pkgmdw.Validator
	upgrader websocket.Upgrader
}

func NewSocketHandler(conf *config.Config, sessions *session.Factory) *SocketHandler {
	origins := compileOrigins(conf.Server.CORSOrigins)
	return &SocketHandler{
		sessions: sessions,
		conf:     conf.Socket,
		validate: pkgmdw.NewValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins.MatchString(origin)
			},
		},
	}
}

// Serve upgrades the request and runs the session of the authenticated user
// until the connection closes.
func (h *SocketHandler) Serve(c echo.Context) error {
	ctx := context.WithoutCancel(c.Request().Context())
	userID, ok := models.ActorFrom(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing user")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already answered the handshake
		log.Warnw(ctx, "websocket upgrade", "error", err)
		return nil
	}

	cl := newSocketClient(ctx, conn, h.conf)
	go cl.writePump()

	sess := h.sessions.New(ctx, userID, cl.observe)
	defer sess.Close()

	log.Infow(ctx, "socket connected")
	if err := sess.Start(); err != nil {
		log.Warnw(ctx, "session bootstrap", "error", err)
	}

	cl.readPump(func(cmd command) (any, error) {
		return h.dispatch(sess, cmd)
	})
	cl.close()
	<-cl.writerDone
	log.Infow(ctx, "socket disconnected")
	return nil
}

func (h *SocketHandler) dispatch(sess *session.Session, cmd command) (any, error) {
	switch cmd.Type {
	case "ping":
		return "pong", nil
	case "select_channel":
		p, err := decode[channelPayload](h.validate, cmd.Data)
		if err != nil {
			return nil, err
		}
		return nil, sess.SelectChannel(p.ChannelID)
	case "send_message":
		req, err := decode[models.SendMessageRequest](nil, cmd.Data)
		if err != nil {
			return nil, err
		}
		return sess.SendMessage(req)
	case "edit_message":
		p, err := decode[messagePayload](h.validate, cmd.Data)
		if err != nil {
			return nil, err
		}
		return sess.EditMessage(p.MessageID, p.Content)
	case "delete_message":
		p, err := decode[messagePayload](h.validate, cmd.Data)
		if err != nil {
			return nil, err
		}
		return nil, sess.DeleteMessage(p.MessageID)
	case "add_reaction", "remove_reaction":
		p, err := decode[messagePayload](h.validate, cmd.Data)
		if err != nil {
			return nil, err
		}
		if cmd.Type == "add_reaction" {
			return nil, sess.AddReaction(p.MessageID, p.Emoji)
		}
		return nil, sess.RemoveReaction(p.MessageID, p.Emoji)
	case "load_more":
		added, err := sess.LoadMore()
		if err != nil {
			return nil, err
		}
		return map[string]int{"added": added}, nil
	case "search":
		p, err := decode[searchPayload](nil, cmd.Data)
		if err != nil {
			return nil, err
		}
		return sess.Search(p.Query)
	case "clear_search":
		sess.ClearSearch()
		return nil, nil
	case "update_presence":
		req, err := decode[models.UpdatePresenceRequest](nil, cmd.Data)
		if err != nil {
			return nil, err
		}
		return sess.UpdatePresence(req)
	case "create_channel":
		req, err := decode[models.CreateChannelRequest](nil, cmd.Data)
		if err != nil {
			return nil, err
		}
		return sess.CreateChannel(req)
	case "start_direct_message":
		p, err := decode[directMessagePayload](h.validate, cmd.Data)
		if err != nil {
			return nil, err
		}
		return sess.StartDirectMessage(p.UserID)
	case "join_channel":
		p, err := decode[channelPayload](h.validate, cmd.Data)
		if err != nil {
			return nil, err
		}
		return nil, sess.JoinChannel(p.ChannelID)
	case "leave_channel":
		p, err := decode[channelPayload](h.validate, cmd.Data)
		if err != nil {
			return nil, err
		}
		return nil, sess.LeaveChannel(p.ChannelID)
	case "refresh":
		return nil, sess.Refresh()
	}
	return nil, models.Fail(cmd.Type, models.ReasonInvalidArgument, "unknown command %q", cmd.Type)
}

// decode reads a command payload. Payloads validated by the messaging
// operations themselves are passed a nil validator.
func decode[T any](v *pkgmdw.Validator, raw json.RawMessage) (T, error) {
	var out T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, models.Fail("", models.ReasonInvalidArgument, "malformed payload: %v", err)
		}
	}
	if v != nil {
		if err := v.Validate(out); err != nil {
			return out, models.Fail("", models.ReasonInvalidArgument, "%v", err)
		}
	}
	return out, nil
}

type socketClient struct {
	ctx      context.Context
	conn     *websocket.Conn
	limiter  *rate.Limiter
	pingWait time.Duration
	pongWait time.Duration

	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

func newSocketClient(ctx context.Context, conn *websocket.Conn, conf config.SocketConfig) *socketClient {
	buffer := conf.SendBuffer
	if buffer < 1 {
		buffer = 1
	}
	return &socketClient{
		ctx:        ctx,
		conn:       conn,
		limiter:    rate.NewLimiter(rate.Limit(conf.CommandRate), conf.CommandBurst),
		pingWait:   conf.PingPeriod,
		pongWait:   conf.PingPeriod * 10 / 9,
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// observe forwards session events. It never blocks: a client that cannot keep
// up with its buffer is disconnected and rebootstraps on reconnect.
func (cl *socketClient) observe(ev session.Event) {
	cl.enqueue(eventFrame{Type: frameEvent, Event: ev})
}

func (cl *socketClient) enqueue(frame any) {
	b, err := json.Marshal(frame)
	if err != nil {
		log.Errorw(cl.ctx, "marshal socket frame", "error", err)
		return
	}
	select {
	case <-cl.done:
	case cl.send <- b:
	default:
		log.Warnw(cl.ctx, "socket send buffer full, closing connection", "buffer", cap(cl.send))
		cl.close()
	}
}

func (cl *socketClient) close() {
	cl.closeOnce.Do(func() {
		close(cl.done)
	})
}

func (cl *socketClient) writePump() {
	defer close(cl.writerDone)
	defer cl.conn.Close()

	var tick <-chan time.Time
	if cl.pingWait > 0 {
		ticker := time.NewTicker(cl.pingWait)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-cl.done:
			_ = cl.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case b := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Debugw(cl.ctx, "socket write", "error", err)
				cl.close()
				return
			}
		case <-tick:
			if err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				cl.close()
				return
			}
		}
	}
}

func (cl *socketClient) extendDeadline() {
	if cl.pongWait > 0 {
		_ = cl.conn.SetReadDeadline(time.Now().Add(cl.pongWait))
	}
}

// readPump handles commands one at a time until the connection fails.
func (cl *socketClient) readPump(handle func(command) (any, error)) {
	cl.conn.SetReadLimit(maxCommandSize)
	cl.extendDeadline()
	cl.conn.SetPongHandler(func(string) error {
		cl.extendDeadline()
		return nil
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Warnw(cl.ctx, "socket read", "error", err)
			}
			return
		}
		cl.extendDeadline()

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			cl.ack(cmd, nil, models.Fail("decode", models.ReasonInvalidArgument, "malformed command: %v", err))
			continue
		}
		if !cl.limiter.Allow() {
			cl.ack(cmd, nil, models.Fail(cmd.Type, models.ReasonUnavailable, "too many commands, slow down"))
			continue
		}

		result, err := handle(cmd)
		cl.ack(cmd, result, err)
	}
}

func (cl *socketClient) ack(cmd command, result any, err error) {
	frame := ackFrame{Type: frameAck, ID: cmd.ID, OK: err == nil, Data: result}
	if err != nil {
		frame.Data = nil
		frame.Error = models.AsFailure(cmd.Type, err)
		level := logger.DebugLevel
		switch frame.Error.Reason {
		case models.ReasonInternal, models.ReasonUnavailable:
			level = logger.WarnLevel
		}
		log.Logw(cl.ctx, level, "socket command failed", "command", cmd.Type, "code", frame.Error.Reason, "error", err)
	}
	cl.enqueue(frame)
}
