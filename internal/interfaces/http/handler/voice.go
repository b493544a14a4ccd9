package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"memoir-ai-api/internal/application/conversation"
	"memoir-ai-api/internal/application/convstate"
	"memoir-ai-api/internal/domain/entity"
	"memoir-ai-api/internal/domain/repository"
	"memoir-ai-api/internal/interfaces/http/dto"
	apperrors "memoir-ai-api/pkg/errors"
	"memoir-ai-api/pkg/logger"
	"memoir-ai-api/pkg/metrics"
)

const (
	voiceWriteWait   = 10 * time.Second
	voicePongWait    = 60 * time.Second
	voiceClipTimeout = 2 * time.Minute
	voiceMaxFrame    = 64 * 1024
	voiceSendBacklog = 16
)

// VoiceTimeouts 零值字段使用默认值
type VoiceTimeouts struct {
	// PongWait 两次收到客户端数据之间允许的最长间隔
	PongWait time.Duration
	// ClipTimeout 单个音频片段转写的上限
	ClipTimeout time.Duration
}

// VoiceHandler 实时语音通道：客户端上报通话事件与定稿消息，服务端回推界面状态
type VoiceHandler struct {
	mediator    *conversation.Mediator
	transport   *conversation.VoiceTransport
	sessionRepo repository.ConversationRepository
	upgrader    websocket.Upgrader
	pongWait    time.Duration
	pingPeriod  time.Duration
	clipTimeout time.Duration
}

// NewVoiceHandler allowedOrigins 为空或包含 * 时不校验来源
func NewVoiceHandler(
	mediator *conversation.Mediator,
	transport *conversation.VoiceTransport,
	sessionRepo repository.ConversationRepository,
	allowedOrigins []string,
	timeouts VoiceTimeouts,
) *VoiceHandler {
	pongWait := timeouts.PongWait
	if pongWait <= 0 {
		pongWait = voicePongWait
	}
	clipTimeout := timeouts.ClipTimeout
	if clipTimeout <= 0 {
		clipTimeout = voiceClipTimeout
	}
	return &VoiceHandler{
		mediator:    mediator,
		transport:   transport,
		sessionRepo: sessionRepo,
		pongWait:    pongWait,
		pingPeriod:  pongWait * 9 / 10,
		clipTimeout: clipTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Connect 升级为 WebSocket 并驱动语音会话
// @Summary 语音通道
// @Tags Conversations
// @Param sid path string true "会话 ID"
// @Router /v1/conversations/{sid}/voice [get]
func (h *VoiceHandler) Connect(c *gin.Context) {
	ctx := c.Request.Context()
	userID := requireUser(c)
	if userID == "" {
		return
	}
	session := loadOwnedSession(ctx, c, h.sessionRepo, userID, dto.BindSessionID(c))
	if session == nil {
		return
	}
	if session.ConversationMedium != entity.MediumVoice {
		respondError(c, apperrors.ErrUnsupportedMedium.WithDetail("session is not a voice conversation"))
		return
	}
	if err := h.mediator.ResumeConversation(ctx, session); err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "voice upgrade failed", "error", err.Error(), "session_id", session.SessionID)
		return
	}

	ctx = logger.WithSession(ctx, session.SessionID)
	vc := &voiceConn{
		handler: h,
		conn:    conn,
		session: session.SessionID,
		send:    make(chan dto.VoiceServerFrame, voiceSendBacklog),
		state:   convstate.Reduce(convstate.InitialState(), convstate.SetCurrentSession(session)),
	}
	metrics.VoiceConnections.Inc()
	defer metrics.VoiceConnections.Dec()

	done := make(chan struct{})
	go func() {
		defer close(done)
		vc.writeLoop()
	}()

	vc.emitState()
	vc.readLoop(ctx)
	close(vc.send)
	<-done
	logger.Info(ctx, "voice connection closed")
}

// voiceConn 单条连接；state 只在读循环中修改
type voiceConn struct {
	handler *VoiceHandler
	conn    *websocket.Conn
	session string
	send    chan dto.VoiceServerFrame
	state   convstate.State
}

func (vc *voiceConn) readLoop(ctx context.Context) {
	vc.conn.SetReadLimit(voiceMaxFrame)
	pongWait := vc.handler.pongWait
	_ = vc.conn.SetReadDeadline(time.Now().Add(pongWait))
	vc.conn.SetPongHandler(func(string) error {
		return vc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := vc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn(ctx, "voice connection read failed", "error", err.Error())
			}
			return
		}
		_ = vc.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame dto.VoiceClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			vc.emitError(apperrors.ErrInvalidParam.WithDetail("malformed frame"))
			continue
		}
		if !vc.handle(ctx, frame) {
			return
		}
	}
}

// handle 处理一帧，返回 false 表示结束连接
func (vc *voiceConn) handle(ctx context.Context, frame dto.VoiceClientFrame) bool {
	switch frame.Type {
	case dto.VoiceFrameConnecting:
		vc.dispatch(convstate.SetConnecting(true))
	case dto.VoiceFrameConnected:
		vc.dispatch(convstate.SetConnecting(false), convstate.ClearError())
	case dto.VoiceFrameSpeaking:
		vc.dispatch(convstate.SetSpeaking(true))
	case dto.VoiceFrameListening:
		vc.dispatch(convstate.SetSpeaking(false))
	case dto.VoiceFramePermissionDenied:
		vc.dispatch(convstate.SetConnecting(false), convstate.SetError(&convstate.Error{
			Code:    apperrors.CodePermissionDenied,
			Message: "microphone access was denied",
			Hint:    "Allow microphone access for this site in your browser settings, then reconnect.",
		}))
	case dto.VoiceFrameMessage:
		vc.dispatch(convstate.SetLoading(true))
		updated, err := vc.handler.transport.AppendFinalMessage(ctx, vc.session, frame.Role, frame.Content)
		vc.afterAppend(updated, err)
	case dto.VoiceFrameAudioClip:
		vc.dispatch(convstate.SetLoading(true))
		updated, err := vc.appendAudioClip(ctx, frame.URL)
		vc.afterAppend(updated, err)
	case dto.VoiceFrameEnd:
		vc.handler.mediator.EndConversation(ctx, vc.session)
		vc.dispatch(convstate.SetSpeaking(false), convstate.SetConnecting(false))
		return false
	default:
		vc.emitError(apperrors.ErrInvalidParam.WithDetail("unknown frame type: " + frame.Type))
	}
	return true
}

// appendAudioClip 转写期间读循环暂停，读超时需覆盖整个转写时长
func (vc *voiceConn) appendAudioClip(ctx context.Context, url string) (*entity.ConversationSession, error) {
	h := vc.handler
	_ = vc.conn.SetReadDeadline(time.Now().Add(h.clipTimeout + h.pongWait))
	ctx, cancel := context.WithTimeout(ctx, h.clipTimeout)
	defer cancel()
	return h.transport.AppendAudioClip(ctx, vc.session, url)
}

func (vc *voiceConn) afterAppend(updated *entity.ConversationSession, err error) {
	if err != nil {
		vc.state = convstate.Reduce(vc.state, convstate.SetLoading(false))
		vc.state = convstate.Reduce(vc.state, convstate.SetErrorFrom(err))
		vc.emitError(err)
		vc.emitState()
		return
	}
	vc.dispatch(convstate.UpdateSession(updated), convstate.SetLoading(false), convstate.ClearError())
}

// dispatch 依次应用动作后推送一次状态
func (vc *voiceConn) dispatch(actions ...convstate.Action) {
	for _, a := range actions {
		vc.state = convstate.Reduce(vc.state, a)
	}
	vc.emitState()
}

func (vc *voiceConn) emitState() {
	state := vc.state
	vc.push(dto.VoiceServerFrame{Type: dto.VoiceFrameState, State: &state})
}

func (vc *voiceConn) emitError(err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.New(apperrors.CodeInternalError, err.Error())
	}
	vc.push(dto.VoiceServerFrame{Type: dto.VoiceFrameError, Code: string(appErr.Code), Message: appErr.Summary()})
}

// push 写队列满时丢弃，慢客户端不阻塞读循环
func (vc *voiceConn) push(frame dto.VoiceServerFrame) {
	select {
	case vc.send <- frame:
	default:
	}
}

func (vc *voiceConn) writeLoop() {
	ticker := time.NewTicker(vc.handler.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = vc.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-vc.send:
			_ = vc.conn.SetWriteDeadline(time.Now().Add(voiceWriteWait))
			if !ok {
				_ = vc.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := vc.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = vc.conn.SetWriteDeadline(time.Now().Add(voiceWriteWait))
			if err := vc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
