package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mindbridge-go/internal/repository"
	"mindbridge-go/internal/service"
	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/token"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责处理支持聊天的 HTTP 与 WebSocket 请求。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
	jwtManager  *token.JWTManager
	blacklist   repository.TokenBlacklist
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager, blacklist repository.TokenBlacklist) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
		blacklist:   blacklist,
	}
}

type SendMessageRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

type EscalateRequest struct {
	SessionID   string `json:"sessionId" binding:"required"`
	CounselorID uint   `json:"counselorId" binding:"required"`
	Reason      string `json:"reason"`
}

type ResolveRequest struct {
	SessionID  string `json:"sessionId" binding:"required"`
	Resolution string `json:"resolution"`
}

type ArchiveRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// Start 开启一个新的会话。
func (h *ChatHandler) Start(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	session, err := h.chatService.Start(c.Request.Context(), actor)
	if err != nil {
		respondError(c, "StartChat", err)
		return
	}
	respond(c, http.StatusCreated, "会话已创建", session)
}

// SendMessage 发送一条消息并返回 AI 回复与风险等级。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SendMessage: Invalid request payload, error: %v", err)
		badRequest(c, "无效的请求负载：sessionId 和 message 不能为空")
		return
	}
	ex, err := h.chatService.SendMessage(c.Request.Context(), actor, req.SessionID, req.Message)
	if err != nil {
		respondError(c, "SendMessage", err)
		return
	}
	success(c, ex)
}

func (h *ChatHandler) History(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	msgs, err := h.chatService.History(c.Request.Context(), actor, c.Param("sessionId"))
	if err != nil {
		respondError(c, "ChatHistory", err)
		return
	}
	success(c, msgs)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	userID, ok := uintParam(c, "userId")
	if !ok {
		return
	}
	sessions, err := h.chatService.ListSessions(c.Request.Context(), actor, userID)
	if err != nil {
		respondError(c, "ListSessions", err)
		return
	}
	success(c, sessions)
}

// Escalate 将会话转交给咨询师。
func (h *ChatHandler) Escalate(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var req EscalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：sessionId 和 counselorId 不能为空")
		return
	}
	session, err := h.chatService.Escalate(c.Request.Context(), actor, req.SessionID, req.CounselorID, req.Reason)
	if err != nil {
		respondError(c, "EscalateChat", err)
		return
	}
	success(c, session)
}

func (h *ChatHandler) Resolve(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：sessionId 不能为空")
		return
	}
	session, err := h.chatService.Resolve(c.Request.Context(), actor, req.SessionID, req.Resolution)
	if err != nil {
		respondError(c, "ResolveChat", err)
		return
	}
	success(c, session)
}

func (h *ChatHandler) Archive(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	var req ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载：sessionId 不能为空")
		return
	}
	session, err := h.chatService.Archive(c.Request.Context(), actor, req.SessionID)
	if err != nil {
		respondError(c, "ArchiveChat", err)
		return
	}
	success(c, session)
}

// wsFrame 是 WebSocket 上行消息，sessionId 为空时自动开启新会话。
type wsFrame struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func wsEvent(kind string, payload gin.H) gin.H {
	payload["type"] = kind
	payload["timestamp"] = time.Now().UnixMilli()
	return payload
}

// authenticate 校验路径中的 token，浏览器的 WebSocket 无法设置 Authorization 头。
func (h *ChatHandler) authenticate(c *gin.Context) (service.Actor, bool) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		respond(c, http.StatusUnauthorized, "无效的 token", nil)
		return service.Actor{}, false
	}
	if h.blacklist != nil {
		revoked, err := h.blacklist.Contains(c.Request.Context(), tokenString)
		if err != nil || revoked {
			respond(c, http.StatusUnauthorized, "token 已失效，请重新登录", nil)
			return service.Actor{}, false
		}
	}
	user, err := h.userService.GetProfile(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, "ChatStream", err)
		return service.Actor{}, false
	}
	if !user.IsActive {
		respond(c, http.StatusForbidden, "账号已被停用", nil)
		return service.Actor{}, false
	}
	return service.Actor{UserID: user.ID, Role: user.Role}, true
}

// Stream 处理一个传入的 WebSocket 连接，每条上行消息对应一次 SendMessage。
func (h *ChatHandler) Stream(c *gin.Context) {
	actor, ok := h.authenticate(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %d", actor.UserID)
	ctx := c.Request.Context()
	var sessionID string

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		// 支持 JSON 帧和纯文本，纯文本沿用当前会话
		frame := wsFrame{Message: string(message)}
		if len(message) > 0 && message[0] == '{' {
			if err := json.Unmarshal(message, &frame); err != nil {
				_ = conn.WriteJSON(wsEvent("error", gin.H{"message": "无效的消息格式"}))
				continue
			}
		}
		if frame.SessionID != "" {
			sessionID = frame.SessionID
		}
		if strings.TrimSpace(frame.Message) == "" {
			continue
		}

		if sessionID == "" {
			session, err := h.chatService.Start(ctx, actor)
			if err != nil {
				log.Errorf("创建会话失败: %v", err)
				_ = conn.WriteJSON(wsEvent("error", gin.H{"message": "无法创建会话，请稍后重试"}))
				break
			}
			sessionID = session.SessionID
			_ = conn.WriteJSON(wsEvent("session", gin.H{"sessionId": sessionID}))
		}

		ex, err := h.chatService.SendMessage(ctx, actor, sessionID, frame.Message)
		if err != nil {
			status := statusOf(err)
			if status == http.StatusInternalServerError {
				log.Errorf("处理聊天消息失败: %v", err)
				_ = conn.WriteJSON(wsEvent("error", gin.H{"code": status, "message": "服务暂时不可用，请稍后重试"}))
				break
			}
			_ = conn.WriteJSON(wsEvent("error", gin.H{"code": status, "message": err.Error()}))
			continue
		}
		if err := conn.WriteJSON(wsEvent("message", gin.H{"data": ex})); err != nil {
			log.Warnf("向 WebSocket 写入消息失败: %v", err)
			break
		}
	}
}
