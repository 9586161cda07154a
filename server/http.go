package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"estate-chat/domain"
	"estate-chat/errors"
	"estate-chat/observability"
	"estate-chat/repositories"
)

// Server wires the REST contract, the realtime hub and the stores.
type Server struct {
	log           *slog.Logger
	hub           *Hub
	stats         *observability.RelayStats
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
}

func NewServer(log *slog.Logger, hub *Hub, stats *observability.RelayStats,
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository) *Server {
	return &Server{
		log:           log,
		hub:           hub,
		stats:         stats,
		conversations: conversations,
		messages:      messages,
	}
}

// Router builds the gin engine with every route of the wire contract.
func (s *Server) Router(secret []byte) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/stats", s.getStats)

	authed := router.Group("/", BearerAuth(secret))
	authed.GET("/chats", s.listChats)
	authed.GET("/chats/:id", s.getChat)
	authed.POST("/chats", s.createChat)
	authed.PUT("/chats/read/:id", s.readChat)
	authed.POST("/messages/:chatId", s.postMessage)
	authed.GET("/ws", s.handleSocket)

	return router
}

// listChats returns the caller's conversation snapshots, most recent
// activity first.
func (s *Server) listChats(c *gin.Context) {
	chats, err := s.conversations.ListFor(currentUser(c))
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	if chats == nil {
		chats = []domain.Conversation{}
	}
	c.JSON(http.StatusOK, chats)
}

// getChat returns one conversation with its full embedded message log.
func (s *Server) getChat(c *gin.Context) {
	id, conversation, ok := s.loadOwnChat(c)
	if !ok {
		return
	}
	messages, err := s.messages.GetMessages(id)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	conversation.Messages = messages
	c.JSON(http.StatusOK, conversation)
}

type createChatRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
}

// createChat creates, or returns, the unique conversation between the
// caller and the receiver. The pair index keeps concurrent creates
// from racing into two conversations.
func (s *Server) createChat(c *gin.Context) {
	var body createChatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	caller := currentUser(c)
	conversation, created, err := s.conversations.FindOrCreate(caller, body.ReceiverID)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.stats.ChatCreated()
		s.log.Info("Conversation created", "id", conversation.ID, "pair",
			domain.PairKey(caller, body.ReceiverID))
	}
	c.JSON(status, conversation)
}

// readChat marks the caller as having seen the conversation. The body
// is empty by contract.
func (s *Server) readChat(c *gin.Context) {
	id, _, ok := s.loadOwnChat(c)
	if !ok {
		return
	}
	if err := s.conversations.MarkRead(id, currentUser(c)); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusOK)
}

type postMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// postMessage persists one message and returns the stored copy with
// the server-assigned id and timestamp.
func (s *Server) postMessage(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	var body postMessageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	text, err := domain.CleanText(body.Text)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	caller := currentUser(c)
	conversation, err := s.conversations.Get(chatID)
	if err != nil {
		s.failChatLookup(c, err)
		return
	}
	if _, err := conversation.Counterpart(caller); err != nil {
		s.fail(c, http.StatusForbidden, err)
		return
	}

	message := domain.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		SenderID:  caller,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.StoreMessage(message); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	if err := s.conversations.Touch(chatID, message); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	s.stats.Stored()
	c.JSON(http.StatusCreated, message)
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.Snapshot())
}

// loadOwnChat parses the id parameter and checks the caller is one of
// the two participants before exposing anything.
func (s *Server) loadOwnChat(c *gin.Context) (uuid.UUID, domain.Conversation, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return uuid.Nil, domain.Conversation{}, false
	}
	conversation, err := s.conversations.Get(id)
	if err != nil {
		s.failChatLookup(c, err)
		return uuid.Nil, domain.Conversation{}, false
	}
	if _, err := conversation.Counterpart(currentUser(c)); err != nil {
		s.fail(c, http.StatusForbidden, err)
		return uuid.Nil, domain.Conversation{}, false
	}
	return id, conversation, true
}

func (s *Server) failChatLookup(c *gin.Context, err error) {
	if err == errors.ErrUnknownConversation {
		s.fail(c, http.StatusNotFound, err)
		return
	}
	s.fail(c, http.StatusInternalServerError, err)
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
