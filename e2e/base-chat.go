package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"

	"estate-chat/auth"
	"estate-chat/backend"
	"estate-chat/channel"
	"estate-chat/domain"
	"estate-chat/observability"
	"estate-chat/repositories"
	"estate-chat/server"
	"estate-chat/services"
)

type BaseChatSuite struct {
	suite.Suite
	Config Config

	log     *slog.Logger
	restURL string
	wsURL   string

	// In-process backend, only when CHAT_SERVER_ADDR is unset.
	srv *httptest.Server
	db  *badger.DB
}

// SetupSuite loads the environment configuration and, unless an
// external backend address was provided, boots a full in-process one.
func (s *BaseChatSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	s.log = logs.GetLoggerFromString(s.Config.LogLevel)

	if s.Config.ServerAddr != "" {
		s.restURL = "http://" + s.Config.ServerAddr
		s.wsURL = "ws://" + s.Config.ServerAddr + "/ws"
		return
	}

	s.db, err = badger.Open(badger.DefaultOptions(s.T().TempDir()).WithLogger(nil))
	s.Require().NoError(err)

	stats := &observability.RelayStats{}
	hub := server.NewHub(s.log, stats)
	srv := server.NewServer(s.log, hub, stats,
		repositories.NewConversationRepository(s.db, s.log),
		repositories.NewMessageRepository(s.db, s.log),
	)
	s.srv = httptest.NewServer(srv.Router([]byte(s.Config.JWTSecret)))
	s.restURL = s.srv.URL
	s.wsURL = "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

func (s *BaseChatSuite) TearDownSuite() {
	if s.srv != nil {
		s.srv.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// StepHeader prints a colorized banner so multi-step scenarios stay
// readable in the logs.
func (s *BaseChatSuite) StepHeader(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseChatSuite) tokenFor(userID string) string {
	token, err := auth.GenerateToken(userID, []byte(s.Config.JWTSecret), time.Hour)
	s.Require().NoError(err)
	return token
}

// RestClient returns a standalone REST client for out-of-band checks.
func (s *BaseChatSuite) RestClient(userID string) *backend.Client {
	return backend.NewClient(s.restURL, s.tokenFor(userID), 5*time.Second, s.log)
}

// chatClient bundles everything one simulated user holds at runtime.
type chatClient struct {
	UserID  string
	Service *services.ChatService
	Channel *channel.Channel
}

// StartClient wires a full client stack for one user and waits until
// its channel is up and the directory is loaded.
func (s *BaseChatSuite) StartClient(ctx context.Context, userID string) *chatClient {
	token := s.tokenFor(userID)
	rest := backend.NewClient(s.restURL, token, 5*time.Second, s.log)
	ch := channel.NewChannel(channel.Config{
		URL:            s.wsURL,
		Token:          token,
		UserID:         userID,
		ReconnectDelay: 100 * time.Millisecond,
	}, s.log)

	service := services.NewChatService(userID, rest, ch, s.log)
	service.Start(ctx)
	s.Eventually(func() bool {
		return service.ConnectionState() == domain.StateConnected
	}, 5*time.Second, 50*time.Millisecond, "channel for %s never connected", userID)
	s.Require().NoError(service.Load(ctx))

	client := &chatClient{UserID: userID, Service: service, Channel: ch}
	s.T().Cleanup(client.Stop)
	return client
}

func (c *chatClient) Stop() {
	c.Service.Stop()
}
