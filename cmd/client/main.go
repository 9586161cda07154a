package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"estate-chat/backend"
	"estate-chat/channel"
	"estate-chat/domain"
	"estate-chat/internal"
	"estate-chat/services"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles configuration loading, the channel lifecycle and the
// interactive command loop.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config internal.ClientConfig
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Wire the REST client, the realtime channel and the chat view.
	rest := backend.NewClient(config.BackendURL, config.AuthToken, config.HTTPTimeout, log)
	ch := channel.NewChannel(channel.Config{
		URL:               config.SocketURL,
		Token:             config.AuthToken,
		UserID:            config.UserID,
		ReconnectAttempts: config.ReconnectAttempts,
		ReconnectDelay:    config.ReconnectDelay,
	}, log)
	ch.OnStateChange(func(state domain.ConnectionState) {
		switch state {
		case domain.StateConnected:
			color.Green.Println("● connected")
		case domain.StateConnecting:
			color.Yellow.Println("● connecting...")
		default:
			color.Red.Println("● disconnected")
		}
	})

	chat := services.NewChatService(config.UserID, rest, ch, log)
	chat.Start(ctx)
	defer chat.Stop()

	if err := chat.Load(ctx); err != nil {
		return exitRuntime, fmt.Errorf("cannot load conversations: %w", err)
	}
	printDirectory(chat, config.UserID)
	fmt.Println("Commands: list | open <n> | with <userId> | send <text> | close | quit")

	// 4. Interactive loop.
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		default:
		}
		if !scanner.Scan() {
			return exitOK, scanner.Err()
		}
		if quit := handleCommand(ctx, chat, config.UserID, scanner.Text()); quit {
			return exitOK, nil
		}
	}
}

// handleCommand executes one user command; it reports true on quit.
func handleCommand(ctx context.Context, chat *services.ChatService, userID, line string) bool {
	command, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch command {
	case "quit":
		return true

	case "list":
		if err := chat.Load(ctx); err != nil {
			color.Red.Printf("load failed: %v\n", err)
			return false
		}
		printDirectory(chat, userID)

	case "open":
		index, err := strconv.Atoi(arg)
		conversations := chat.Conversations()
		if err != nil || index < 1 || index > len(conversations) {
			color.Red.Println("usage: open <n> (see list)")
			return false
		}
		session, err := chat.Open(ctx, conversations[index-1].ID)
		if err != nil {
			color.Red.Printf("open failed: %v\n", err)
			return false
		}
		printSession(session, userID)

	case "with":
		session, err := chat.OpenWith(ctx, strings.TrimSpace(arg))
		if err != nil {
			color.Red.Printf("resolve failed: %v\n", err)
			return false
		}
		printSession(session, userID)

	case "send":
		if _, err := chat.Send(ctx, arg); err != nil {
			color.Red.Printf("send failed: %v\n", err)
		}

	case "close":
		chat.CloseSession()

	default:
		color.Yellow.Printf("unknown command %q\n", command)
	}
	return false
}

// printDirectory renders the conversation list, unseen entries first
// highlighted, in backend order.
func printDirectory(chat *services.ChatService, userID string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "With", "Last message", "Seen"})
	for i, conversation := range chat.Conversations() {
		with, _ := conversation.Counterpart(userID)
		seen := "yes"
		if !conversation.SeenByUser(userID) {
			seen = color.Red.Sprint("NEW")
		}
		table.Append([]string{strconv.Itoa(i + 1), with, conversation.LastMessage, seen})
	}
	table.Render()
	fmt.Printf("Unseen conversations: %d\n", chat.UnseenCount())
}

func printSession(session *services.ChatSession, userID string) {
	fmt.Printf("--- conversation with %s ---\n", session.ReceiverID())
	for _, message := range session.Messages() {
		author := message.SenderID
		if author == userID {
			author = "me"
		}
		fmt.Printf("[%s] %s: %s\n",
			message.CreatedAt.Local().Format(time.TimeOnly), author, message.Text)
	}
}
