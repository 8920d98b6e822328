/*
Package main is the entry point for the mmchat terminal client.

It is responsible for loading configuration, initializing the global logging
system, establishing the chat transport session, opening a room feed, and
gracefully handling operating system interrupt signals (SIGINT, SIGTERM) to
ensure presence is withdrawn and the connection closed on exit.
*/
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/time/rate"

	"mmchat/internal/app/chat"
	"mmchat/internal/app/user"
	"mmchat/internal/configs"
	"mmchat/internal/pkg/auth"
	"mmchat/internal/pkg/limiter"
	"mmchat/internal/pkg/logx"
)

func main() {
	roomID := flag.String("room", "", "chat room identifier to open")
	flag.Parse()

	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("ws_endpoint", cfg.WSEndpoint).
		Str("api_base_url", cfg.APIBaseURL).
		Msg("Configuration loaded successfully")

	if *roomID == "" {
		logx.Fatal(fmt.Errorf("missing -room flag"), "A room identifier is required")
	}

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := auth.StaticProvider(cfg.Token)

	session, err := chat.NewSession(chat.Options{
		Endpoint:          cfg.WSEndpoint,
		Tokens:            tokens,
		ReconnectDelay:    cfg.ReconnectDelay,
		HeartbeatOutgoing: cfg.HeartbeatOutgoing,
		HeartbeatIncoming: cfg.HeartbeatIncoming,
		SendQueueSize:     cfg.SendQueueSize,
		Limiter:           limiter.NewSendLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
	})
	if err != nil {
		logx.Fatal(err, "Failed to construct chat session")
	}

	// Surface connection state changes as a transient status line.
	session.OnStatus(func(status chat.Status) {
		if status.Err != nil {
			fmt.Printf("-- connection %s: %v\n", status.State, status.Err)
			return
		}
		fmt.Printf("-- connection %s\n", status.State)
	})

	if err := session.Connect(ctx); err != nil {
		logx.Fatal(err, "Failed to connect chat session")
	}
	defer session.Disconnect()

	self := user.User{ID: cfg.UserID, Nickname: cfg.Nickname}
	history := chat.NewHistoryClient(cfg.APIBaseURL, tokens)

	feed, err := chat.OpenRoomFeed(ctx, session, history, *roomID, self, func(messages []chat.ChatMessage) {
		if len(messages) == 0 {
			return
		}
		last := messages[len(messages)-1]
		marker := ""
		if last.Provisional() {
			marker = " (sending...)"
		}
		fmt.Printf("[%s] %s: %s%s\n", last.CreatedAt.Format("15:04:05"), last.SenderNickname, last.Content, marker)
	})
	if err != nil {
		logx.Fatal(err, "Failed to open room feed", "room_id", *roomID)
	}
	defer feed.Close()

	logx.Info("Room feed opened. Type a message and press enter; Ctrl-C to exit.", "room_id", *roomID)

	// Read outgoing messages from stdin until the context is canceled.
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			logx.Info("Received shutdown signal. Closing chat session...")
			return

		case line, ok := <-lines:
			if !ok {
				return
			}
			content := strings.TrimSpace(line)
			if content == "" {
				continue
			}
			if err := feed.Send(content); err != nil {
				fmt.Printf("-- send failed: %v\n", err)
			}
		}
	}
}
