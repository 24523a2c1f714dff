// chattail follows a user's chat groups from the terminal. It drives the
// same sync layer the app uses: live directory, 2s message polling, unread
// counts, and sends typed on stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"project-chat/internal/auth"
	"project-chat/internal/chatsync"
	"project-chat/internal/config"
	"project-chat/internal/logging"
	"project-chat/internal/models"
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8083", "chat service base url")
		token   = flag.String("token", "", "bearer token; omit to self-issue with -secret")
		secret  = flag.String("secret", "", "auth secret for self-issuing a dev token")
		userID  = flag.String("user", "", "user id")
		name    = flag.String("name", "", "display name")
		sendTo  = flag.String("send", "", "group id; lines on stdin are sent there as messages")
	)
	flag.Parse()

	logger := logging.New(config.LogConfig{Level: "info", Pretty: true}, "chattail")

	user := models.User{ID: *userID, Name: *name}
	if *token == "" {
		if *secret == "" || *userID == "" {
			logger.Fatal().Msg("need -token, or -secret and -user to self-issue one")
		}
		issued, err := auth.NewManager(*secret, "project-chat", 24*time.Hour).Issue(user)
		if err != nil {
			logger.Fatal().Err(err).Msg("token issue failed")
		}
		*token = issued
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := chatsync.NewSession(chatsync.Options{
		BaseURL: *baseURL,
		Token:   *token,
		User:    user,
		Log:     logger,
		OnDirectory: func(groups []models.Group) {
			fmt.Printf("-- %d groups --\n", len(groups))
			for _, g := range groups {
				fmt.Printf("   %s  %s (%d members)\n", g.ID, g.Name, len(g.Members))
			}
		},
		OnMessages: func(groupID string, msgs []models.Message) {
			if len(msgs) == 0 {
				return
			}
			last := msgs[len(msgs)-1]
			text := last.Text
			if last.HasFile() {
				text = fmt.Sprintf("[file] %s", last.FileName)
			}
			fmt.Printf("[%s] %s: %s\n", groupID, last.SenderName, text)
		},
		OnUnread: func(total int) {
			fmt.Printf("-- %d unread --\n", total)
		},
		OnDegraded: func(groupID string, degraded bool) {
			if degraded {
				logger.Warn().Str("group_id", groupID).Msg("connection degraded")
			} else {
				logger.Info().Str("group_id", groupID).Msg("connection recovered")
			}
		},
	})
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("session start failed")
	}

	if *sendTo == "" {
		<-ctx.Done()
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := session.SendText(ctx, *sendTo, line); err != nil {
			logger.Error().Err(err).Msg("send failed")
		}
	}
}
