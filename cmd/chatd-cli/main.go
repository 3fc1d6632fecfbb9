// chatd-cli is an interactive terminal chat client over the local store
// and the Gemini API. It drives the same session controller the service
// exposes, one conversation at a time.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"chatd/pkg/chat"
	"chatd/pkg/config"
	"chatd/pkg/llm"
	"chatd/pkg/logger"
	"chatd/pkg/models"
	"chatd/pkg/session"
	"chatd/pkg/store"
)

func main() {
	_ = godotenv.Load(".env")

	cfgFlag := flag.String("config", "chatd.yaml", "path to config file")
	dbFlag := flag.String("db", "", "pebble database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgFlag)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	dbPath := cfg.Storage.DBPath
	if *dbFlag != "" {
		dbPath = *dbFlag
	}
	logger.Init("error")

	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open pebble at %s: %v", dbPath, err)
	}
	defer st.Close()

	client := llm.NewGemini(cfg.Gemini.APIKey, cfg.Gemini.Model, time.Duration(cfg.Gemini.Timeout))
	ctrl := session.NewController(chat.New(st, client), st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go render(ctx, ctrl)

	fmt.Println("chatd interactive client. /new /open <id> /list /delete <id> /quit")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/new":
			ctrl.NewConversation()
			fmt.Println("(new conversation)")
		case line == "/list":
			listConversations(st)
		case strings.HasPrefix(line, "/open "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			ctrl.LoadConversation(id)
		case strings.HasPrefix(line, "/delete "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/delete "))
			if err := st.DeleteConversation(id); err != nil {
				fmt.Printf("delete failed: %v\n", err)
			} else {
				fmt.Println("deleted", id)
			}
		default:
			ctrl.SendMessage(line)
		}
	}
}

// render prints assistant turns and errors as session state evolves.
func render(ctx context.Context, ctrl *session.Controller) {
	var lastLen int
	var lastErr string
	for state := range ctrl.Watch(ctx) {
		if state.Err != "" && state.Err != lastErr {
			fmt.Printf("\nerror: %s\n> ", state.Err)
			ctrl.ClearError()
		}
		lastErr = state.Err
		if len(state.Messages) < lastLen {
			lastLen = len(state.Messages)
		}
		for _, m := range state.Messages[lastLen:] {
			if m.Role == models.RoleAssistant {
				fmt.Printf("\nassistant: %s\n> ", m.Content)
			}
		}
		lastLen = len(state.Messages)
	}
}

func listConversations(st *store.Store) {
	convs, err := st.ListConversations()
	if err != nil {
		fmt.Printf("list failed: %v\n", err)
		return
	}
	if len(convs) == 0 {
		fmt.Println("(no conversations)")
		return
	}
	for _, c := range convs {
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  %s\n", c.ID, time.Unix(0, c.UpdatedTS).Format(time.RFC3339), title)
	}
}
