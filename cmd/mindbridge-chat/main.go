// Command mindbridge-chat is a terminal chat client for the relay server.
// It keeps session history locally (file or redis) so conversations survive
// restarts without the server ever seeing them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/mindbridge-dev/mindbridge/internal/emotion"
	"github.com/mindbridge-dev/mindbridge/pkg/chat"
	"github.com/mindbridge-dev/mindbridge/pkg/session"
)

var (
	serverURL = flag.String("server", getEnv("MINDBRIDGE_SERVER", "http://localhost:8080"), "Relay server address")
	storeKind = flag.String("store", getEnv("MINDBRIDGE_STORE", "file"), "Session store: file or redis")
	baseDir   = flag.String("store-dir", "", "Base directory for the file store (default ~/.mindbridge)")
	redisAddr = flag.String("redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis address for the redis store")
	timeout   = flag.Duration("timeout", 30*time.Second, "Relay call timeout")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	backend, err := session.NewBackend(session.Config{
		Store:   *storeKind,
		BaseDir: *baseDir,
		Redis:   session.RedisConfig{Addr: *redisAddr},
	})
	if err != nil {
		log.Fatalf("session store error: %v", err)
	}

	ctx := context.Background()
	store := session.NewStore(ctx, backend)
	defer func() { _ = store.Close() }()

	client := chat.NewClient(chat.Config{BaseURL: *serverURL, Timeout: *timeout}, store)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("MindBridge chat. Type /help for commands, /quit to exit.")
	if store.AdaptiveUI(ctx) {
		fmt.Println("Adaptive mode is on.")
	}

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, liner.ErrNotTerminalOutput) {
				break
			}
			// io.EOF on Ctrl+D
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := runCommand(ctx, store, input); quit {
				break
			}
			continue
		}

		reply, err := client.Send(ctx, input)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			// Retrying means typing the message again, so roll back the
			// failed user turn instead of letting it duplicate.
			store.DropLastTurn()
			continue
		}

		if store.AdaptiveUI(ctx) {
			mood := emotion.Detect(input)
			fmt.Printf("bridge [%s %s]> %s\n", mood, emotion.Color(mood), reply)
		} else {
			fmt.Printf("bridge> %s\n", reply)
		}
	}

	saveAndExit(ctx, store)
}

// runCommand handles slash commands. Returns true when the loop should end.
func runCommand(ctx context.Context, store *session.Store, input string) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(`commands:
  /history        list saved sessions
  /view <id>      load a saved session into the conversation
  /delete <id>    delete a saved session
  /clear          delete all saved sessions
  /adaptive       toggle adaptive mode
  /save           save the current conversation now
  /quit           save and exit`)

	case "/history":
		records := store.Records()
		if len(records) == 0 {
			fmt.Println("no saved sessions")
			return false
		}
		for _, r := range records {
			fmt.Printf("%d  %s  %s\n", r.ID, r.Date, r.Preview)
		}

	case "/view":
		id, ok := parseID(args)
		if !ok {
			return false
		}
		turns := store.LoadSession(id)
		for _, t := range turns {
			fmt.Printf("%s: %s\n", t.Role, t.Content)
		}

	case "/delete":
		id, ok := parseID(args)
		if !ok {
			return false
		}
		if err := store.DeleteSession(ctx, id); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "/clear":
		if err := store.ClearAll(ctx); err != nil {
			fmt.Printf("error: %v\n", err)
		} else {
			fmt.Println("all sessions deleted")
		}

	case "/adaptive":
		enabled := !store.AdaptiveUI(ctx)
		if err := store.SetAdaptiveUI(ctx, enabled); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		if enabled {
			fmt.Println("adaptive mode on")
		} else {
			fmt.Println("adaptive mode off")
		}

	case "/save":
		record, err := store.SaveSession(ctx)
		if err != nil {
			fmt.Printf("save error: %v\n", err)
		} else if record == nil {
			fmt.Println("nothing to save yet")
		} else {
			fmt.Printf("saved session %d (%s)\n", record.ID, record.Preview)
		}

	default:
		fmt.Printf("unknown command %s\n", cmd)
	}

	return false
}

func parseID(args []string) (int64, bool) {
	if len(args) != 1 {
		fmt.Println("usage: /view <id>")
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("bad session id %q\n", args[0])
		return 0, false
	}
	return id, true
}

func saveAndExit(ctx context.Context, store *session.Store) {
	record, err := store.SaveSession(ctx)
	if err != nil {
		fmt.Printf("save error: %v\n", err)
		return
	}
	if record != nil {
		fmt.Printf("saved session %d (%s)\n", record.ID, record.Preview)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
