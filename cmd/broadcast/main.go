// Command broadcast sends a message, read from a file, to every registered
// user. It shows a preview, asks for confirmation and reports a sent/failed
// summary. Sends run in parallel, at most ten at a time, to respect the
// Telegram rate limits.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dstmrk/octotracker/internal/config"
	"github.com/dstmrk/octotracker/internal/notifier"
	"github.com/dstmrk/octotracker/internal/store"
)

const (
	maxParallelSends = 10
	sendRetries      = 2
)

func main() {
	log.SetFlags(log.LstdFlags)

	messageFile := flag.String("message", "message.txt", "file containing the broadcast message")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	flag.Parse()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	message, err := loadMessage(*messageFile)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		log.Fatalf("[FATAL] open database: %v", err)
	}
	defer st.Close()

	profiles, err := st.All()
	if err != nil {
		log.Fatalf("[FATAL] load users: %v", err)
	}
	if len(profiles) == 0 {
		log.Fatal("[FATAL] no registered users")
	}

	if !*yes && !confirmSend(message, len(profiles)) {
		log.Println("[INFO] broadcast cancelled")
		return
	}

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Proxy)

	log.Printf("[INFO] sending broadcast to %d users...", len(profiles))
	start := time.Now()

	var sent, failed atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(maxParallelSends)
	for userID := range profiles {
		userID := userID
		g.Go(func() error {
			if err := tn.SendWithRetry(ctx, userID, message, nil, sendRetries); err != nil {
				log.Printf("[WARN] send to %d failed: %v", userID, err)
				failed.Add(1)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	g.Wait()

	duration := time.Since(start)
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("✅ Sent: %d/%d\n", sent.Load(), len(profiles))
	fmt.Printf("❌ Failed: %d/%d\n", failed.Load(), len(profiles))
	fmt.Printf("⏱️  Duration: %s\n", duration.Round(time.Millisecond))
	fmt.Println(strings.Repeat("=", 70))
}

func loadMessage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read message file: %w", err)
	}
	message := strings.TrimSpace(string(data))
	if message == "" {
		return "", fmt.Errorf("message file %s is empty", path)
	}
	return message, nil
}

func confirmSend(message string, userCount int) bool {
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("📢 BROADCAST MESSAGE PREVIEW")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("\n%s\n\n", message)
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("⚠️  About to send this message to %d users.\n", userCount)
	fmt.Print("Continue? (y/N): ")

	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "s", "si", "sì":
		return true
	}
	return false
}
