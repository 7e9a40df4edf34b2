package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aussiebroadwan/barchat/internal/chat/app"
	"github.com/aussiebroadwan/barchat/pkg/chatsdk"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "ask the local server's /readyz and exit non-zero unless it is ready")
	flag.Parse()

	cfg := app.LoadConfig()
	if *healthcheck {
		os.Exit(checkReady(cfg.Port))
	}

	chat, err := app.New(cfg)
	if err != nil {
		log.Fatalf("chat: init: %v", err)
	}
	if err := chat.Run(); err != nil {
		log.Fatalf("chat: %v", err)
	}
}

// checkReady backs the container HEALTHCHECK in cmd/chat/Dockerfile.
func checkReady(port int) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client := chatsdk.NewSDKClient(fmt.Sprintf("http://127.0.0.1:%d", port))
	health, err := client.GetReadiness(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "not ready:", err)
		return 1
	}
	fmt.Println(health.Status, health.Uptime)
	return 0
}
