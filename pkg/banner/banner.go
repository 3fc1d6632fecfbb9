// Package banner prints the startup banner with the effective runtime
// configuration and a quick production checklist.
package banner

import (
	"fmt"

	"chatd/pkg/config"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗██████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔══██╗
██║     ███████║███████║   ██║   ██║  ██║
██║     ██╔══██║██╔══██║   ██║   ██║  ██║
╚██████╗██║  ██║██║  ██║   ██║   ██████╔╝
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═════╝
`

// Print writes the banner and the effective configuration to stdout.
// addr and dbPath are the post-flag values, which may differ from cfg.
func Print(cfg config.Config, addr, dbPath, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	fmt.Printf("Model:    %s\n", cfg.Gemini.Model)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/chat - Send a user turn (JSON: conversation_id, content)")
	fmt.Println("GET  /v1/conversations - List conversations, newest first")
	fmt.Println("GET  /v1/conversations/{id}/messages - List a conversation's messages")
	fmt.Println("GET  /v1/conversations/{id}/messages/stream - Live SSE message feed")

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/chat' -d '{\"content\": \"hello\"}'\n", addr)
	fmt.Printf("curl 'http://localhost%s/v1/conversations'\n", addr)

	fmt.Println("\n== Production? ================================================")
	if cfg.Gemini.APIKey != "" {
		fmt.Println("- Gemini API key: OK")
	} else {
		fmt.Println("- Gemini API key: MISSING (set GEMINI_API_KEY; sends will fail)")
	}
	if cfg.RateLimit.RPS > 0 {
		fmt.Printf("- Rate limit: %.1f req/s (burst %d)\n", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	} else {
		fmt.Println("- Rate limit: disabled")
	}
	if cfg.Retention.Enabled {
		fmt.Printf("- Retention: enabled (cron=%s period=%s)\n", cfg.Retention.Cron, cfg.Retention.Period)
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Logs: ======================================================")
}
