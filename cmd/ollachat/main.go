// Command ollachat is a minimal streaming chat REPL against a local Ollama
// server. Configuration comes from flags, falling back to OLLAMA_HOST,
// OLLAMA_MODEL, and OLLAMA_API_KEY (a .env file is loaded when present).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"google.golang.org/genai"

	"github.com/valmere/ollabridge"
	"github.com/valmere/ollabridge/ollama"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ollachat:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file, using environment", "err", err)
	}
	host := flag.String("host", envOr("OLLAMA_HOST", "http://localhost:11434"), "Ollama server URL")
	model := flag.String("model", envOr("OLLAMA_MODEL", "llama3.2"), "model name")
	flag.Parse()

	var opts []ollama.Option
	if token := os.Getenv("OLLAMA_API_KEY"); token != "" {
		opts = append(opts, ollama.WithAuthToken(token))
	}
	client, err := ollama.New(*host, *model, opts...)
	if err != nil {
		return err
	}

	fmt.Printf("chatting with %s at %s (ctrl-d to exit)\n", *model, *host)
	ctx := context.Background()
	var history []*genai.Content
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		history = append(history, &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: input}},
		})

		var reply strings.Builder
		for resp, err := range client.GenerateStream(ctx, &ollabridge.Request{Contents: history}) {
			if err != nil {
				return err
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text != "" {
					fmt.Print(part.Text)
					reply.WriteString(part.Text)
				}
			}
		}
		fmt.Println()
		history = append(history, &genai.Content{
			Role:  genai.RoleModel,
			Parts: []*genai.Part{{Text: reply.String()}},
		})
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
