package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/jwebster45206/fateweaver/pkg/content"
)

func main() {
	_ = godotenv.Load()

	baseURL := getEnv("API_BASE_URL", "http://localhost:8080")
	lang := content.ParseLocale(getEnv("LOCALE", "zh"))

	var resumeID uuid.UUID
	if len(os.Args) > 1 {
		id, err := uuid.Parse(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid playthrough ID %q: %v\n", os.Args[1], err)
			os.Exit(1)
		}
		resumeID = id
	}

	api := &apiClient{
		client:       &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
		baseURL:      baseURL,
	}

	if !testConnection(api.client, baseURL) {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	p := tea.NewProgram(NewConsoleUI(context.Background(), api, lang, resumeID),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
