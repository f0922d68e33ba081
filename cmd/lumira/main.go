// Command lumira is a terminal chat client for the Lumira product assistant.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/lumira-core/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	envFile := flag.String("env", ".env", "path to a .env file")
	printSchema := flag.Bool("config-schema", false, "print the config file JSON schema and exit")
	logPath := flag.String("log", "lumira.log", "file receiving logs while the UI owns the terminal")
	flag.Parse()

	if *printSchema {
		schema, err := config.Schema()
		if err != nil {
			log.Fatal(err)
		}
		os.Stdout.Write(schema)
		return
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, nil)))

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := newEventBridge()
	rt := newRuntime(cfg, bridge.handle)
	defer rt.Close()

	program := tea.NewProgram(newModel(ctx, rt.orchestrator, rt.knowledge, bridge), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("lumira: %w", err)
	}
	return nil
}
