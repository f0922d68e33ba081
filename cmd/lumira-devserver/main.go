// Command lumira-devserver serves a stand-in Lumira backend for local runs.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koscakluka/lumira-core/internal/devserver"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	addr := flag.String("addr", "127.0.0.1:8000", "listen address")
	chunkDelay := flag.Duration("chunk-delay", 40*time.Millisecond, "pause between streamed reply chunks")
	speechFile := flag.String("speech", "", "audio file returned by /api/speak")
	flag.Parse()

	opts := []devserver.Option{devserver.WithChunkDelay(*chunkDelay), devserver.WithRequestLog()}
	if *speechFile != "" {
		speech, err := os.ReadFile(*speechFile)
		if err != nil {
			log.Fatalf("failed to read speech file: %v", err)
		}
		opts = append(opts, devserver.WithSpeechAudio(speech))
	}
	srv := devserver.New(opts...)

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("dev backend listening on http://%s/api", *addr)
		serverErrors <- srv.Start(*addr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
