// Package devserver is an in-process stand-in for the Lumira backend. It
// serves the same HTTP surface with canned answers so the client can be run
// and tested without the retrieval stack.
package devserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ChatRequest mirrors the backend's chat payload.
type ChatRequest struct {
	Message    string `json:"message"`
	ActiveFile string `json:"active_file"`
}

// ReplyFunc returns the chunks streamed back for a chat request.
type ReplyFunc func(ChatRequest) []string

type Server struct {
	echo *echo.Echo

	reply      ReplyFunc
	chunkDelay time.Duration
	speech     []byte

	mu    sync.Mutex
	files map[string][]byte
}

type Option func(*Server)

func WithReply(reply ReplyFunc) Option {
	return func(s *Server) {
		if reply != nil {
			s.reply = reply
		}
	}
}

// WithChunkDelay pauses between streamed chunks.
func WithChunkDelay(delay time.Duration) Option {
	return func(s *Server) { s.chunkDelay = delay }
}

// WithSpeechAudio sets the bytes returned by /speak.
func WithSpeechAudio(audio []byte) Option {
	return func(s *Server) { s.speech = audio }
}

// WithRequestLog enables echo's request logger.
func WithRequestLog() Option {
	return func(s *Server) { s.echo.Use(middleware.Logger()) }
}

func New(opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:  e,
		reply: EchoReply,
		files: map[string][]byte{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.register()
	return s
}

// Handler exposes the server for httptest or http.Server.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until the server is shut down.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

// EchoReply answers with a short two sentence reply split mid-word.
func EchoReply(request ChatRequest) []string {
	answer := fmt.Sprintf("You asked: %s. I am the development backend, so I can only repeat it!", request.Message)
	if request.ActiveFile != "" {
		answer += fmt.Sprintf(" I would have looked in %s.", request.ActiveFile)
	}
	return splitEvery(answer, 7)
}

func splitEvery(text string, n int) []string {
	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 {
		size := min(n, len(runes))
		chunks = append(chunks, string(runes[:size]))
		runes = runes[size:]
	}
	return chunks
}

func (s *Server) register() {
	api := s.echo.Group("/api")
	s.echo.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "Lumira Backend Online"})
	})
	api.POST("/chat", s.chat)
	api.GET("/speak", s.speak)
	api.POST("/upload", s.upload)
	api.GET("/files", s.listFiles)
	api.DELETE("/files/:name", s.deleteFile)
}

func (s *Server) chat(c echo.Context) error {
	var request ChatRequest
	if err := c.Bind(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	res.WriteHeader(http.StatusOK)
	for _, chunk := range s.reply(request) {
		if _, err := io.WriteString(res, chunk); err != nil {
			return err
		}
		res.Flush()

		if s.chunkDelay > 0 {
			select {
			case <-c.Request().Context().Done():
				return nil
			case <-time.After(s.chunkDelay):
			}
		}
	}
	return nil
}

func (s *Server) speak(c echo.Context) error {
	if strings.TrimSpace(c.QueryParam("text")) == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "text is required")
	}
	return c.Blob(http.StatusOK, "audio/mpeg", s.speech)
}

func (s *Server) upload(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.files[header.Filename] = content
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]string{"status": "File uploaded successfully. Indexing in progress..."})
}

type fileEntry struct {
	Name   string `json:"name"`
	Size   string `json:"size"`
	Status string `json:"status"`
}

func (s *Server) listFiles(c echo.Context) error {
	s.mu.Lock()
	files := make([]fileEntry, 0, len(s.files))
	for name, content := range s.files {
		files = append(files, fileEntry{
			Name:   name,
			Size:   fmt.Sprintf("%.1f KB", float64(len(content))/1024),
			Status: "Active",
		})
	}
	s.mu.Unlock()
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return c.JSON(http.StatusOK, map[string][]fileEntry{"files": files})
}

func (s *Server) deleteFile(c echo.Context) error {
	name := c.Param("name")

	s.mu.Lock()
	delete(s.files, name)
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]string{"status": fmt.Sprintf("Deleted %s successfully", name)})
}
