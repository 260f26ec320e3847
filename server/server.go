// Package server exposes search and recommendation over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/shelf/internal/models"
	"github.com/xhad/shelf/pkg/llm"
	"github.com/xhad/shelf/pkg/moderation"
)

// Message types sent to clients.
const (
	TypeQuery     = "query"
	TypeHits      = "hits"
	TypeNoResults = "no_results"
	TypeStream    = "stream"
	TypeResponse  = "response"
	TypeSummary   = "summary"
	TypeBlocked   = "blocked"
	TypeError     = "error"
)

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	K       int         `json:"k,omitempty"`
	Title   string      `json:"title,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]models.SearchHit, error)
}

type Recommender interface {
	Recommend(ctx context.Context, query string, hits []models.SearchHit) (*llm.Recommendation, error)
	RecommendStream(ctx context.Context, query string, hits []models.SearchHit) (<-chan llm.StreamChunk, error)
}

type Summaries interface {
	SummaryByTitle(title string) (string, bool)
}

type Config struct {
	Addr      string
	Streaming bool
	DefaultK  int
	MaxK      int
}

type WSServer struct {
	config      Config
	searcher    Searcher
	recommender Recommender
	summaries   Summaries
	moderator   moderation.Moderator
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

// NewWSServer builds the server. A nil moderator lets every query through.
func NewWSServer(config Config, searcher Searcher, recommender Recommender, summaries Summaries, moderator moderation.Moderator, logger *zap.Logger) (*WSServer, error) {
	if searcher == nil || recommender == nil || summaries == nil {
		return nil, fmt.Errorf("searcher, recommender and summaries are required")
	}
	if moderator == nil {
		moderator = moderation.Noop{}
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxK == 0 {
		config.MaxK = 5
	}
	if config.DefaultK == 0 {
		config.DefaultK = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WSServer{
		config:      config,
		searcher:    searcher,
		recommender: recommender,
		summaries:   summaries,
		moderator:   moderator,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *WSServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting websocket server", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	c := &conn{ws: ws}
	ctx := r.Context()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(c, Message{Type: TypeError, Content: "invalid message"})
			continue
		}

		s.handleMessage(ctx, c, msg)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, c *conn, msg Message) {
	if msg.Type != "" && msg.Type != TypeQuery {
		s.sendMessage(c, Message{Type: TypeError, Content: fmt.Sprintf("unsupported message type %q", msg.Type)})
		return
	}

	query := strings.TrimSpace(msg.Content)
	if query == "" {
		s.sendMessage(c, Message{Type: TypeError, Content: "query is empty"})
		return
	}

	k := msg.K
	if k == 0 {
		k = s.config.DefaultK
	}
	if k < 1 || k > s.config.MaxK {
		s.sendMessage(c, Message{Type: TypeError, Content: fmt.Sprintf("k must be between 1 and %d", s.config.MaxK)})
		return
	}

	if !moderation.Allow(ctx, s.moderator, query, s.logger) {
		s.sendMessage(c, Message{Type: TypeBlocked, Content: "query blocked by the content filter, please rephrase"})
		return
	}

	hits, err := s.searcher.Search(ctx, query, k)
	if err != nil {
		s.logger.Warn("search failed", zap.Error(err))
		s.sendMessage(c, Message{Type: TypeError, Content: fmt.Sprintf("Error querying books: %v", err)})
		return
	}
	if len(hits) == 0 {
		s.sendMessage(c, Message{Type: TypeNoResults, Content: "no matching books"})
		return
	}
	s.sendMessage(c, Message{Type: TypeHits, Data: hits})

	var title, text string
	if s.config.Streaming {
		stream, err := s.recommender.RecommendStream(ctx, query, hits)
		if err != nil {
			s.sendMessage(c, Message{Type: TypeError, Content: fmt.Sprintf("Error: %v", err)})
			return
		}

		var b strings.Builder
		var streamErr error
		for chunk := range stream {
			if chunk.Err != nil {
				streamErr = chunk.Err
				continue
			}
			b.WriteString(chunk.Text)
			s.sendMessage(c, Message{Type: TypeStream, Content: chunk.Text})
		}
		if streamErr != nil {
			s.sendMessage(c, Message{Type: TypeError, Content: fmt.Sprintf("Error: %v", streamErr)})
			return
		}
		text = strings.TrimSpace(b.String())
		title = llm.MatchTitle(text, hits)
	} else {
		rec, err := s.recommender.Recommend(ctx, query, hits)
		if err != nil {
			s.sendMessage(c, Message{Type: TypeError, Content: fmt.Sprintf("Error: %v", err)})
			return
		}
		title, text = rec.Title, rec.Text
	}

	s.sendMessage(c, Message{Type: TypeResponse, Content: text, Title: title})

	if title == "" {
		return
	}
	if summary, ok := s.summaries.SummaryByTitle(title); ok {
		s.sendMessage(c, Message{Type: TypeSummary, Content: summary, Title: title})
	}
}

func (s *WSServer) sendMessage(c *conn, msg Message) {
	if err := c.send(msg); err != nil {
		s.logger.Debug("error sending message", zap.String("type", msg.Type), zap.Error(err))
	}
}
