// Package simulator is a local stand-in for the chat gateway. It streams
// records over a WebSocket, records replies and answers queries from an
// embedded SQLite database.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lunabot/internal/domain"
)

// Config configures a Server.
type Config struct {
	Path   string // stream path, default /ws
	DBPath string // empty for an in-memory database
	Logger *slog.Logger
}

// Reply is a text reply received on /reply.
type Reply struct {
	ChatID  int64  `json:"chat_id"`
	Message string `json:"message"`
}

// MediaReply is one upload received on /reply_media.
type MediaReply struct {
	ChatID int64
	Media  []domain.Media
}

// Server implements the gateway's stream and REST surface.
type Server struct {
	path   string
	store  *Store
	logger *slog.Logger
	mux    *http.ServeMux

	mu      sync.RWMutex
	clients map[string]*wsClient

	recMu   sync.Mutex
	replies []Reply
	media   []MediaReply
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func New(cfg Config) (*Server, error) {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		path:    cfg.Path,
		store:   store,
		logger:  cfg.Logger.With("component", "simulator"),
		clients: make(map[string]*wsClient),
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc(cfg.Path, s.handleUpgrade)
	s.mux.HandleFunc("POST /reply", s.handleReply)
	s.mux.HandleFunc("POST /reply_media", s.handleReplyMedia)
	s.mux.HandleFunc("POST /query", s.handleQuery)
	s.mux.HandleFunc("POST /push", s.handlePush)
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.mux }

// Store exposes the query backend for seeding.
func (s *Server) Store() *Store { return s.store }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("simulator starting", "addr", addr, "path", s.path)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.DropClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.clients[id] = &wsClient{conn: conn}
	s.mu.Unlock()
	s.logger.Info("client connected", "client_id", id, "remote", r.RemoteAddr)

	defer func() {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		conn.Close()
		s.logger.Info("client disconnected", "client_id", id)
	}()

	// The stream is one-way; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "client_id", id, "err", err)
			}
			return
		}
	}
}

// Clients returns the number of connected stream clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// PushRaw sends frame to every connected client and returns how many
// received it.
func (s *Server) PushRaw(frame []byte) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sent := 0
	for id, c := range s.clients {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, frame)
		c.mu.Unlock()
		if err != nil {
			s.logger.Debug("websocket write failed", "client_id", id, "err", err)
			continue
		}
		sent++
	}
	return sent
}

// Push encodes rec and sends it to every connected client.
func (s *Server) Push(rec domain.RawChatLog) (int, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}
	return s.PushRaw(data), nil
}

// DropClients closes every stream connection without a close handshake.
func (s *Server) DropClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		c.conn.Close()
		delete(s.clients, id)
	}
}

// InsertChatLog stores a chat log so queries can find it.
func (s *Server) InsertChatLog(ctx context.Context, row ChatLogRow) error {
	return s.store.InsertChatLog(ctx, row)
}

func (s *Server) Replies() []Reply {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	return append([]Reply(nil), s.replies...)
}

func (s *Server) MediaReplies() []MediaReply {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	return append([]MediaReply(nil), s.media...)
}

func (s *Server) Close() error {
	s.DropClients()
	return s.store.Close()
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var reply Reply
	if err := json.NewDecoder(r.Body).Decode(&reply); err != nil {
		writeError(w, http.StatusBadRequest, "invalid reply body: "+err.Error())
		return
	}
	s.recMu.Lock()
	s.replies = append(s.replies, reply)
	s.recMu.Unlock()
	s.logger.Info("reply", "chat_id", reply.ChatID, "message", reply.Message)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleReplyMedia(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat_id")
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["media"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no media parts")
		return
	}

	rec := MediaReply{ChatID: chatID}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rec.Media = append(rec.Media, domain.Media{
			Data:     data,
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
		})
	}

	s.recMu.Lock()
	s.media = append(s.media, rec)
	s.recMu.Unlock()
	s.logger.Info("media reply", "chat_id", chatID, "parts", len(rec.Media))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
		Binds []any  `json:"binds"`
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid query body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	binds := make([]any, len(req.Binds))
	for i, b := range req.Binds {
		binds[i] = bindValue(b)
	}

	rows, err := s.store.Query(r.Context(), req.Query, binds)
	if err != nil {
		s.logger.Warn("query failed", "err", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// bindValue narrows JSON numbers to int64 where they are integral.
func bindValue(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// handlePush forwards a posted record to every stream client.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body is not valid JSON")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delivered": s.PushRaw(body)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
