// Package watchserver broadcasts a repository's working-tree status over a
// WebSocket to any connected client whenever the working directory or
// repository metadata changes, so a browser-based status view never has
// to poll.
package watchserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/poslevkusie7/caf/internal/cafcore"
)

const (
	debounceTime = 100 * time.Millisecond
	statusPoll   = 2 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true }, // local-only server
	EnableCompression: true,
}

// Server watches one repository and fans its status out to WebSocket
// clients connected at "/ws".
type Server struct {
	repo   *cafcore.Repository
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	lastStatus []byte
}

// New returns a Server watching repo. Call Start to begin the filesystem
// watch loop, and use Handler for the HTTP mux.
func New(repo *cafcore.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{repo: repo, logger: logger, clients: make(map[*websocket.Conn]bool)}
}

// Handler returns the "/ws" HTTP handler.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	initial := s.lastStatus
	s.mu.Unlock()

	if initial != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
		conn.WriteMessage(websocket.TextMessage, initial) //nolint:errcheck
	}

	go s.readPump(conn)
}

// readPump exists only to notice the client disconnecting; this server
// never expects inbound messages.
func (s *Server) readPump(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close() //nolint:errcheck
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) broadcast(payload []byte) {
	s.mu.Lock()
	s.lastStatus = payload
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.logger.Debug("dropping client", "err", err)
		}
	}
}

// Start runs the filesystem watch and status-poll loops until ctx is
// cancelled. It watches the repository's metadata directory (refs, HEAD)
// via fsnotify for ref changes, and separately polls the working
// directory, since plain file edits never touch metadata.
func (s *Server) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close() //nolint:errcheck

	if err := watchTree(watcher, s.repo.MetaDir(), s.logger); err != nil {
		s.logger.Warn("failed to watch metadata directory", "err", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pollLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.watchLoop(ctx, watcher)
	}()
	wg.Wait()
	return nil
}

func watchTree(watcher *fsnotify.Watcher, root string, logger *slog.Logger) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		if info.IsDir() {
			if addErr := watcher.Add(path); addErr != nil {
				logger.Warn("failed to watch directory", "dir", path, "err", addErr)
			}
		}
		return nil
	})
}

func (s *Server) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceTime, func() { s.publishStatus() })
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("watcher error", "err", err)
		}
	}
}

func (s *Server) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(statusPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishStatus()
		}
	}
}

func (s *Server) publishStatus() {
	files, err := s.repo.Status()
	if err != nil {
		s.logger.Error("computing status", "err", err)
		return
	}
	payload, err := json.Marshal(files)
	if err != nil {
		return
	}

	s.mu.Lock()
	unchanged := s.lastStatus != nil && string(payload) == string(s.lastStatus)
	s.mu.Unlock()
	if unchanged {
		return
	}
	s.broadcast(payload)
}
