// Package server wires the CRM storage, query cache, and MCP surface into
// one service lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rolodexhq/rolodex/internal/platform/config"
	"github.com/rolodexhq/rolodex/internal/services/crm/domain"
	"github.com/rolodexhq/rolodex/internal/services/crm/queries"
	crmsqlite "github.com/rolodexhq/rolodex/internal/services/crm/storage/sqlite"
)

const (
	serverName    = "Rolodex CRM"
	serverVersion = "0.1.0"
)

// sweep policy for idle query cache handles

const (
	defaultSweepInterval = time.Minute
	defaultSweepMaxIdle  = 5 * time.Minute
)

type serverEnv struct {
	DBPath        string        `env:"ROLODEX_CRM_DB_PATH"`
	SweepInterval time.Duration `env:"ROLODEX_CRM_SWEEP_INTERVAL"`
	SweepMaxIdle  time.Duration `env:"ROLODEX_CRM_SWEEP_MAX_IDLE"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "crm.db")
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.SweepMaxIdle <= 0 {
		cfg.SweepMaxIdle = defaultSweepMaxIdle
	}
	return cfg
}

// Server hosts the CRM MCP surface and its storage lifecycle.
type Server struct {
	mcpServer *mcp.Server
	store     *crmsqlite.Store
	queries   *queries.Queries

	sweepInterval time.Duration
	sweepMaxIdle  time.Duration

	watchMu   sync.Mutex
	watchRoot context.Context
	watchStop context.CancelFunc
	watches   map[string]context.CancelFunc
}

// New creates a configured CRM server backed by the SQLite store at dbPath.
// An empty path falls back to environment configuration.
func New(dbPath string) (*Server, error) {
	srvEnv := loadServerEnv()
	if strings.TrimSpace(dbPath) == "" {
		dbPath = srvEnv.DBPath
	}
	store, err := crmsqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open crm store at %s: %w", dbPath, err)
	}
	server, err := newServer(store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	server.sweepInterval = srvEnv.SweepInterval
	server.sweepMaxIdle = srvEnv.SweepMaxIdle
	return server, nil
}

// newServer builds the MCP tool/resource bindings over an open store.
func newServer(store *crmsqlite.Store) (*Server, error) {
	q, err := queries.New(store)
	if err != nil {
		return nil, fmt.Errorf("create query layer: %w", err)
	}

	watchRoot, watchStop := context.WithCancel(context.Background())
	server := &Server{
		store:         store,
		queries:       q,
		sweepInterval: defaultSweepInterval,
		sweepMaxIdle:  defaultSweepMaxIdle,
		watchRoot:     watchRoot,
		watchStop:     watchStop,
		watches:       make(map[string]context.CancelFunc),
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{
		SubscribeHandler:   server.subscribeResource,
		UnsubscribeHandler: server.unsubscribeResource,
	})
	server.mcpServer = mcpServer

	mcp.AddTool(mcpServer, domain.ContactCreateTool(), domain.ContactCreateHandler(q))
	mcp.AddTool(mcpServer, domain.ContactGetTool(), domain.ContactGetHandler(q))
	mcp.AddTool(mcpServer, domain.ContactListTool(), domain.ContactListHandler(q))
	mcp.AddTool(mcpServer, domain.ContactUpdateTool(), domain.ContactUpdateHandler(q))
	mcp.AddTool(mcpServer, domain.ContactDeleteTool(), domain.ContactDeleteHandler(q))
	mcp.AddTool(mcpServer, domain.ContactTagTool(), domain.ContactTagHandler(q))
	mcp.AddTool(mcpServer, domain.NoteAddTool(), domain.NoteAddHandler(q))
	mcp.AddTool(mcpServer, domain.NoteListTool(), domain.NoteListHandler(q))
	mcp.AddTool(mcpServer, domain.NoteDeleteTool(), domain.NoteDeleteHandler(q))

	mcpServer.AddResourceTemplate(domain.ContactListResourceTemplate(), domain.ContactListResourceHandler(q))
	mcpServer.AddResourceTemplate(domain.ContactResourceTemplate(), domain.ContactResourceHandler(q))
	mcpServer.AddResourceTemplate(domain.NoteListResourceTemplate(), domain.NoteListResourceHandler(q))

	return server, nil
}

// notifyResource pushes a resource-updated notification to connected clients.
func (s *Server) notifyResource(ctx context.Context, uri string) {
	if strings.TrimSpace(uri) == "" {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.mcpServer.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: uri}); err != nil {
		log.Printf("resource updated notify failed: uri=%s err=%v", uri, err)
	}
}

// subscribeResource starts forwarding cache refresh signals for the
// subscribed URI as resource-updated notifications.
func (s *Server) subscribeResource(_ context.Context, req *mcp.SubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	uri := req.Params.URI

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if _, ok := s.watches[uri]; ok {
		return nil
	}

	watchCtx, cancel := context.WithCancel(s.watchRoot)
	s.watches[uri] = cancel
	go func() {
		if err := domain.WatchResource(watchCtx, s.queries, uri, s.notifyResource); err != nil {
			log.Printf("resource watch failed: uri=%s err=%v", uri, err)
		}
	}()
	return nil
}

// unsubscribeResource stops the watcher for the unsubscribed URI.
func (s *Server) unsubscribeResource(_ context.Context, req *mcp.UnsubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if cancel, ok := s.watches[req.Params.URI]; ok {
		cancel()
		delete(s.watches, req.Params.URI)
	}
	return nil
}

// sweepLoop evicts idle, unreferenced query cache handles until ctx ends.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.queries.Sweep(s.sweepMaxIdle); removed > 0 {
				log.Printf("query cache sweep removed %d idle handles", removed)
			}
		}
	}
}

// Run creates and serves a CRM server until context cancellation.
func Run(ctx context.Context, dbPath string) error {
	server, err := New(dbPath)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// serveWithTransport runs the MCP server over the provided transport. The
// server and its store share a single exit path.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return errors.New("server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweepLoop(sweepCtx)

	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	closeErr := s.Close()
	if closeErr != nil {
		if err == nil {
			return fmt.Errorf("close crm store: %w", closeErr)
		}
		return errors.Join(err, closeErr)
	}
	return err
}

// Close stops resource watchers and releases the store.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	s.watchMu.Lock()
	s.watchStop()
	s.watches = make(map[string]context.CancelFunc)
	s.watchMu.Unlock()

	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}
