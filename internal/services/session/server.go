package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// CookieName carries the session ID between client and cluster
const CookieName = "SESSIONID"

const counterAttribute = "counter"

// Server is one node of a session cluster. Nodes created with the same Redis
// client share their sessions.
type Server struct {
	port             int
	scavengeInterval time.Duration
	manager          *Manager
	app              *fiber.App

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
	quit     chan struct{}
	done     sync.WaitGroup
}

// NewServer creates a cluster node listening on port (0 picks a free port).
// maxInterval and scavengeInterval are in seconds; evictionPolicy is
// NeverEvict, EvictOnSessionExit or an idle time in seconds.
func NewServer(port, maxInterval, scavengeInterval, evictionPolicy int, cache *redis.Client) *Server {
	s := &Server{
		port:             port,
		scavengeInterval: time.Duration(scavengeInterval) * time.Second,
		manager:          NewManager(cache, time.Duration(maxInterval)*time.Second, evictionPolicy),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "session-node",
		DisableStartupMessage: true,
	})
	s.app.Get("/session", s.handle)
	return s
}

// Manager returns the node's session manager
func (s *Server) Manager() *Manager {
	return s.manager
}

// Port returns the bound port once the server has started
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.port
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Start binds the port and serves requests in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("session server already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	s.listener = ln
	s.quit = make(chan struct{})

	go func() {
		if err := s.app.Listener(ln); err != nil {
			fiberlog.Errorf("[SESSION] Node stopped serving: %v", err)
		}
	}()

	if s.scavengeInterval > 0 {
		s.done.Add(1)
		go s.scavenge()
	}

	fiberlog.Infof("[SESSION] Node listening on %s", ln.Addr())
	return nil
}

// Stop shuts the node down; sessions stay in the shared cache
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.listener == nil || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.quit)
	s.mu.Unlock()

	s.done.Wait()
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

func (s *Server) scavenge() {
	defer s.done.Done()

	ticker := time.NewTicker(s.scavengeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.scavengeInterval)
			if n := s.manager.Scavenge(ctx); n > 0 {
				fiberlog.Debugf("[SESSION] Scavenged %d sessions", n)
			}
			cancel()
		}
	}
}

// handle serves /session?action=init|increment|test|invalidate
func (s *Server) handle(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Cookies(CookieName)
	defer s.manager.Release(id)

	switch action := c.Query("action"); action {
	case "init":
		session, err := s.manager.Create(ctx)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		session.Attributes[counterAttribute] = 1
		if err := s.manager.Save(ctx, session); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Cookie(&fiber.Cookie{Name: CookieName, Value: session.ID, Path: "/", HTTPOnly: true})
		defer s.manager.Release(session.ID)
		return c.SendString("1")

	case "increment":
		session, err := s.manager.Get(ctx, id)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if session == nil {
			return fiber.NewError(fiber.StatusNotFound, "no session")
		}
		session.Attributes[counterAttribute]++
		if err := s.manager.Save(ctx, session); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendString(strconv.Itoa(session.Attributes[counterAttribute]))

	case "invalidate":
		session, err := s.manager.Get(ctx, id)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if session == nil {
			return fiber.NewError(fiber.StatusNotFound, "no session")
		}
		if err := s.manager.Invalidate(ctx, id); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusOK)

	case "test":
		session, err := s.manager.Get(ctx, id)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if session == nil {
			return c.JSON(fiber.Map{"exists": false})
		}
		return c.JSON(fiber.Map{"exists": true, "counter": session.Attributes[counterAttribute]})

	default:
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown action %q", action))
	}
}
