package api

import (
	"bufio"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Egham-7/adaptive-h1/internal/models"
	"github.com/Egham-7/adaptive-h1/internal/services/stream/contracts"
	"github.com/Egham-7/adaptive-h1/internal/services/stream/handlers"
	"github.com/Egham-7/adaptive-h1/internal/services/stream/writers"
	"github.com/Egham-7/adaptive-h1/pkg/client"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Response headers that describe the upstream hop rather than the body
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
}

// Request headers forwarded upstream
var forwardedHeaders = []string{"Accept", "Accept-Language", "User-Agent", "X-Request-ID"}

// FetchHandler streams an upstream response to the caller through the engine
type FetchHandler struct {
	client *client.Client
}

// NewFetchHandler creates a fetch handler backed by c
func NewFetchHandler(c *client.Client) *FetchHandler {
	return &FetchHandler{client: c}
}

// Fetch handles GET /v1/fetch?target=<url>[&timeout_ms=<n>]. Each body fragment
// is acknowledged upstream only after it was flushed to the caller.
func (h *FetchHandler) Fetch(c *fiber.Ctx) error {
	reqID := requestID(c)

	target := c.Query("target")
	if target == "" {
		return writeError(c, models.NewValidationError("target query parameter is required", nil))
	}

	req, err := h.client.NewRequestURL(target)
	if err != nil {
		return writeError(c, models.NewValidationError(err.Error(), err))
	}

	if raw := c.Query("timeout_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return writeError(c, models.NewValidationError("timeout_ms must be a positive integer", err))
		}
		req.Timeout(time.Duration(ms) * time.Millisecond)
	}

	for _, name := range forwardedHeaders {
		if v := c.Get(name); v != "" {
			req.Header(name, v)
		}
	}

	destination := req.Destination()
	fiberlog.Infof("[%s] Fetching %s", reqID, target)

	relay := handlers.NewRelay(reqID, destination)
	relay.Attach(req).Send(relay.OnComplete)

	resp, failure, err := relay.AwaitHeaders(c.UserContext())
	if err != nil {
		fiberlog.Warnf("[%s] Gave up waiting for %s: %v", reqID, destination, err)
		return writeError(c, models.NewTimeoutError("fetch "+destination, err))
	}
	if failure != nil {
		fiberlog.Warnf("[%s] Fetch from %s failed: %v", reqID, destination, failure)
		return writeError(c, exchangeAppError(destination, failure))
	}

	c.Status(resp.Status)
	copyResponseHeaders(c, resp.Headers)
	c.Set("X-Upstream-Body-Mode", resp.BodyMode())

	fctx := c.Context()
	downstream := writers.NewRequestCtxDownstream(fctx)
	fctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		writer := writers.NewFlushWriter(w, downstream, reqID)
		err := relay.Stream(context.Background(), writer)
		switch {
		case contracts.IsDisconnected(err):
			fiberlog.Infof("[%s] Caller went away after %d bytes", reqID, relay.Relayed())
		case !contracts.IsExpected(err):
			fiberlog.Warnf("[%s] Relay from %s ended early: %v", reqID, destination, err)
		default:
			fiberlog.Debugf("[%s] Relayed %d bytes from %s", reqID, relay.Relayed(), destination)
		}
	})

	return nil
}

func copyResponseHeaders(c *fiber.Ctx, headers http.Header) {
	header := &c.Response().Header
	for name, values := range headers {
		if hopHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		header.Del(name)
		for _, v := range values {
			header.Add(name, v)
		}
	}
}
