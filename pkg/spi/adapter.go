package spi

import (
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Adapt mounts handler as a fiber route. Requests received over TLS get an
// HTTPSExchange.
func Adapt(httpCtx *HTTPContext, handler Handler) fiber.Handler {
	if httpCtx == nil {
		httpCtx = &HTTPContext{Path: "/"}
	}

	return func(c *fiber.Ctx) error {
		delegate := newExchangeDelegate(c, httpCtx)

		var ex HTTPExchange = &httpExchange{delegate}
		if c.Context().IsTLS() {
			ex = &httpsExchange{delegate}
		}

		if err := handler.Handle(ex); err != nil {
			_ = ex.Close()
			return err
		}
		if err := ex.Close(); err != nil {
			fiberlog.Warnf("SPI handler for %s left the exchange incomplete: %v", httpCtx.Path, err)
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return nil
	}
}
