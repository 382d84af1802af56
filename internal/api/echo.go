package api

import (
	"fmt"
	"io"

	"github.com/Egham-7/adaptive-h1/pkg/spi"
)

// EchoHandler returns an SPI handler that sends the request body back
func EchoHandler() spi.Handler {
	return spi.HandlerFunc(func(ex spi.HTTPExchange) error {
		body, err := io.ReadAll(ex.RequestBody())
		if err != nil {
			return fmt.Errorf("failed to read request body: %w", err)
		}

		contentType := ex.RequestHeaders().Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		headers := ex.ResponseHeaders()
		headers.Set("Content-Type", contentType)
		headers.Set("X-Echo-Method", ex.RequestMethod())
		headers.Set("X-Echo-Protocol", ex.Protocol())
		headers.Set("X-Echo-Context", ex.HTTPContext().Path)

		length := int64(len(body))
		if length == 0 {
			length = spi.NoBodyLength
		}
		if err := ex.SendResponseHeaders(200, length); err != nil {
			return err
		}
		if length > 0 {
			_, err = ex.ResponseBody().Write(body)
		}
		return err
	})
}
