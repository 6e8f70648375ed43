package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// GzipRequestMiddleware decompresses request bodies sent with
// Content-Encoding gzip. Other encodings except identity are answered with
// 415, and gzip bodies that fail to open with 400.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			gzipped, ok := requestEncoding(req.Header.Get(echo.HeaderContentEncoding))
			if !ok {
				return echo.NewHTTPError(http.StatusUnsupportedMediaType, "unsupported content encoding")
			}
			if gzipped {
				if err := gunzipBody(req); err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
				}
			}
			return next(c)
		}
	}
}

// requestEncoding reports whether the body is gzip compressed and whether
// every listed coding is one the API understands.
func requestEncoding(header string) (gzipped, ok bool) {
	for _, coding := range strings.Split(header, ",") {
		switch strings.ToLower(strings.TrimSpace(coding)) {
		case "", "identity":
		case "gzip", "x-gzip":
			if gzipped {
				return false, false
			}
			gzipped = true
		default:
			return false, false
		}
	}
	return gzipped, true
}

// gunzipBody swaps req.Body for a decompressing reader that closes both
// streams.
func gunzipBody(req *http.Request) error {
	zr, err := gzip.NewReader(req.Body)
	if err != nil {
		_ = req.Body.Close()
		return err
	}
	req.Body = gunzipReader{zr: zr, raw: req.Body}
	req.ContentLength = -1
	req.Header.Del(echo.HeaderContentEncoding)
	req.Header.Del(echo.HeaderContentLength)
	return nil
}

type gunzipReader struct {
	zr  *gzip.Reader
	raw io.ReadCloser
}

func (g gunzipReader) Read(p []byte) (int, error) { return g.zr.Read(p) }

func (g gunzipReader) Close() error {
	zerr := g.zr.Close()
	if err := g.raw.Close(); err != nil {
		return err
	}
	return zerr
}
