package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-scorm/services/content"
)

const brotliEncoding = "br"

// brotliMiddleware compresses compressible responses for clients accepting br.
// The decision is deferred until the handler has set the content type.
func brotliMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			if req.Method != http.MethodGet || !acceptsEncoding(req.Header.Get(echo.HeaderAcceptEncoding), brotliEncoding) {
				return next(ctx)
			}

			res := ctx.Response()
			res.Header().Add(echo.HeaderVary, echo.HeaderAcceptEncoding)
			bw := &brotliResponseWriter{ResponseWriter: res.Writer}
			res.Writer = bw
			defer func() {
				if err := bw.Close(); err != nil {
					ctx.Logger().Error(err)
				}
				res.Writer = bw.ResponseWriter
			}()
			return next(ctx)
		}
	}
}

type brotliResponseWriter struct {
	http.ResponseWriter
	bw          *brotli.Writer
	wroteHeader bool
}

func (w *brotliResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	h := w.Header()
	if code == http.StatusOK && h.Get(echo.HeaderContentEncoding) == "" && contentsvc.Compressible(h.Get(echo.HeaderContentType)) {
		h.Del(echo.HeaderContentLength)
		h.Set(echo.HeaderContentEncoding, brotliEncoding)
		w.bw = brotli.NewWriterLevel(w.ResponseWriter, brotli.DefaultCompression)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *brotliResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.bw != nil {
		return w.bw.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *brotliResponseWriter) Close() error {
	if w.bw == nil {
		return nil
	}
	return w.bw.Close()
}

// acceptsEncoding reports whether an Accept-Encoding header allows enc with a non-zero quality.
func acceptsEncoding(header, enc string) bool {
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(fields[0]), enc) {
			continue
		}
		for _, param := range fields[1:] {
			param = strings.TrimSpace(param)
			if strings.HasPrefix(param, "q=") {
				if q, err := strconv.ParseFloat(param[2:], 64); err == nil && q == 0 {
					return false
				}
			}
		}
		return true
	}
	return false
}
