package middleware

import (
	"compress/gzip"
	"strings"

	"github.com/gin-gonic/gin"
)

// Bodies below this size are served uncompressed.
const compressionThreshold = 1024

// Compression gzips responses for clients that accept it. The decision
// is made on the first body write so small responses skip the encoder
// entirely.
func Compression() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		gz := gzip.NewWriter(c.Writer)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")

		writer := &gzipWriter{ResponseWriter: c.Writer, gz: gz}
		c.Writer = writer

		c.Next()

		if writer.compressed {
			gz.Close()
		}
	}
}

type gzipWriter struct {
	gin.ResponseWriter
	gz         *gzip.Writer
	decided    bool
	compressed bool
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	if !g.decided {
		g.decided = true
		g.compressed = len(data) >= compressionThreshold
		if !g.compressed {
			g.Header().Del("Content-Encoding")
		}
	}

	if g.compressed {
		return g.gz.Write(data)
	}
	return g.ResponseWriter.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}
