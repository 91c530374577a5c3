package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voicenotes-go/internal/pipeline"
)

const identityKey = "identity"

func CORS() gin.HandlerFunc {
	config := cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Trace-Id", "X-Webhook-Secret"},
		AllowCredentials: true,
	}
	return cors.New(config)
}

func RequestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"trace":    pipeline.TraceFrom(c.Request.Context()),
		}).Info("request")
	}
}

func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// TraceID adopts the caller's X-Trace-Id or mints one, stores it on the
// request context and echoes it on the response.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		trace := c.GetHeader("X-Trace-Id")
		if trace == "" {
			trace = uuid.New().String()
		}
		c.Request = c.Request.WithContext(pipeline.WithTrace(c.Request.Context(), trace))
		c.Header("X-Trace-Id", trace)
		c.Next()
	}
}

// Auth requires a valid bearer token and stashes the identity on the gin
// context.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"ok":      false,
				"code":    "unauthorized",
				"message": "missing bearer token",
			})
			return
		}
		id, err := VerifyToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"ok":      false,
				"code":    "unauthorized",
				"message": "invalid token",
			})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) Identity {
	id, _ := c.Get(identityKey)
	ident, _ := id.(Identity)
	return ident
}

// WebhookAuth gates provider callbacks on a shared secret header. An empty
// configured secret disables the check for local development.
func WebhookAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" {
			got := c.GetHeader("X-Webhook-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"ok":      false,
					"code":    "unauthorized",
					"message": "bad webhook secret",
				})
				return
			}
		}
		c.Next()
	}
}
