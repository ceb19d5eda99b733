package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/domain/repository"
	"github.com/sangkips/tillsync/internal/logger"
	"github.com/sangkips/tillsync/internal/presentation/http/dto/response"
	"github.com/sangkips/tillsync/pkg/apperror"
)

const (
	// IdempotencyKeyHeader is the HTTP header for idempotency keys
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency store
	ReplayedHeader = "X-Idempotency-Replayed"
	// IdempotencyKeyTTL is how long keys are valid
	IdempotencyKeyTTL = 24 * time.Hour
	// IdempotencyPendingTTL bounds a reservation whose request never finished
	IdempotencyPendingTTL = time.Minute
)

// IdempotencyConfig holds configuration for the idempotency middleware
type IdempotencyConfig struct {
	Repo repository.IdempotencyRepository
}

// responseWriter wraps gin.ResponseWriter to capture the response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a request arrives again with
// the same Idempotency-Key from the same user. The key is reserved before the
// handler runs, so a concurrent duplicate gets 409 instead of running twice.
// Reusing a key with a different body is rejected. Conflicts and server
// errors release the key so the client can retry them.
func Idempotency(config IdempotencyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > 255 {
			response.Error(c, apperror.NewFieldError(IdempotencyKeyHeader, "must be at most 255 characters"))
			c.Abort()
			return
		}
		userIDValue, _ := c.Get(UserIDKey)
		userID, ok := userIDValue.(uuid.UUID)
		if !ok {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.BadRequest(c, "Unable to read request body")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		hash := hex.EncodeToString(sum[:])
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)

		existing, err := config.Repo.GetByKey(ctx, key, userID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if existing != nil && existing.IsExpired() {
			if err := config.Repo.Delete(ctx, existing.ID); err != nil {
				response.Error(c, err)
				c.Abort()
				return
			}
			existing = nil
		}
		if existing != nil {
			if existing.RequestHash != hash || existing.Endpoint != endpoint(c) {
				response.Error(c, apperror.NewFieldError(IdempotencyKeyHeader, "key was already used for a different request"))
				c.Abort()
				return
			}
			if existing.IsPending() {
				response.Error(c, apperror.ErrIdempotencyInProgress)
				c.Abort()
				return
			}
			c.Header(ReplayedHeader, "true")
			c.Data(existing.ResponseCode, "application/json; charset=utf-8", []byte(existing.ResponseBody))
			c.Abort()
			return
		}

		ikey := &entity.IdempotencyKey{
			Key:         key,
			UserID:      userID,
			Endpoint:    endpoint(c),
			RequestHash: hash,
			ExpiresAt:   time.Now().Add(IdempotencyPendingTTL),
		}
		reserved, err := config.Repo.Reserve(ctx, ikey)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !reserved {
			response.Error(c, apperror.ErrIdempotencyInProgress)
			c.Abort()
			return
		}

		stored := false
		defer func() {
			if stored {
				return
			}
			if err := config.Repo.Delete(context.WithoutCancel(ctx), ikey.ID); err != nil {
				log.Warn().Err(err).Str("idempotency_key", key).Msg("failed to release idempotency key")
			}
		}()

		blw := &responseWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		status := c.Writer.Status()
		if status >= 500 || status == http.StatusConflict {
			return
		}
		ikey.ResponseCode = status
		ikey.ResponseBody = blw.body.String()
		ikey.ExpiresAt = time.Now().Add(IdempotencyKeyTTL)
		if err := config.Repo.Complete(ctx, ikey); err != nil {
			log.Warn().Err(err).Str("idempotency_key", key).Msg("failed to store idempotent response")
			return
		}
		stored = true
	}
}

func endpoint(c *gin.Context) string {
	return c.Request.Method + " " + c.Request.URL.Path
}
