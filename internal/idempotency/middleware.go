package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/logger"
)

const (
	HeaderKey   = "Idempotency-Key"
	maxKeyLen   = 255
	maxBodySize = 1 << 20
	pendingMark = "pending"
)

type record struct {
	State       string `json:"state"`
	Status      int    `json:"status,omitempty"`
	Body        string `json:"body,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// ErrorWriter renders a typed error; the HTTP layer supplies it.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// ScopeFunc narrows a key to the caller and route so two users can reuse the
// same key value.
type ScopeFunc func(r *http.Request) string

type Options struct {
	Store      Store
	TTL        time.Duration
	Scope      ScopeFunc
	WriteError ErrorWriter
	Logger     *logger.Logger
}

// Middleware replays the stored response for a repeated Idempotency-Key with
// the same body and rejects reuse with a different body. Requests without
// the header, or with no store configured, pass through.
func Middleware(opts Options) func(http.Handler) http.Handler {
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderKey))
			if opts.Store == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if len(key) > maxKeyLen {
				opts.WriteError(w, r, apperrors.Validation("Idempotency-Key too long", map[string]any{"max": maxKeyLen}))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					opts.WriteError(w, r, apperrors.Validation("request body too large", map[string]any{"max_bytes": maxBodySize}))
					return
				}
				opts.WriteError(w, r, apperrors.Wrap(apperrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			storeKey := key
			if opts.Scope != nil {
				storeKey = opts.Scope(r) + "|" + key
			}

			pending, _ := json.Marshal(record{State: pendingMark, RequestHash: requestHash})
			claimed, err := opts.Store.SetNX(r.Context(), storeKey, string(pending), ttl)
			if err != nil {
				opts.WriteError(w, r, apperrors.Wrap(apperrors.CodeDependency, err, "check idempotency"))
				return
			}

			if !claimed {
				replay(w, r, opts, storeKey, requestHash)
				return
			}

			// The outcome is recorded even when the client has gone away.
			bg := context.WithoutCancel(r.Context())
			settled := false
			defer func() {
				if settled {
					return
				}
				if err := opts.Store.Del(bg, storeKey); err != nil {
					logg.Error(bg, "release idempotency key", err)
				}
			}()

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.statusCode() >= http.StatusInternalServerError {
				return
			}

			payload, err := json.Marshal(record{
				State:       "done",
				Status:      rec.statusCode(),
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				ContentType: rec.Header().Get("Content-Type"),
				RequestHash: requestHash,
			})
			if err != nil {
				logg.Error(bg, "marshal idempotency record", err)
				return
			}
			if err := opts.Store.Set(bg, storeKey, string(payload), ttl); err != nil {
				logg.Error(bg, "persist idempotency record", err)
				return
			}
			settled = true
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, opts Options, storeKey, requestHash string) {
	stored, err := opts.Store.Get(r.Context(), storeKey)
	if errors.Is(err, ErrNotFound) {
		opts.WriteError(w, r, apperrors.New(apperrors.CodeConflict, "request with this Idempotency-Key is being retried, try again"))
		return
	}
	if err != nil {
		opts.WriteError(w, r, apperrors.Wrap(apperrors.CodeDependency, err, "check idempotency"))
		return
	}

	var rec record
	if err := json.Unmarshal([]byte(stored), &rec); err != nil {
		opts.WriteError(w, r, apperrors.Wrap(apperrors.CodeDependency, err, "decode idempotency record"))
		return
	}

	if rec.RequestHash != requestHash {
		opts.WriteError(w, r, apperrors.New(apperrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if rec.State == pendingMark {
		opts.WriteError(w, r, apperrors.New(apperrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}

	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(rec.Status)
	if decoded, err := base64.StdEncoding.DecodeString(rec.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
