package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nftmarket/gateway/middleware"
)

const (
	HeaderKey      = "Idempotency-Key"
	headerReplayed = "Idempotent-Replayed"
	maxKeyLength   = 255
	maxBodyBytes   = 1 << 20
	// statusPending marks a key whose first request is still being served.
	statusPending = 0
	// pendingTimeout bounds how long an abandoned reservation blocks its key.
	pendingTimeout = time.Minute
)

var (
	// ErrMismatch is returned when a key is reused with a different request.
	ErrMismatch = errors.New("idempotency key reuse with different request body")
	// ErrInFlight is returned while the first request for a key is running.
	ErrInFlight = errors.New("idempotency key in use by a request still in progress")
)

// StoredResponse is the response replayed for a repeated key.
type StoredResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// Store keeps the first response produced for every idempotency key.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// Open creates or opens the sqlite database at path. Entries older than ttl
// are pruned as new ones are written; a non-positive ttl keeps them forever.
func Open(path string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("idempotency: path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)
	if logger == nil {
		logger = slog.Default()
	}
	store := &Store{db: db, ttl: ttl, logger: logger.With("component", "idempotency"), now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS idempotency_keys (
            scope TEXT NOT NULL,
            idempotency_key TEXT NOT NULL,
            request_hash TEXT NOT NULL,
            response_status INTEGER NOT NULL,
            content_type TEXT NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL,
            PRIMARY KEY(scope, idempotency_key)
        );`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the stored response for key, nil when the key is new,
// ErrMismatch when it was used for a different request, or ErrInFlight while
// it is reserved.
func (s *Store) Lookup(ctx context.Context, scope, key, requestHash string) (*StoredResponse, error) {
	const query = `SELECT response_status, content_type, response_body, request_hash FROM idempotency_keys WHERE scope = ? AND idempotency_key = ?`
	row := s.db.QueryRowContext(ctx, query, scope, key)
	var (
		resp       StoredResponse
		storedHash string
	)
	err := row.Scan(&resp.Status, &resp.ContentType, &resp.Body, &storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if storedHash != requestHash {
		return nil, ErrMismatch
	}
	if resp.Status == statusPending {
		return nil, ErrInFlight
	}
	return &resp, nil
}

// Reserve claims key for the request identified by requestHash. A nil
// response with a nil error means the caller now owns the key and must
// finish with Save or Release. Otherwise the stored response, ErrMismatch or
// ErrInFlight is returned.
func (s *Store) Reserve(ctx context.Context, scope, key, requestHash string) (*StoredResponse, error) {
	now := s.now().UTC()
	const stale = `DELETE FROM idempotency_keys WHERE scope = ? AND idempotency_key = ? AND response_status = ? AND created_at < ?`
	if _, err := s.db.ExecContext(ctx, stale, scope, key, statusPending, now.Add(-pendingTimeout)); err != nil {
		return nil, err
	}
	const claim = `INSERT OR IGNORE INTO idempotency_keys(scope, idempotency_key, request_hash, response_status, content_type, response_body, created_at) VALUES (?, ?, ?, ?, '', x'', ?)`
	res, err := s.db.ExecContext(ctx, claim, scope, key, requestHash, statusPending, now)
	if err != nil {
		return nil, err
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if claimed == 1 {
		return nil, nil
	}
	resp, err := s.Lookup(ctx, scope, key, requestHash)
	if err == nil && resp == nil {
		// Pruned between the insert and the lookup.
		return nil, ErrInFlight
	}
	return resp, err
}

// Release drops a reservation that produced no storable response.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	const stmt = `DELETE FROM idempotency_keys WHERE scope = ? AND idempotency_key = ? AND response_status = ?`
	_, err := s.db.ExecContext(ctx, stmt, scope, key, statusPending)
	return err
}

// Save records the response for key, completing a reservation if one is
// held. The first completed response wins.
func (s *Store) Save(ctx context.Context, scope, key, requestHash string, resp StoredResponse) error {
	const stmt = `INSERT INTO idempotency_keys(scope, idempotency_key, request_hash, response_status, content_type, response_body, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(scope, idempotency_key) DO UPDATE SET
            response_status = excluded.response_status,
            content_type = excluded.content_type,
            response_body = excluded.response_body,
            created_at = excluded.created_at
        WHERE idempotency_keys.response_status = 0 AND idempotency_keys.request_hash = excluded.request_hash`
	if resp.Status == statusPending {
		return fmt.Errorf("idempotency: response status required")
	}
	now := s.now().UTC()
	body := resp.Body
	if body == nil {
		body = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, stmt, scope, key, requestHash, resp.Status, resp.ContentType, body, now); err != nil {
		return err
	}
	if s.ttl > 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < ?`, now.Add(-s.ttl)); err != nil {
			return err
		}
	}
	return nil
}

// Middleware replays the stored response when a request repeats an
// Idempotency-Key. Requests without the header pass through. The key is
// reserved before the handler runs so a concurrent duplicate gets 409. Only
// responses below 500 are stored so transient failures may be retried.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderKey))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxKeyLength {
			writeError(w, http.StatusBadRequest, "Idempotency-Key too long")
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read request body")
			return
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		scope := requestScope(r)
		hash := hashRequest(r, body)
		cached, err := s.Reserve(r.Context(), scope, key, hash)
		switch {
		case errors.Is(err, ErrMismatch):
			writeError(w, http.StatusConflict, ErrMismatch.Error())
			return
		case errors.Is(err, ErrInFlight):
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusConflict, ErrInFlight.Error())
			return
		case err != nil:
			s.logger.Error("idempotency lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "idempotency store unavailable")
			return
		case cached != nil:
			if cached.ContentType != "" {
				w.Header().Set("Content-Type", cached.ContentType)
			}
			w.Header().Set(headerReplayed, "true")
			w.WriteHeader(cached.Status)
			_, _ = w.Write(cached.Body)
			return
		}

		saved := false
		defer func() {
			if saved {
				return
			}
			if err := s.Release(context.WithoutCancel(r.Context()), scope, key); err != nil {
				s.logger.Error("idempotency release failed", "error", err)
			}
		}()

		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if recorder.status >= http.StatusInternalServerError {
			return
		}
		resp := StoredResponse{
			Status:      recorder.status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
		}
		if err := s.Save(context.WithoutCancel(r.Context()), scope, key, hash, resp); err != nil {
			s.logger.Error("idempotency save failed", "error", err)
			return
		}
		saved = true
	})
}

// requestScope keeps keys of different callers apart.
func requestScope(r *http.Request) string {
	if caller, ok := middleware.CallerFromContext(r.Context()); ok {
		return strings.ToLower(caller.Hex())
	}
	return "anonymous"
}

func hashRequest(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
	wrote  bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.wrote = true
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "{\"error\":%q}", message)
}
