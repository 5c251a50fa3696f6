package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// cookieClaims is the signed payload of the access cookie.
type cookieClaims struct {
	jwt.RegisteredClaims
	GradeIDs []string `json:"grades"`
}

// CookieCodec signs and verifies access cookies with HMAC-SHA256.
type CookieCodec struct {
	name   string
	secret []byte
	Secure bool
}

// NewCookieCodec creates a codec for the named cookie.
func NewCookieCodec(name string, secret []byte) *CookieCodec {
	return &CookieCodec{name: name, secret: secret, Secure: true}
}

// Name returns the cookie name.
func (c *CookieCodec) Name() string {
	return c.name
}

// Load reads the request's access cookie into a request-scoped store. A
// missing, expired or tampered cookie yields an empty store; Err reports why.
func (c *CookieCodec) Load(r *http.Request) *CookieStore {
	store := &CookieStore{codec: c}

	cookie, err := r.Cookie(c.name)
	if err != nil {
		return store
	}

	entry, err := c.decode(cookie.Value)
	if err != nil {
		store.loadErr = err
		// drop the bad cookie on the next flush
		store.dirty = true
		return store
	}
	store.entry = entry
	return store
}

func (c *CookieCodec) encode(e Entry, ttl time.Duration) (string, error) {
	claims := cookieClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   e.UserID,
			IssuedAt:  jwt.NewNumericDate(e.CachedAt),
			ExpiresAt: jwt.NewNumericDate(e.CachedAt.Add(ttl)),
		},
		GradeIDs: e.GradeIDs,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *CookieCodec) decode(raw string) (*Entry, error) {
	var claims cookieClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("access cookie: %w", err)
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, errors.New("access cookie: missing subject or issued-at")
	}
	return &Entry{
		UserID:   claims.Subject,
		GradeIDs: claims.GradeIDs,
		CachedAt: claims.IssuedAt.Time,
	}, nil
}

// CookieStore is a client-held EntryStore scoped to one request. It holds a
// single entry whatever the key; changes reach the client through Flush.
type CookieStore struct {
	codec   *CookieCodec
	mu      sync.Mutex
	entry   *Entry
	ttl     time.Duration
	dirty   bool
	loadErr error
}

// Err returns why the incoming cookie was rejected, if it was.
func (s *CookieStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

func (s *CookieStore) Get(_ context.Context, _ string) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return nil, false, nil
	}
	e := *s.entry
	e.GradeIDs = append([]string(nil), s.entry.GradeIDs...)
	return &e, true, nil
}

func (s *CookieStore) Set(_ context.Context, entry Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = &entry
	s.ttl = ttl
	s.dirty = true
	return nil
}

func (s *CookieStore) Delete(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = nil
	s.dirty = true
	return nil
}

// Flush writes the changed entry (or its removal) as a Set-Cookie header.
// It must run before the response header is written.
func (s *CookieStore) Flush(w http.ResponseWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	s.dirty = false

	cookie := &http.Cookie{
		Name:     s.codec.name,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.codec.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if s.entry == nil {
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
		return nil
	}

	value, err := s.codec.encode(*s.entry, s.ttl)
	if err != nil {
		return fmt.Errorf("sign access cookie: %w", err)
	}
	cookie.Value = value
	cookie.MaxAge = int(s.ttl / time.Second)
	http.SetCookie(w, cookie)
	return nil
}
