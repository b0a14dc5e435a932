package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/chamaWeb/internal"
	"github.com/MrEthical07/chamaWeb/session"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// CookieName is the browser session cookie.
const CookieName = "chama.sid"

const recordKey = "record"

// CookieStore is a gorilla [sessions.Store] whose cookie carries only a
// signed and encrypted session ID. The record lives in Redis through
// [session.Store]. Save creates the record for new sessions and otherwise only
// refreshes the cookie; record fields change through session.Store.Update.
type CookieStore struct {
	records *session.Store
	codecs  []securecookie.Codec
	options sessions.Options
	maxAge  time.Duration
}

// NewCookieStore returns a store keyed by keys.
func NewCookieStore(records *session.Store, keys internal.CookieKeys, maxAge time.Duration, secure bool) *CookieStore {
	codecs := securecookie.CodecsFromPairs(keys.Hash, keys.Block)
	for _, c := range codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(int(maxAge / time.Second))
		}
	}

	return &CookieStore{
		records: records,
		codecs:  codecs,
		maxAge:  maxAge,
		options: sessions.Options{
			Path:     "/",
			MaxAge:   int(maxAge / time.Second),
			Secure:   secure,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// Get returns the session cached for this request, loading it on first use.
func (s *CookieStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New loads the session named by the request cookie. A missing, forged or
// expired cookie yields a fresh session with IsNew set.
func (s *CookieStore) New(r *http.Request, name string) (*sessions.Session, error) {
	gs := sessions.NewSession(s, name)
	opts := s.options
	gs.Options = &opts
	gs.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return gs, nil
	}

	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.codecs...); err != nil {
		return gs, nil
	}

	rec, err := s.records.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrInvalidID) {
			return gs, nil
		}
		return gs, err
	}

	gs.ID = id
	gs.IsNew = false
	gs.Values[recordKey] = rec
	return gs, nil
}

// Save writes the cookie. A negative MaxAge deletes the record and expires
// the cookie.
func (s *CookieStore) Save(r *http.Request, w http.ResponseWriter, gs *sessions.Session) error {
	ctx := r.Context()

	if gs.Options.MaxAge < 0 {
		if gs.ID != "" {
			if err := s.records.Delete(ctx, gs.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(gs.Name(), "", gs.Options))
		return nil
	}

	if gs.ID == "" {
		rec := &session.Session{SessionID: session.NewID()}
		if err := s.records.Save(ctx, rec, s.maxAge); err != nil {
			return err
		}
		gs.ID = rec.SessionID
		gs.Values[recordKey] = rec
	}

	encoded, err := securecookie.EncodeMulti(gs.Name(), gs.ID, s.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(gs.Name(), encoded, gs.Options))
	return nil
}

// Record returns the Redis record loaded with gs, if any.
func Record(gs *sessions.Session) (*session.Session, bool) {
	rec, ok := gs.Values[recordKey].(*session.Session)
	return rec, ok
}

// Extend pushes the record TTL to ttl.
func (s *CookieStore) Extend(ctx context.Context, id string, ttl time.Duration) error {
	return s.records.Extend(ctx, id, ttl)
}
