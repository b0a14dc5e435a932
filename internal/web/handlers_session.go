package web

import (
	"context"
	"net/http"

	chamaWeb "github.com/MrEthical07/chamaWeb"
	"github.com/MrEthical07/chamaWeb/middleware"
	"github.com/MrEthical07/chamaWeb/session"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// ensureSession returns the request's session, creating the record and
// setting the cookie when there is none yet.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (*sessions.Session, error) {
	gs, err := s.cookies.Get(r, CookieName)
	if err != nil {
		return nil, err
	}
	if gs.IsNew {
		if err := s.cookies.Save(r, w, gs); err != nil {
			return nil, err
		}
	}
	return gs, nil
}

// existingSession returns the request's session record, or nil without one.
func (s *Server) existingSession(r *http.Request) (*sessions.Session, *session.Session, error) {
	gs, err := s.cookies.Get(r, CookieName)
	if err != nil {
		return nil, nil, err
	}
	rec, ok := Record(gs)
	if gs.IsNew || !ok {
		return gs, nil, nil
	}
	return gs, rec, nil
}

func (s *Server) sessionToken(r *http.Request) (string, bool) {
	_, rec, err := s.existingSession(r)
	if err != nil || rec == nil || rec.AccessToken == "" {
		return "", false
	}
	return rec.AccessToken, true
}

func (s *Server) requestContext(r *http.Request, sessionID string) context.Context {
	ctx := chamaWeb.WithClientIP(r.Context(), clientIP(r))
	ctx = chamaWeb.WithUserAgent(ctx, r.UserAgent())
	return chamaWeb.WithSessionID(ctx, sessionID)
}

// extendForToken aligns the record TTL with the freshly stored token.
func (s *Server) extendForToken(ctx context.Context, sessionID, token string) {
	if err := s.cookies.Extend(ctx, sessionID, s.engine.SessionTTL(token)); err != nil {
		s.log.Warn("session extend failed", zap.Error(err))
	}
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	_, rec, err := s.existingSession(r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}

	ctx := s.requestContext(r, rec.SessionID)
	result, err := s.engine.Bootstrap(ctx, s.engine.Sessions().Bind(rec.SessionID))
	if err != nil {
		s.log.Warn("bootstrap clear failed", zap.Error(err))
	}

	resp := map[string]interface{}{"authenticated": result == chamaWeb.BootstrapValid}
	if result == chamaWeb.BootstrapValid {
		resp["redirect"] = s.engine.Config().Handshake.RedirectTo
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	gs, rec, err := s.existingSession(r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	if rec != nil {
		s.registry.cancel(rec.SessionID)
	}
	gs.Options.MaxAge = -1
	if err := s.cookies.Save(r, w, gs); err != nil {
		s.log.Warn("logout delete failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	_, rec, err := s.existingSession(r)
	if err != nil || rec == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	user := map[string]string{"phone": rec.Phone}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok && claims.UserID != "" {
		user["user_id"] = claims.UserID
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}
