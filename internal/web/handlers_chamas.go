package web

import (
	"errors"
	"net/http"

	chamaWeb "github.com/MrEthical07/chamaWeb"
	"github.com/MrEthical07/chamaWeb/middleware"
	"go.uber.org/zap"
)

func (s *Server) handleChamas(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())

	chamas, err := s.engine.MyChamas(r.Context(), token)
	if err != nil {
		if errors.Is(err, chamaWeb.ErrUnauthorized) {
			s.clearToken(r)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		s.log.Warn("chamas unavailable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to load chamas")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chamas": chamas})
}
