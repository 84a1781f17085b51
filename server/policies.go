package server

import (
	"net/http"

	"github.com/saveblush/sismo-relay/core/utils"
	"github.com/saveblush/sismo-relay/core/utils/logger"
)

// rejectRateLimited reject clients over the per-IP rate
func (sv *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request) bool {
	ip := utils.GetIP(r)
	if sv.limiter.Allow(ip) {
		return false
	}

	logger.Log.Warnf("too many requests from %s", ip)
	sv.response(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))

	return true
}
