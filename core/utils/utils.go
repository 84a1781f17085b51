package utils

import (
	"net/http"
	"strings"

	"github.com/saveblush/sismo-relay/core/generic"
)

// GetIP get the client's ip address
func GetIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	ip := strings.TrimSpace(strings.Split(xff, ",")[0])
	if !generic.IsEmpty(ip) {
		return ip
	}

	remoteAddr := r.RemoteAddr
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		return remoteAddr[:idx]
	}

	return remoteAddr
}

// MaskToken mask a credential for logging, keeps the last 4 characters
func MaskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}

	return "****" + token[len(token)-4:]
}
