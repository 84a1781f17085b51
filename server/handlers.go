package server

import (
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/saveblush/sismo-relay/core/generic"
	"github.com/saveblush/sismo-relay/core/utils"
	"github.com/saveblush/sismo-relay/core/utils/logger"
	"github.com/saveblush/sismo-relay/models"
)

// receiver replies, senders match on the exact text
const (
	msgBadBody     = "bad body format."
	msgInvalidBody = "invalid body format."
	msgInvalidCode = "invalid signal code."
)

// handleNotify receive SASSLA signals
func (sv *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if !sv.authorized(r) {
		logger.Log.Warnf("unauthorized notify from %s", utils.GetIP(r))
		sv.response(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, sv.BodyLimit))
	if err != nil || !json.Valid(body) || gjson.ParseBytes(body).Type == gjson.Null {
		sv.response(w, http.StatusBadRequest, msgBadBody)
		return
	}

	code := gjson.GetBytes(body, "message.code")
	if code.Type != gjson.String {
		logger.Log.Errorf("received a message with an invalid body format. request body: %s", body)
		sv.response(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	switch models.SignalCode(code.Str) {
	case models.SignalEarthquake:
		sv.alerts.Trigger(r.Context(), models.Signal{})
	case models.SignalTest:
		if sv.alerts.TestMode() {
			sv.alerts.Trigger(r.Context(), models.Signal{Test: true})
		}
	default:
		logger.Log.Warnf("received unknown signal code: %q", code.Str)
		sv.response(w, http.StatusBadRequest, msgInvalidCode)
		return
	}

	sv.response(w, http.StatusOK, "OK")
}

// authorized header must be key=<verification token>
func (sv *Server) authorized(r *http.Request) bool {
	if generic.IsEmpty(sv.VerificationToken) {
		return false
	}
	want := fmt.Sprintf("key=%s", sv.VerificationToken)

	return subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) == 1
}

func (sv *Server) response(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, msg)
}
