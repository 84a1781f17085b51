package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/saveblush/sismo-relay/core/config"
	"github.com/saveblush/sismo-relay/core/utils/limiter"
	"github.com/saveblush/sismo-relay/pgk/alert"
)

// defaultBodyLimit receiver messages are tiny
const defaultBodyLimit = 64 * 1024

// RejectRequest policies checked before any handler; a reject writes the response itself
type RejectRequest []func(w http.ResponseWriter, r *http.Request) bool

// Info service summary shown on GET /
type Info struct {
	Name         string
	Version      string
	Environment  config.Environment
	MonitorUsers []string
}

type Server struct {
	serveMux *http.ServeMux
	alerts   alert.Service
	limiter  *limiter.IPRateLimiter

	Info              *Info
	VerificationToken string
	BodyLimit         int64
}

// NewServer new alert receiver
func NewServer(alerts alert.Service, cf *config.Configs) *Server {
	info := &Info{}
	copier.Copy(info, &cf.App)
	copier.Copy(info, &cf.Twitter)

	return &Server{
		serveMux: &http.ServeMux{},
		alerts:   alerts,
		limiter:  limiter.NewIPRateLimiter(rate.Limit(cf.App.RateLimit), cf.App.RateBurst),

		Info:              info,
		VerificationToken: cf.Alert.VerificationToken,
		BodyLimit:         defaultBodyLimit,
	}
}

func (sv *Server) Serve() *http.ServeMux {
	mux := sv.serveMux
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /notify/sassla", sv.guard(sv.handleNotify))
	mux.HandleFunc("GET /{$}", sv.guard(sv.showInfo))

	return mux
}

// guard run the reject policies before next
func (sv *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	rejectRequest := append(RejectRequest{}, sv.rejectRateLimited)

	return func(w http.ResponseWriter, r *http.Request) {
		for _, rejectFunc := range rejectRequest {
			if rejectFunc(w, r) {
				return
			}
		}
		next(w, r)
	}
}

// showInfo show text info
func (sv *Server) showInfo(w http.ResponseWriter, r *http.Request) {
	var str []string
	str = append(str, fmt.Sprintf("Name: %s", sv.Info.Name))
	str = append(str, fmt.Sprintf("Version: %s", sv.Info.Version))
	str = append(str, fmt.Sprintf("Environment: %s", sv.Info.Environment))
	str = append(str, fmt.Sprintf("Monitoring: %s", strings.Join(sv.Info.MonitorUsers, ", ")))
	str = append(str, fmt.Sprintf("Webhooks: %d", len(sv.alerts.Webhooks())))
	str = append(str, fmt.Sprintf("TestMode: %t", sv.alerts.TestMode()))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, strings.Join(str, "\n"))
}
