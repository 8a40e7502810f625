package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счётчики сессионного слоя; отдаются через /metrics служебного HTTP.
var (
	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consultbot_api_requests_total",
		Help: "Authorized platform API requests by outcome.",
	}, []string{"outcome"}) // ok | retried | unauthorized | error

	tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consultbot_token_refresh_total",
		Help: "Refresh attempts by result.",
	}, []string{"result"}) // ok | relogin | failed

	logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consultbot_login_total",
		Help: "Login attempts by result.",
	}, []string{"result"}) // ok | not_registered | failed
)
