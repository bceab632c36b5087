package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

type Routes []Route

// NewRouter builds the HTTP surface: transmitter endpoints (streams, poll,
// verification, JWKS, discovery), receiver endpoints (subscriptions, push
// ingress), and operational endpoints (metrics, health).
func NewRouter(sa *SignalsApplication) *mux.Router {
	routes := Routes{
		// Discovery and keys
		{"WellKnownSsfConfiguration", http.MethodGet, "/.well-known/ssf-configuration", sa.WellKnownSsfConfigurationGet},
		{"WellKnownSsfConfigurationIssuer", http.MethodGet, "/.well-known/ssf-configuration/{issuer}", sa.WellKnownSsfConfigurationIssuerGet},
		{"JwksJson", http.MethodGet, "/jwks.json", sa.JwksJson},
		{"JwksJsonIssuer", http.MethodGet, "/jwks/{issuer}", sa.JwksJsonIssuer},
		{"JwksCreateIssuer", http.MethodPost, "/jwks/{issuer}", sa.CreateJwksIssuer},

		// Transmitter stream management
		{"StreamCreate", http.MethodPost, "/stream", sa.StreamCreate},
		{"StreamGet", http.MethodGet, "/stream", sa.StreamGet},
		{"StreamUpdatePut", http.MethodPut, "/stream", sa.StreamUpdate},
		{"StreamUpdatePatch", http.MethodPatch, "/stream", sa.StreamUpdate},
		{"StreamDelete", http.MethodDelete, "/stream", sa.StreamDelete},
		{"StreamStatusGet", http.MethodGet, "/status", sa.GetStatus},
		{"StreamStatusUpdate", http.MethodPost, "/status", sa.UpdateStatus},
		{"VerificationRequest", http.MethodPost, "/verification", sa.VerificationRequest},

		// Transmitter delivery
		{"PollEvents", http.MethodPost, "/poll", sa.PollEvents},
		{"PollEventsStream", http.MethodPost, "/poll/{id}", sa.PollEvents},

		// Client registration
		{"RegisterClient", http.MethodPost, "/register", sa.RegisterClient},
		{"IssueProjectIat", http.MethodGet, "/iat", sa.IssueProjectIat},

		// Receiver subscriptions
		{"ReceiverCreate", http.MethodPost, "/receivers", sa.ReceiverCreate},
		{"ReceiverList", http.MethodGet, "/receivers", sa.ReceiverList},
		{"ReceiverGet", http.MethodGet, "/receivers/{alias}", sa.ReceiverGet},
		{"ReceiverUpdate", http.MethodPut, "/receivers/{alias}", sa.ReceiverUpdate},
		{"ReceiverDelete", http.MethodDelete, "/receivers/{alias}", sa.ReceiverDelete},
		{"ReceiverVerify", http.MethodPost, "/receivers/{alias}/verify", sa.ReceiverVerify},

		// Receiver push ingress (RFC 8935)
		{"ReceivePushEvent", http.MethodPost, "/push/{alias}", sa.ReceivePushEvent},

		{"HealthCheck", http.MethodGet, "/health", sa.Health},
	}

	router := mux.NewRouter().StrictSlash(true)
	router.Use(PrometheusHttpMiddleware)
	for _, route := range routes {
		router.Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(route.HandlerFunc)
	}
	router.Path("/metrics").Handler(promhttp.Handler())
	return router
}

func (sa *SignalsApplication) Health(w http.ResponseWriter, _ *http.Request) {
	if !sa.HealthCheck() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
