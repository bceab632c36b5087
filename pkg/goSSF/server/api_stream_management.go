package server

/*
api_stream_management.go implements the SSF stream management API on the
transmitter side: stream CRUD, status, verification trigger, and the
well-known discovery document. These endpoints require an authorization token
carrying a project id and (for stream-scoped operations) a stream id.
*/
import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/i2-open/goSharedSignals/internal/authUtil"
	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/pkg/goEvent"

	"github.com/gorilla/mux"
)

func (sa *SignalsApplication) StreamCreate(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeRegister, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	var jsonRequest model.StreamConfiguration
	if err := json.NewDecoder(r.Body).Decode(&jsonRequest); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	configResp, err := sa.Provider.CreateStream(jsonRequest, authCtx.ProjectId)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Update the event router
	state, _ := sa.Provider.GetStreamState(configResp.Id)
	sa.EventRouter.UpdateStreamState(state)

	serverLog.Printf("Stream %s CREATED", configResp.Id)

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusCreated)
	respBytes, _ := json.MarshalIndent(sa.adjustBaseUrl(configResp), "", "  ")
	_, _ = w.Write(respBytes)
}

func (sa *SignalsApplication) StreamGet(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if authCtx.StreamId == "" {
		// The authorization token had no stream identifier in it
		w.WriteHeader(http.StatusForbidden)
		return
	}

	config, err := sa.Provider.GetStream(authCtx.StreamId)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	serverLog.Printf("Stream GET %s", authCtx.StreamId)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	resp, _ := json.Marshal(sa.adjustBaseUrl(*config))
	_, _ = w.Write(resp)
}

func (sa *SignalsApplication) StreamUpdate(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	var jsonRequest model.StreamConfiguration
	if err := json.NewDecoder(r.Body).Decode(&jsonRequest); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	streamId := authCtx.StreamId
	if streamId == "" {
		streamId = jsonRequest.Id
	}
	// The PUT/PATCH body carries the stream id, re-check against the token
	if !authCtx.Eat.IsAuthorized(streamId, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin}) {
		http.Error(w, "Stream identifier not authorized", http.StatusForbidden)
		return
	}

	configResp, err := sa.Provider.UpdateStream(streamId, authCtx.ProjectId, jsonRequest)
	if err != nil || configResp == nil {
		if err != nil && err.Error() == "not found" || configResp == nil && err == nil {
			http.Error(w, "No stream found", http.StatusNotFound)
			return
		}
		http.Error(w, "Stream id invalid for authorization", http.StatusUnauthorized)
		return
	}

	// Update the event router
	state, _ := sa.Provider.GetStreamState(streamId)
	sa.EventRouter.UpdateStreamState(state)

	serverLog.Printf("Stream %s UPDATED", streamId)

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	respBytes, _ := json.MarshalIndent(sa.adjustBaseUrl(*configResp), "", "  ")
	_, _ = w.Write(respBytes)
}

func (sa *SignalsApplication) StreamDelete(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if authCtx.StreamId == "" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	serverLog.Printf("Stream %s DELETE requested.", authCtx.StreamId)

	// Stop any outbound activity before dropping state
	sa.EventRouter.RemoveStream(authCtx.StreamId)

	if err := sa.Provider.DeleteStream(authCtx.StreamId); err != nil {
		if err.Error() == "not found" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	serverLog.Printf("Stream %s inactivated and deleted.", authCtx.StreamId)
}

func (sa *SignalsApplication) GetStatus(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if authCtx.StreamId == "" {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	streamStatus, err := sa.Provider.GetStatus(authCtx.StreamId)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	resp, _ := json.Marshal(*streamStatus)
	_, _ = w.Write(resp)
}

func (sa *SignalsApplication) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if authCtx.StreamId == "" {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var jsonRequest model.StreamStatus
	if err := json.NewDecoder(r.Body).Decode(&jsonRequest); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	streamState, err := sa.Provider.GetStreamState(authCtx.StreamId)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if jsonRequest.Status != "" && streamState.Status != jsonRequest.Status {
		switch jsonRequest.Status {
		case model.StreamStatusEnabled, model.StreamStatusPaused, model.StreamStatusDisabled:
			sa.Provider.UpdateStreamStatus(authCtx.StreamId, jsonRequest.Status, jsonRequest.Reason)
			updated, _ := sa.Provider.GetStreamState(authCtx.StreamId)
			if updated != nil {
				sa.EventRouter.UpdateStreamState(updated)
			}
		default:
			http.Error(w, "Invalid status value", http.StatusBadRequest)
			return
		}
	}

	statusResp, _ := sa.Provider.GetStatus(authCtx.StreamId)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	respBytes, _ := json.MarshalIndent(statusResp, "", "  ")
	_, _ = w.Write(respBytes)
}

/*
VerificationRequest implements the transmitter side of the verification
handshake: the receiver posts its stream id and chosen state, and the
transmitter synthesizes a verification event routed through the normal
delivery path. Requests arriving faster than the stream's minimum verification
interval are rejected with 429.
*/
func (sa *SignalsApplication) VerificationRequest(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeEventDelivery})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	var jsonRequest model.VerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&jsonRequest); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sid := jsonRequest.StreamId
	if sid == "" {
		sid = authCtx.StreamId
	}
	if sid == "" || !authCtx.Eat.IsAuthorized(sid, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeEventDelivery}) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	state, err := sa.Provider.GetStreamState(sid)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if !sa.verificationAllowed(sid, state.MinVerificationInterval) {
		serverLog.Printf("Stream %s verification request throttled", sid)
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	token := goEvent.CreateVerificationEvent(sid, jsonRequest.State, state.Iss, state.Aud)
	if _, err := sa.EventRouter.HandleEvent(&token, token.String()); err != nil {
		serverLog.Printf("Stream %s verification event failed: %s", sid, err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	serverLog.Printf("Stream %s verification event queued", sid)
	w.WriteHeader(http.StatusNoContent)
}

func (sa *SignalsApplication) verificationAllowed(sid string, minIntervalSecs int) bool {
	if minIntervalSecs <= 0 {
		return true
	}
	sa.mu.Lock()
	defer sa.mu.Unlock()
	if sa.lastVerification == nil {
		sa.lastVerification = map[string]time.Time{}
	}
	if last, ok := sa.lastVerification[sid]; ok {
		if time.Since(last) < time.Duration(minIntervalSecs)*time.Second {
			return false
		}
	}
	sa.lastVerification[sid] = time.Now()
	return true
}

func replaceBase(original string, baseUrl *url.URL) string {
	originalUrl, err := url.Parse(original)
	if err != nil {
		return original
	}
	if baseUrl == nil {
		return original
	}
	if originalUrl.Host != "" && originalUrl.IsAbs() {
		return original
	}

	modifiedUrl := *originalUrl
	modifiedUrl.Scheme = baseUrl.Scheme
	modifiedUrl.Host = baseUrl.Host
	return modifiedUrl.String()
}

// adjustBaseUrl rewrites relative delivery endpoints against the server's
// public base URL so receivers get absolute URLs.
func (sa *SignalsApplication) adjustBaseUrl(config model.StreamConfiguration) model.StreamConfiguration {
	res := config
	switch config.Delivery.GetMethod() {
	case model.DeliveryPoll:
		endpoint := res.Delivery.PollDeliveryMethod.EndpointUrl
		res.Delivery.PollDeliveryMethod.EndpointUrl = replaceBase(endpoint, sa.BaseUrl)
	case model.DeliveryPush:
		endpoint := res.Delivery.PushDeliveryMethod.EndpointUrl
		res.Delivery.PushDeliveryMethod.EndpointUrl = replaceBase(endpoint, sa.BaseUrl)
	default:
	}
	return res
}

func (sa *SignalsApplication) getTransmitterConfig() *model.TransmitterConfiguration {
	var jwksUri, configUri, statusUri, verifyUri string
	if sa.BaseUrl != nil {
		if u, err := sa.BaseUrl.Parse("/jwks.json"); err == nil {
			jwksUri = u.String()
		}
		if u, err := sa.BaseUrl.Parse("/stream"); err == nil {
			configUri = u.String()
		}
		if u, err := sa.BaseUrl.Parse("/status"); err == nil {
			statusUri = u.String()
		}
		if u, err := sa.BaseUrl.Parse("/verification"); err == nil {
			verifyUri = u.String()
		}
	} else {
		jwksUri = "/jwks.json"
		configUri = "/stream"
		statusUri = "/status"
		verifyUri = "/verification"
	}

	return &model.TransmitterConfiguration{
		Issuer:  sa.DefIssuer,
		JwksUri: jwksUri,
		DeliveryMethodsSupported: []string{
			model.DeliveryPoll,
			model.DeliveryPush,
		},
		ConfigurationEndpoint: configUri,
		StatusEndpoint:        statusUri,
		VerificationEndpoint:  verifyUri,
	}
}

func (sa *SignalsApplication) WellKnownSsfConfigurationGet(w http.ResponseWriter, _ *http.Request) {
	serverLog.Println("GET WellKnownSsfConfiguration")
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	resp, _ := json.Marshal(sa.getTransmitterConfig())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func (sa *SignalsApplication) WellKnownSsfConfigurationIssuerGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	issuer := vars["issuer"]
	serverLog.Printf("GET WellKnownSsfConfiguration/%s", issuer)

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	config := sa.getTransmitterConfig()
	config.Issuer = issuer
	if sa.BaseUrl != nil {
		if u, err := sa.BaseUrl.Parse("/jwks/" + issuer); err == nil {
			config.JwksUri = u.String()
		}
	} else {
		config.JwksUri = "/jwks/" + issuer
	}

	resp, _ := json.Marshal(config)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}
