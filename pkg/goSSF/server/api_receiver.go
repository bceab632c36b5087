package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/i2-open/goSharedSignals/internal/authUtil"
	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/internal/processor"
	"github.com/i2-open/goSharedSignals/pkg/goSet"

	"github.com/gorilla/mux"
)

/*
ReceiverCreate sets up or refreshes a receiver subscription. The record's
project comes from the authorization token; the alias identifies the
subscription within the project. A poll-mode subscription gets its background
poll client started immediately.
*/
func (sa *SignalsApplication) ReceiverCreate(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	var jsonRequest model.ReceiverRecord
	if err := json.NewDecoder(r.Body).Decode(&jsonRequest); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if jsonRequest.Alias == "" {
		http.Error(w, "Receiver alias is required", http.StatusBadRequest)
		return
	}
	jsonRequest.ProjectId = authCtx.ProjectId
	sa.defaultPushEndpoint(&jsonRequest)

	rec, err := sa.Receivers.CreateOrUpdate(&jsonRequest)
	if err != nil {
		serverLog.Printf("RCV[%s] Subscription setup failed: %s", jsonRequest.Alias, err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	sa.HandleReceiverClient(rec)

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusCreated)
	respBytes, _ := json.MarshalIndent(rec, "", "  ")
	_, _ = w.Write(respBytes)
}

func (sa *SignalsApplication) ReceiverList(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	recs := sa.Provider.ListReceivers(authCtx.ProjectId)
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	respBytes, _ := json.Marshal(recs)
	_, _ = w.Write(respBytes)
}

func (sa *SignalsApplication) ReceiverGet(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	alias := mux.Vars(r)["alias"]

	rec, err := sa.Provider.GetReceiver(authCtx.ProjectId, alias)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	respBytes, _ := json.MarshalIndent(rec, "", "  ")
	_, _ = w.Write(respBytes)
}

/*
ReceiverUpdate replaces the subscription identified by the path alias. The
stored record id and project are preserved so the poll client and cached keys
stay associated; a delivery mode change starts or stops the poll client.
*/
func (sa *SignalsApplication) ReceiverUpdate(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	alias := mux.Vars(r)["alias"]

	existing, err := sa.Provider.GetReceiver(authCtx.ProjectId, alias)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var jsonRequest model.ReceiverRecord
	if err := json.NewDecoder(r.Body).Decode(&jsonRequest); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonRequest.Alias = alias
	jsonRequest.ProjectId = authCtx.ProjectId
	jsonRequest.Id = existing.Id
	sa.defaultPushEndpoint(&jsonRequest)

	rec, err := sa.Receivers.CreateOrUpdate(&jsonRequest)
	if err != nil {
		serverLog.Printf("RCV[%s] Subscription update failed: %s", alias, err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	sa.HandleReceiverClient(rec)

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	respBytes, _ := json.MarshalIndent(rec, "", "  ")
	_, _ = w.Write(respBytes)
}

func (sa *SignalsApplication) ReceiverDelete(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	alias := mux.Vars(r)["alias"]

	rec, err := sa.Provider.GetReceiver(authCtx.ProjectId, alias)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	sa.CloseReceiverClient(rec.Id)

	if err := sa.Receivers.Remove(authCtx.ProjectId, alias); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ReceiverVerify asks the remote transmitter to emit a verification event for
// the subscription's stream.
func (sa *SignalsApplication) ReceiverVerify(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	alias := mux.Vars(r)["alias"]

	rec, err := sa.Provider.GetReceiver(authCtx.ProjectId, alias)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	state, err := sa.Receivers.RequestVerification(rec)
	if err != nil {
		serverLog.Printf("RCV[%s] Verification request failed: %s", rec.Id, err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusAccepted)
	respBytes, _ := json.Marshal(map[string]string{"state": state})
	_, _ = w.Write(respBytes)
}

// defaultPushEndpoint fills in this server's push ingress URL for a push-mode
// subscription that did not specify one.
func (sa *SignalsApplication) defaultPushEndpoint(rec *model.ReceiverRecord) {
	if rec.Method != model.DeliveryPush || rec.PushEndpointUrl != "" || sa.BaseUrl == nil {
		return
	}
	rec.PushEndpointUrl = strings.TrimSuffix(sa.BaseUrl.String(), "/") + "/push/" + rec.Alias
}

func (sa *SignalsApplication) findReceiverByAlias(alias string) *model.ReceiverRecord {
	for _, rec := range sa.Provider.ListReceivers("") {
		if rec.Alias == alias {
			recCopy := rec
			return &recCopy
		}
	}
	return nil
}

/*
ReceivePushEvent is the receiver-side push ingress per RFC 8935. The alias
identifies the local subscription; its configured push token authenticates the
transmitter. Validation order is fixed: unknown alias, authentication, token
parse, issuer, audience, then event processing.
*/
func (sa *SignalsApplication) ReceivePushEvent(w http.ResponseWriter, r *http.Request) {
	alias := mux.Vars(r)["alias"]

	rec := sa.findReceiverByAlias(alias)
	if rec == nil {
		serverLog.Printf("PUSH-RCV[%s] No subscription for alias", alias)
		processPushError(w, http.StatusNotFound, model.ErrorInvalidRequest, "No receiver registered for "+alias)
		return
	}

	if !pushAuthorized(r, rec) {
		serverLog.Printf("PUSH-RCV[%s] Authorization failed", rec.Id)
		processPushError(w, http.StatusUnauthorized, model.ErrorAuthenticationFailed, "The authorization was not successfully validated")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.EqualFold("application/secevent+jwt", contentType) {
		serverLog.Printf("PUSH-RCV[%s] Invalid content type: %s", rec.Id, contentType)
		processPushError(w, http.StatusBadRequest, model.ErrorInvalidRequest, "Expecting Content-Type application/secevent+jwt")
		return
	}

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		processPushError(w, http.StatusBadRequest, model.ErrorInvalidRequest, "Expecting body with Content-Type application/secevent+jwt")
		return
	}
	tokenString := string(bodyBytes)

	jwks := sa.Provider.GetReceiverJwks(rec.Id)
	token, err := goSet.Parse(tokenString, jwks)
	if err != nil {
		serverLog.Printf("PUSH-RCV[%s] Parsing error: %s", rec.Id, err.Error())
		processPushError(w, http.StatusBadRequest, model.ErrorInvalidRequest, "The request could not be parsed as a SET.")
		return
	}

	if rec.Iss != "" && !token.VerifyIssuer(rec.Iss, true) {
		serverLog.Printf("PUSH-RCV[%s] Invalid issuer: %s does not match %s", rec.Id, token.Issuer, rec.Iss)
		processPushError(w, http.StatusBadRequest, model.ErrorInvalidIssuer, "The SET Issuer is invalid for the SET Recipient.")
		return
	}

	if len(rec.Aud) > 0 {
		audMatch := false
		for _, value := range rec.Aud {
			if token.VerifyAudience(value, false) {
				audMatch = true
				break
			}
		}
		if !audMatch {
			serverLog.Printf("PUSH-RCV[%s] Audience not matched: %v", rec.Id, token.Audience)
			processPushError(w, http.StatusBadRequest, model.ErrorInvalidAudience, "The SET Audience does not correspond to the SET Recipient")
			return
		}
	}

	outcome, err := sa.Processor.Process(r.Context(), token, rec)
	switch outcome {
	case processor.OutcomeOk:
		serverLog.Printf("PUSH-RCV[%s] Accepted %s", rec.Id, token.ID)
		w.WriteHeader(http.StatusAccepted)

	case processor.OutcomeParsingError, processor.OutcomeVerificationMismatch:
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		processPushError(w, http.StatusBadRequest, outcome.ErrorCode(), detail)

	default:
		detail := fmt.Sprintf("Event processing failed for %s", token.ID)
		if err != nil {
			detail = err.Error()
		}
		processPushError(w, http.StatusInternalServerError, outcome.ErrorCode(), detail)
	}
}

func pushAuthorized(r *http.Request, rec *model.ReceiverRecord) bool {
	if rec.PushAuthorizationToken == "" {
		return true
	}
	presented := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
	expected := strings.TrimSpace(strings.TrimPrefix(rec.PushAuthorizationToken, "Bearer"))
	return presented == expected
}

func processPushError(w http.ResponseWriter, status int, errorCode string, msg string) {
	respBody := model.SetDeliveryErr{
		ErrCode:     errorCode,
		Description: msg,
	}
	responseBytes, _ := json.MarshalIndent(respBody, "", "  ")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(responseBytes)
}
