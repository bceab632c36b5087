package server

import (
	"encoding/json"
	"net/http"

	"github.com/i2-open/goSharedSignals/internal/authUtil"
	"github.com/i2-open/goSharedSignals/internal/model"

	"github.com/gorilla/mux"
)

func (sa *SignalsApplication) JwksJson(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	jsonKey := sa.Provider.GetPublicTransmitterJWKS(sa.DefIssuer)
	if jsonKey == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
	keyBytes, _ := jsonKey.MarshalJSON()
	_, _ = w.Write(keyBytes)
}

func (sa *SignalsApplication) JwksJsonIssuer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	issuer := vars["issuer"]

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")

	jsonKey := sa.Provider.GetPublicTransmitterJWKS(issuer)
	if jsonKey == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	keyBytes, _ := jsonKey.MarshalJSON()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(keyBytes)
}

/*
PollEvents implements the server side of RFC 8936 poll-based delivery. The
request's acks and setErrs are applied before new events are fetched so an
acknowledge-only request (maxEvents=0) settles the queue without receiving
anything.
*/
func (sa *SignalsApplication) PollEvents(w http.ResponseWriter, r *http.Request) {
	authCtx, status := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeEventDelivery})
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if authCtx == nil || authCtx.StreamId == "" {
		// The authorization token had no stream identifier in it
		w.WriteHeader(http.StatusForbidden)
		return
	}
	sid := authCtx.StreamId

	if _, err := sa.Provider.GetStreamState(sid); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	request := model.PollParameters{ReturnImmediately: false}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if len(request.Acks) > 0 || len(request.SetErrs) > 0 {
		serverLog.Printf("POLL-SRV[%s] Request: Acks=%d, Errs=%d", sid, len(request.Acks), len(request.SetErrs))
		sa.EventRouter.AckReceived(sid, request.Acks, request.SetErrs)
	}

	if request.IsAckOnly() {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.WriteHeader(http.StatusOK)
		respBytes, _ := json.Marshal(model.PollResponse{Sets: map[string]string{}})
		_, _ = w.Write(respBytes)
		return
	}

	wait := ""
	if !request.ReturnImmediately {
		wait = "Long "
	}
	serverLog.Printf("POLL-SRV[%s] %sPoll request...", sid, wait)

	sets, more := sa.EventRouter.PollStreamHandler(sid, request)
	if sets == nil {
		http.Error(w, "Stream not found or not ready", http.StatusNotFound)
		return
	}

	resp := model.PollResponse{
		Sets:          sets,
		MoreAvailable: more,
	}
	isMore := ""
	if more {
		isMore = "More available"
	}
	serverLog.Printf("POLL-SRV[%s] Returning %d SETs. %s", sid, len(sets), isMore)

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	respBytes, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		serverLog.Println("POLL-SRV Error serializing response: " + err.Error())
		return
	}
	_, _ = w.Write(respBytes)
}
