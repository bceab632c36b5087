package server

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"

	"github.com/i2-open/goSharedSignals/internal/authUtil"
	"github.com/i2-open/goSharedSignals/internal/model"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

/*
IssueProjectIat generates an initial access token usable at the registration
endpoint. Each token carries a unique project id and the `reg` scope. When an
existing authorization with admin scope is presented, the existing project id
is reused so fresh IATs can be minted for the same project.
*/
func (sa *SignalsApplication) IssueProjectIat(w http.ResponseWriter, r *http.Request) {
	authCtx, _ := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamAdmin})
	projectIat, err := sa.Auth.IssueProjectIat(authCtx)
	if err != nil {
		serverLog.Printf("Error generating IAT: %s", err.Error())
		http.Error(w, "Error generating project IAT", http.StatusInternalServerError)
		return
	}
	response := model.RegisterResponse{Token: projectIat}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	regBytes, _ := json.Marshal(response)
	_, _ = w.Write(regBytes)
}

/*
CreateJwksIssuer generates a signing key pair for the named issuer and returns
the PEM-encoded private key. Tools hold the PEM so they can sign SETs delivered
to a push endpoint out of band.
*/
func (sa *SignalsApplication) CreateJwksIssuer(w http.ResponseWriter, r *http.Request) {
	authCtx, stat := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeStreamAdmin, authUtil.ScopeRoot})
	if stat != http.StatusOK || authCtx == nil {
		http.Error(w, "Invalid permission", http.StatusForbidden)
		return
	}
	issuer := mux.Vars(r)["issuer"]

	issuerKey := sa.Provider.CreateIssuerJwkKeyPair(issuer, authCtx.ProjectId)
	if issuerKey == nil {
		http.Error(w, "Unable to generate issuer key", http.StatusInternalServerError)
		return
	}

	pkcs8bytes, _ := x509.MarshalPKCS8PrivateKey(issuerKey)
	keyPemBytes := pem.EncodeToMemory(
		&pem.Block{
			Type:  "PRIVATE KEY",
			Bytes: pkcs8bytes,
		})

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(keyPemBytes)
}

/*
RegisterClient is used where no external OAuth infrastructure manages access.
A client presenting a valid IAT is issued an administrative token usable for
stream and receiver management in its project.
*/
func (sa *SignalsApplication) RegisterClient(w http.ResponseWriter, r *http.Request) {
	authCtx, stat := sa.Auth.ValidateAuthorization(r, []string{authUtil.ScopeRegister})
	if stat != http.StatusOK {
		serverLog.Printf("ERROR: Issued token was not validated: HTTP Status %d", stat)
		http.Error(w, "Failed to register client. Invalid registration token", stat)
		return
	}

	var jsonRequest model.RegisterParameters
	if err := json.NewDecoder(r.Body).Decode(&jsonRequest); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var scopes []string
	if len(jsonRequest.Scopes) == 0 {
		scopes = append(scopes, authUtil.ScopeStreamMgmt, authUtil.ScopeEventDelivery)
	} else {
		for _, v := range jsonRequest.Scopes {
			switch v {
			case authUtil.ScopeStreamMgmt, authUtil.ScopeStreamAdmin, authUtil.ScopeEventDelivery:
				scopes = append(scopes, v)
			default:
			}
		}
	}

	client := model.SsfClient{
		ProjectIds:    []string{authCtx.ProjectId},
		Email:         jsonRequest.Email,
		Description:   jsonRequest.Description,
		AllowedScopes: scopes,
		Id:            primitive.NewObjectID(),
	}

	response := sa.Provider.RegisterClient(client, authCtx.ProjectId)
	if response == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	regBytes, _ := json.MarshalIndent(response, "", " ")
	_, _ = w.Write(regBytes)
}
