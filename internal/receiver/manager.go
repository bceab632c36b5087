package receiver

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/internal/providers/dbProviders"
)

var rcvLog = log.New(os.Stdout, "RECEIVER:    ", log.Ldate|log.Ltime)

const defaultHttpTimeout = 30 * time.Second

/*
Manager owns the receiver-side subscription lifecycle: setting up or
refreshing a subscription against a remote transmitter, caching its keys, and
tearing the subscription down.
*/
type Manager struct {
	provider dbProviders.DbProviderInterface
	client   *http.Client
}

func NewManager(provider dbProviders.DbProviderInterface, client *http.Client) *Manager {
	if client == nil {
		client = &http.Client{Timeout: defaultHttpTimeout}
	}
	return &Manager{provider: provider, client: client}
}

// ReceiverId derives the stable receiver identity from its project and alias.
func ReceiverId(projectId string, alias string) string {
	sum := sha256.Sum256([]byte(projectId + "/" + alias))
	return fmt.Sprintf("%x", sum[:12])
}

func resolveUrl(base string, ref string) string {
	if ref == "" {
		return ""
	}
	refUrl, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refUrl.IsAbs() {
		return ref
	}
	baseUrl, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseUrl.ResolveReference(refUrl).String()
}

/*
CreateOrUpdate sets up or refreshes the subscription for (project, alias).
Transmitter metadata is always re-fetched and the cached key set refreshed
before stream state is touched. A managed subscription creates the remote
stream and merges the returned representation; an imported one reads the
existing remote stream. The record is stamped with a fresh ModifiedAt and
config hash on every call.
*/
func (m *Manager) CreateOrUpdate(request *model.ReceiverRecord) (*model.ReceiverRecord, error) {
	rec := request
	if existing, err := m.provider.GetReceiver(request.ProjectId, request.Alias); err == nil {
		rec.Id = existing.Id
	} else {
		rec.Id = ReceiverId(request.ProjectId, request.Alias)
	}

	metadata, err := m.FetchTransmitterMetadata(rec)
	if err != nil {
		return nil, err
	}
	if rec.Iss == "" {
		rec.Iss = metadata.Issuer
	}
	rec.JwksUri = resolveUrl(rec.TransmitterUrl, metadata.JwksUri)

	if err := m.RefreshKeys(rec); err != nil {
		return nil, err
	}

	configEndpoint := resolveUrl(rec.TransmitterUrl, metadata.ConfigurationEndpoint)
	var config *model.StreamConfiguration
	if rec.ManagedStream {
		config, err = m.createRemoteStream(rec, configEndpoint)
	} else {
		config, err = m.readRemoteStream(rec, configEndpoint)
	}
	if err != nil {
		return nil, err
	}

	rec.StreamId = config.Id
	if config.Iss != "" {
		rec.Iss = config.Iss
	}
	if len(config.Aud) > 0 {
		rec.Aud = config.Aud
	}
	rec.EventsDelivered = config.EventsDelivered

	switch config.Delivery.GetMethod() {
	case model.DeliveryPoll:
		rec.Method = model.DeliveryPoll
		rec.TransmitterPollUrl = resolveUrl(rec.TransmitterUrl, config.Delivery.PollDeliveryMethod.EndpointUrl)
		if config.Delivery.PollDeliveryMethod.AuthorizationHeader != "" && rec.TransmitterAccessToken == "" {
			rec.TransmitterAccessToken = strings.TrimPrefix(config.Delivery.PollDeliveryMethod.AuthorizationHeader, "Bearer ")
		}
	case model.DeliveryPush:
		rec.Method = model.DeliveryPush
	}

	rec.ModifiedAt = time.Now()
	rec.ConfigHash = rec.CalculateConfigHash()

	if err := m.provider.PutReceiver(rec); err != nil {
		return nil, err
	}
	rcvLog.Printf("RCV[%s] Subscription %s updated (stream %s, method %s)", rec.Id, rec.Alias, rec.StreamId, rec.Method)
	return rec, nil
}

/*
Remove tears down the subscription. A managed remote stream is deleted first;
a remote failure is logged but does not block local cleanup. Cached keys are
always revoked.
*/
func (m *Manager) Remove(projectId string, alias string) error {
	rec, err := m.provider.GetReceiver(projectId, alias)
	if err != nil {
		return err
	}

	if rec.ManagedStream && rec.StreamId != "" {
		if err := m.deleteRemoteStream(rec); err != nil {
			rcvLog.Printf("RCV[%s] Remote stream %s delete failed: %s", rec.Id, rec.StreamId, err.Error())
		}
	}

	if err := m.provider.DeleteReceiverKeys(rec.Id); err != nil {
		rcvLog.Printf("RCV[%s] Error revoking cached keys: %s", rec.Id, err.Error())
	}
	m.provider.ClearVerificationState(rec.StreamId)
	return m.provider.DeleteReceiver(projectId, alias)
}

// FetchTransmitterMetadata reads the transmitter discovery document.
func (m *Manager) FetchTransmitterMetadata(rec *model.ReceiverRecord) (*model.TransmitterConfiguration, error) {
	configUrl := rec.TransmitterConfigUrl
	if configUrl == "" {
		configUrl = strings.TrimSuffix(rec.TransmitterUrl, "/") + "/.well-known/ssf-configuration"
	}

	resp, err := m.client.Get(configUrl)
	if err != nil {
		return nil, fmt.Errorf("transmitter metadata fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transmitter metadata fetch returned %s", resp.Status)
	}

	var metadata model.TransmitterConfiguration
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("transmitter metadata parse failed: %w", err)
	}
	return &metadata, nil
}

/*
RefreshKeys downloads the transmitter JWKS and stores each key as a
(receiverId, kid) record, replacing any prior key with the same kid.
*/
func (m *Manager) RefreshKeys(rec *model.ReceiverRecord) error {
	if rec.JwksUri == "" {
		return errors.New("transmitter metadata has no jwks_uri")
	}

	resp, err := m.client.Get(rec.JwksUri)
	if err != nil {
		return fmt.Errorf("jwks fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("jwks parse failed: %w", err)
	}

	for _, rawKey := range doc.Keys {
		var header struct {
			Kid string `json:"kid"`
			Alg string `json:"alg"`
		}
		if err := json.Unmarshal(rawKey, &header); err != nil {
			continue
		}
		if header.Kid == "" {
			rcvLog.Printf("RCV[%s] Skipping JWKS key with no kid", rec.Id)
			continue
		}
		keyRec := model.ReceiverKeyRec{
			ReceiverId: rec.Id,
			Kid:        header.Kid,
			Alg:        header.Alg,
			PublicKey:  rawKey,
			CreatedAt:  time.Now(),
		}
		if err := m.provider.StoreReceiverKey(keyRec); err != nil {
			return err
		}
	}
	rcvLog.Printf("RCV[%s] Cached %d transmitter keys", rec.Id, len(doc.Keys))
	return nil
}

func (m *Manager) createRemoteStream(rec *model.ReceiverRecord, configEndpoint string) (*model.StreamConfiguration, error) {
	request := model.StreamConfiguration{
		Aud:             rec.Aud,
		EventsRequested: rec.EventsRequested,
	}
	if rec.Method == model.DeliveryPush {
		request.Delivery = &model.OneOfStreamConfigurationDelivery{
			PushDeliveryMethod: &model.PushDeliveryMethod{
				Method:              model.DeliveryPush,
				EndpointUrl:         rec.PushEndpointUrl,
				AuthorizationHeader: rec.PushAuthorizationToken,
			},
		}
	}

	bodyBytes, _ := json.Marshal(request)
	req, err := http.NewRequest(http.MethodPost, configEndpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	m.setAuthorization(req, rec)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote stream create failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("remote stream create returned %s", resp.Status)
	}

	var config model.StreamConfiguration
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return nil, fmt.Errorf("remote stream create parse failed: %w", err)
	}
	return &config, nil
}

func (m *Manager) readRemoteStream(rec *model.ReceiverRecord, configEndpoint string) (*model.StreamConfiguration, error) {
	readUrl := configEndpoint
	if rec.StreamId != "" {
		readUrl = configEndpoint + "?stream_id=" + url.QueryEscape(rec.StreamId)
	}
	req, err := http.NewRequest(http.MethodGet, readUrl, nil)
	if err != nil {
		return nil, err
	}
	m.setAuthorization(req, rec)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote stream read failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote stream read returned %s", resp.Status)
	}

	var config model.StreamConfiguration
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return nil, fmt.Errorf("remote stream read parse failed: %w", err)
	}
	return &config, nil
}

func (m *Manager) deleteRemoteStream(rec *model.ReceiverRecord) error {
	metadata, err := m.FetchTransmitterMetadata(rec)
	if err != nil {
		return err
	}
	configEndpoint := resolveUrl(rec.TransmitterUrl, metadata.ConfigurationEndpoint)
	deleteUrl := configEndpoint + "?stream_id=" + url.QueryEscape(rec.StreamId)

	req, err := http.NewRequest(http.MethodDelete, deleteUrl, nil)
	if err != nil {
		return err
	}
	m.setAuthorization(req, rec)

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("remote stream delete returned %s", resp.Status)
	}
	return nil
}

func (m *Manager) setAuthorization(req *http.Request, rec *model.ReceiverRecord) {
	if rec.TransmitterAccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+rec.TransmitterAccessToken)
	}
}
