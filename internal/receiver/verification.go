package receiver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/i2-open/goSharedSignals/internal/model"

	"github.com/segmentio/ksuid"
)

/*
RequestVerification asks the transmitter to emit a verification event for the
receiver's stream. The generated challenge is stored before the request goes
out so the event can arrive on any delivery path; a second request before the
first resolves simply supersedes the pending challenge. A transport failure or
non-2xx response is a hard failure and the caller should alert.
*/
func (m *Manager) RequestVerification(rec *model.ReceiverRecord) (string, error) {
	metadata, err := m.FetchTransmitterMetadata(rec)
	if err != nil {
		return "", err
	}
	verifyUrl := resolveUrl(rec.TransmitterUrl, metadata.VerificationEndpoint)
	if verifyUrl == "" {
		return "", fmt.Errorf("transmitter %s offers no verification endpoint", rec.Iss)
	}

	state := ksuid.New().String()
	m.provider.PutVerificationState(model.VerificationState{
		StreamId:  rec.StreamId,
		State:     state,
		CreatedAt: time.Now(),
	})

	body, _ := json.Marshal(model.VerificationRequest{StreamId: rec.StreamId, State: state})
	req, err := http.NewRequest(http.MethodPost, verifyUrl, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	m.setAuthorization(req, rec)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("verification request returned %s", resp.Status)
	}

	rcvLog.Printf("RCV[%s] Verification requested for stream %s", rec.Id, rec.StreamId)
	return state, nil
}
