package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/internal/processor"
	"github.com/i2-open/goSharedSignals/internal/providers/dbProviders"
	"github.com/i2-open/goSharedSignals/pkg/goSet"
)

const (
	pollRetryBaseDelay = 5 * time.Second
	pollRetryMaxDelay  = 5 * time.Minute
	pollBackoffFactor  = 2

	defaultPollIntervalSecs = 10
)

// pollGate bounds concurrent outbound poll requests across all receivers in
// the process so a large subscription count cannot exhaust sockets.
var pollGate = make(chan struct{}, 32)

/*
PollClient drives one receiver subscription against a transmitter poll
endpoint (RFC 8936). Each client owns its goroutine and ticker. Acknowledgements
and per-SET errors accumulate between requests and ride along on the next poll;
they are cleared only once a request carrying them gets a non-error HTTP
response, so a transport failure never loses an ack.
*/
type PollClient struct {
	provider  dbProviders.DbProviderInterface
	processor *processor.Processor
	rcv       *model.ReceiverRecord
	client    *http.Client

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	active  bool
	acks    []string
	setErrs map[string]model.SetErrorType

	failures int
}

func NewPollClient(provider dbProviders.DbProviderInterface, proc *processor.Processor, rec *model.ReceiverRecord, client *http.Client) *PollClient {
	if client == nil {
		client = &http.Client{Timeout: defaultHttpTimeout}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PollClient{
		provider:  provider,
		processor: proc,
		rcv:       rec,
		client:    client,
		ctx:       ctx,
		cancel:    cancel,
		setErrs:   map[string]model.SetErrorType{},
	}
}

// Start launches the polling goroutine. Safe to call once per client.
func (pc *PollClient) Start() {
	pc.mu.Lock()
	if pc.active {
		pc.mu.Unlock()
		return
	}
	pc.active = true
	pc.mu.Unlock()
	go pc.pollLoop()
}

// Close stops polling. Pending acks are held in memory only and are lost; the
// transmitter will simply redeliver on the next subscription start.
func (pc *PollClient) Close() {
	pc.mu.Lock()
	pc.active = false
	pc.mu.Unlock()
	pc.cancel()
}

func (pc *PollClient) IsActive() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.active
}

func (pc *PollClient) pollLoop() {
	interval := time.Duration(pc.rcv.PollConfig.IntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultPollIntervalSecs * time.Second
	}
	rcvLog.Printf("RCV[%s] Polling %s every %s", pc.rcv.Id, pc.rcv.TransmitterPollUrl, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-pc.ctx.Done():
			rcvLog.Printf("RCV[%s] Poll loop stopped", pc.rcv.Id)
			return
		case <-ticker.C:
			if err := pc.tick(); err != nil {
				pc.failures++
				delay := pc.retryDelay()
				rcvLog.Printf("RCV[%s] Poll failed (attempt %d): %s, next attempt in %s", pc.rcv.Id, pc.failures, err.Error(), delay)
				select {
				case <-pc.ctx.Done():
					return
				case <-time.After(delay):
				}
			} else {
				pc.failures = 0
			}
		}
	}
}

func (pc *PollClient) retryDelay() time.Duration {
	delay := pollRetryBaseDelay
	for i := 1; i < pc.failures; i++ {
		delay *= pollBackoffFactor
		if delay >= pollRetryMaxDelay {
			return pollRetryMaxDelay
		}
	}
	return delay
}

/*
tick performs one poll cycle: send any pending acks and setErrs together with
the poll request, then process the returned SETs. With AckImmediately set, a
follow-up acknowledge-only request goes out in the same cycle instead of
waiting for the next tick.
*/
func (pc *PollClient) tick() error {
	params := pc.nextPollParams()

	resp, err := pc.doPoll(params)
	if err != nil {
		return err
	}
	// The transmitter accepted the request, so everything it carried is settled.
	pc.clearDelivered(params)

	newAcks := 0
	for jti, raw := range resp.Sets {
		if pc.processSet(jti, raw) {
			newAcks++
		}
	}

	if newAcks > 0 || pc.pendingCount() > 0 {
		if pc.rcv.PollConfig.AckImmediately {
			ackParams := pc.nextPollParams()
			ackParams.MaxEvents = 0
			ackParams.ReturnImmediately = true
			if _, err := pc.doPoll(ackParams); err != nil {
				rcvLog.Printf("RCV[%s] Immediate ack failed, retrying next cycle: %s", pc.rcv.Id, err.Error())
				return nil
			}
			pc.clearDelivered(ackParams)
		}
	}
	return nil
}

// processSet verifies and dispatches one SET. Returns true when the SET was
// staged for acknowledgement.
func (pc *PollClient) processSet(jti string, raw string) bool {
	jwks := pc.provider.GetReceiverJwks(pc.rcv.Id)
	token, err := goSet.Parse(raw, jwks)
	if err != nil {
		rcvLog.Printf("RCV[%s] SET [%s] failed validation: %s", pc.rcv.Id, jti, err.Error())
		pc.stageErr(jti, model.ErrorInvalidRequest, err.Error())
		return false
	}

	if pc.rcv.Iss != "" && !token.VerifyIssuer(pc.rcv.Iss, true) {
		rcvLog.Printf("RCV[%s] SET [%s] has wrong issuer [%s]", pc.rcv.Id, jti, token.Issuer)
		pc.stageErr(jti, model.ErrorInvalidIssuer, "expected issuer "+pc.rcv.Iss)
		return false
	}
	if !pc.audienceAccepted(token.Audience) {
		rcvLog.Printf("RCV[%s] SET [%s] has wrong audience %v", pc.rcv.Id, jti, token.Audience)
		pc.stageErr(jti, model.ErrorInvalidAudience, "audience not accepted")
		return false
	}

	outcome, err := pc.processor.Process(pc.ctx, token, pc.rcv)
	if outcome != processor.OutcomeOk {
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		pc.stageErr(jti, outcome.ErrorCode(), detail)
		return false
	}
	pc.stageAck(jti)
	return true
}

func (pc *PollClient) audienceAccepted(audience []string) bool {
	if len(pc.rcv.Aud) == 0 {
		return true
	}
	for _, aud := range pc.rcv.Aud {
		for _, claim := range audience {
			if claim == aud {
				return true
			}
		}
	}
	return false
}

func (pc *PollClient) doPoll(params model.PollParameters) (*model.PollResponse, error) {
	pollGate <- struct{}{}
	defer func() { <-pollGate }()

	body, _ := json.Marshal(params)
	req, err := http.NewRequestWithContext(pc.ctx, http.MethodPost, pc.rcv.TransmitterPollUrl, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if pc.rcv.TransmitterAccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+pc.rcv.TransmitterAccessToken)
	}

	resp, err := pc.client.Do(req)
	if err != nil {
		if isConnectionError(err) {
			return nil, fmt.Errorf("transmitter unreachable: %w", err)
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("poll endpoint returned %s", resp.Status)
	}

	var pollResp model.PollResponse
	if err := json.NewDecoder(resp.Body).Decode(&pollResp); err != nil {
		return nil, fmt.Errorf("poll response parse failed: %w", err)
	}
	return &pollResp, nil
}

// nextPollParams snapshots pending acks and setErrs into a poll request.
func (pc *PollClient) nextPollParams() model.PollParameters {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	params := model.PollParameters{
		MaxEvents:         pc.rcv.PollConfig.MaxEvents,
		ReturnImmediately: pc.rcv.PollConfig.ReturnImmediate,
		TimeoutSecs:       pc.rcv.PollConfig.TimeoutSecs,
	}
	if params.MaxEvents <= 0 {
		params.MaxEvents = model.StreamPollBatchSize
	}
	if len(pc.acks) > 0 {
		params.Acks = append([]string{}, pc.acks...)
	}
	if len(pc.setErrs) > 0 {
		params.SetErrs = map[string]model.SetErrorType{}
		for jti, setErr := range pc.setErrs {
			params.SetErrs[jti] = setErr
		}
	}
	return params
}

// clearDelivered drops the acks and setErrs that rode along on an accepted
// request. Entries staged while the request was in flight are kept.
func (pc *PollClient) clearDelivered(params model.PollParameters) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if len(params.Acks) > 0 {
		sent := map[string]bool{}
		for _, jti := range params.Acks {
			sent[jti] = true
		}
		remaining := pc.acks[:0]
		for _, jti := range pc.acks {
			if !sent[jti] {
				remaining = append(remaining, jti)
			}
		}
		pc.acks = remaining
	}
	for jti := range params.SetErrs {
		delete(pc.setErrs, jti)
	}
}

func (pc *PollClient) stageAck(jti string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, pending := range pc.acks {
		if pending == jti {
			return
		}
	}
	pc.acks = append(pc.acks, jti)
}

func (pc *PollClient) stageErr(jti string, code string, description string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.setErrs[jti] = model.SetErrorType{Error: code, Description: description}
}

func (pc *PollClient) pendingCount() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.acks) + len(pc.setErrs)
}

func isConnectionError(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
