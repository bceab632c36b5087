package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/i2-open/goSharedSignals/internal/authUtil"
	"github.com/i2-open/goSharedSignals/internal/eventRouter"
	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/internal/processor"
	"github.com/i2-open/goSharedSignals/internal/providers/dbProviders"
	"github.com/i2-open/goSharedSignals/internal/receiver"
	"github.com/i2-open/goSharedSignals/pkg/goEvent"
)

var serverLog = log.New(os.Stdout, "SERVER:      ", log.Ldate|log.Ltime)

/*
SignalsApplication wires the protocol engine together: the storage provider,
the transmitter-side event router, the receiver-side subscription manager with
its poll clients, and the HTTP surface.
*/
type SignalsApplication struct {
	Provider    dbProviders.DbProviderInterface
	Server      *http.Server
	Handler     http.Handler
	EventRouter eventRouter.EventRouter
	Receivers   *receiver.Manager
	Processor   *processor.Processor
	BaseUrl     *url.URL
	HostName    string
	DefIssuer   string
	Auth        *authUtil.AuthIssuer

	pollClients      map[string]*receiver.PollClient
	lastVerification map[string]time.Time
	mu               sync.RWMutex
	Stats            *PrometheusHandler
}

func (sa *SignalsApplication) Name() string {
	if sa.Provider != nil {
		return sa.Provider.Name()
	}
	return "goSharedSignals"
}

func (sa *SignalsApplication) HealthCheck() bool {
	err := sa.Provider.Check()
	if err != nil {
		serverLog.Println("Provider ping failed: " + err.Error())
		return false
	}
	return true
}

/*
NewApplication builds a runnable application around a provider. The default
event listener only logs received events; embedders call SetEventListener to
act on them (revoke sessions, disable accounts).
*/
func NewApplication(provider dbProviders.DbProviderInterface, baseUrlString string) *SignalsApplication {
	sa := &SignalsApplication{
		Provider:    provider,
		Auth:        provider.GetAuthIssuer(),
		Receivers:   receiver.NewManager(provider, nil),
		pollClients: map[string]*receiver.PollClient{},
	}
	sa.Processor = processor.NewProcessor(provider, processor.EventListenerFunc(defaultEventListener))

	sa.Handler = NewRouter(sa)
	sa.EventRouter = eventRouter.NewRouter(provider)

	var baseUrl *url.URL
	var err error
	if baseUrlString != "" {
		baseUrl, err = url.Parse(baseUrlString)
		if err != nil {
			serverLog.Println(fmt.Sprintf("FATAL: Invalid BaseUrl[%s]: %s", baseUrlString, err.Error()))
		}
	}
	sa.BaseUrl = baseUrl

	sa.InitializePrometheus()

	defaultIssuer, issDefined := os.LookupEnv("SSF_ISSUER")
	if !issDefined {
		defaultIssuer = "DEFAULT"
	}
	sa.DefIssuer = defaultIssuer
	serverLog.Printf("Selected issuer id: %s", sa.DefIssuer)

	sa.InitializeReceivers()
	return sa
}

func defaultEventListener(_ context.Context, jti string, event *goEvent.SecurityEvent) error {
	serverLog.Printf("EVENT[%s] Received %s (no listener registered)", jti, event.Type)
	return nil
}

// SetEventListener replaces the processor used by the ingress endpoints.
func (sa *SignalsApplication) SetEventListener(listener processor.EventListener) {
	sa.Processor = processor.NewProcessor(sa.Provider, listener)
}

// StartServer creates a real net/http server wrapping the application handler.
// Tests use NewApplication with an httptest.Server instead.
func StartServer(addr string, provider dbProviders.DbProviderInterface, baseUrlString string) *SignalsApplication {
	sa := NewApplication(provider, baseUrlString)
	server := http.Server{
		Addr:    addr,
		Handler: sa.Handler,
	}
	sa.Server = &server
	if sa.BaseUrl == nil {
		baseUrl, _ := url.Parse("http://" + server.Addr + "/")
		sa.BaseUrl = baseUrl
	}
	serverLog.Printf("ServerUrl[%s] listening on %s", provider.Name(), addr)
	return sa
}

/*
InitializeReceivers starts a poll client for every stored poll-mode receiver
subscription. Push-mode subscriptions need no client; the remote transmitter
calls our push ingress endpoint.
*/
func (sa *SignalsApplication) InitializeReceivers() {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	for _, rec := range sa.Provider.ListReceivers("") {
		if rec.IsPollDelivery() {
			recCopy := rec
			sa.startPollClientLocked(&recCopy)
		} else {
			serverLog.Printf("Initialized Receiver: %s, Method: PUSH", rec.Alias)
		}
	}
}

func (sa *SignalsApplication) startPollClientLocked(rec *model.ReceiverRecord) {
	if existing, ok := sa.pollClients[rec.Id]; ok {
		existing.Close()
	}
	pc := receiver.NewPollClient(sa.Provider, sa.Processor, rec, nil)
	sa.pollClients[rec.Id] = pc
	serverLog.Printf("Initialized Receiver: %s, Method: POLL, EventUrl: %s", rec.Alias, rec.TransmitterPollUrl)
	pc.Start()
}

/*
HandleReceiverClient starts, restarts, or stops the poll client for a receiver
record after a create or update. Push-mode records get any stale poll client
stopped.
*/
func (sa *SignalsApplication) HandleReceiverClient(rec *model.ReceiverRecord) {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if rec.IsPollDelivery() {
		sa.startPollClientLocked(rec)
		return
	}
	if existing, ok := sa.pollClients[rec.Id]; ok {
		existing.Close()
		delete(sa.pollClients, rec.Id)
	}
}

func (sa *SignalsApplication) CloseReceiverClient(receiverId string) {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	if pc, ok := sa.pollClients[receiverId]; ok {
		pc.Close()
		delete(sa.pollClients, receiverId)
	}
}

func (sa *SignalsApplication) GetPollReceiverCnt() float64 {
	sa.mu.RLock()
	defer sa.mu.RUnlock()
	return float64(len(sa.pollClients))
}

func (sa *SignalsApplication) GetPushReceiverCnt() float64 {
	cnt := 0
	for _, rec := range sa.Provider.ListReceivers("") {
		if !rec.IsPollDelivery() {
			cnt++
		}
	}
	return float64(cnt)
}

func (sa *SignalsApplication) shutdownReceivers() {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	for _, pc := range sa.pollClients {
		pc.Close()
	}
}

func (sa *SignalsApplication) Shutdown() {
	name := sa.Provider.Name()
	serverLog.Printf("[%s] Shutdown initiated...", name)

	// Turn off polling clients
	sa.shutdownReceivers()

	// Turn off the server (if present)
	if sa.Server != nil {
		_ = sa.Server.Shutdown(context.Background())
	}
	time.Sleep(time.Second)

	// Stop processing new events
	sa.EventRouter.Shutdown()
	time.Sleep(time.Second)

	_ = sa.Provider.Close()
	serverLog.Printf("[%s] Shutdown Complete.", name)
}
