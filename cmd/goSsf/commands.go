package main

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/i2-open/goSharedSignals/internal/authUtil"
	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/pkg/goEvent"
	"github.com/i2-open/goSharedSignals/pkg/goSet"

	"github.com/alecthomas/kong"
	"github.com/golang-jwt/jwt/v4"
)

type AddServerCmd struct {
	Alias string `arg:"" help:"A unique name to identify the server"`
	Host  string `arg:"" required:"" help:"Http URL for a goSharedSignals server"`
	Desc  string `help:"Description of project"`
	Email string `help:"Contact email for project"`
	Iat   string `help:"Registration initial access token if provided"`
	Token string `help:"Administration authorization token"`
}

func (as *AddServerCmd) Run(c *CLI) error {
	_, exists := c.Data.Servers[as.Alias]
	if exists {
		return errors.New("server alias already exists")
	}
	var serverUrl *url.URL
	var err error
	if !strings.Contains(strings.ToUpper(as.Host), "HTTP") {
		serverUrl = &url.URL{
			Scheme: "https",
			Host:   as.Host,
		}
	} else {
		serverUrl, err = url.Parse(as.Host)
		if err != nil {
			return err
		}
	}
	server := SsfServer{
		Alias:   as.Alias,
		Host:    serverUrl.String(),
		Streams: map[string]Stream{},
	}
	tryUrl, _ := serverUrl.Parse("/.well-known/ssf-configuration")
	fmt.Println("Loading server configuration from: " + tryUrl.String())
	var resp *http.Response
	resp, err = http.Get(tryUrl.String())
	if err != nil {
		if strings.Contains(err.Error(), "gave HTTP response") {
			tryUrl.Scheme = "http"
			serverUrl.Scheme = "http"
			fmt.Println("Warning: HTTPS not supported trying HTTP at: " + tryUrl.String())
			resp, err = http.Get(tryUrl.String())
			if err != nil {
				return err
			}
			server.Host = serverUrl.String()
		} else {
			return err
		}
	}
	body, _ := io.ReadAll(resp.Body)
	var transmitterConfiguration model.TransmitterConfiguration
	err = json.Unmarshal(body, &transmitterConfiguration)
	if err != nil {
		return err
	}
	server.ServerConfiguration = &transmitterConfiguration

	if as.Iat != "" {
		server.IatToken = as.Iat
	} else if as.Token == "" {
		iatUrl, _ := serverUrl.Parse("/iat")
		fmt.Println("Obtaining authorization...")
		resp, err = http.Get(iatUrl.String())
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return errors.New("unable to obtain registration IAT token: " + resp.Status)
		}
		regBytes, _ := io.ReadAll(resp.Body)
		var registration model.RegisterResponse
		if err = json.Unmarshal(regBytes, &registration); err != nil {
			return err
		}
		server.IatToken = registration.Token
	}

	if as.Token != "" {
		server.ClientToken = as.Token
	} else {
		regUrl, _ := serverUrl.Parse("/register")
		clientReg := model.RegisterParameters{
			Scopes:      []string{authUtil.ScopeStreamAdmin, authUtil.ScopeStreamMgmt},
			Email:       as.Email,
			Description: stripQuotes(as.Desc),
		}
		regBytes, _ := json.Marshal(&clientReg)
		req, _ := http.NewRequest(http.MethodPost, regUrl.String(), bytes.NewReader(regBytes))
		req.Header.Set("Authorization", "Bearer "+server.IatToken)
		client := http.Client{}
		resp, err = client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return errors.New("unexpected status response: " + resp.Status)
		}
		var clientResponse model.RegisterResponse
		regBytes, _ = io.ReadAll(resp.Body)
		if err = json.Unmarshal(regBytes, &clientResponse); err != nil {
			return err
		}
		server.ClientToken = clientResponse.Token
	}

	c.Data.Servers[as.Alias] = server
	c.Data.Selected = as.Alias
	cmd := ShowServerCmd{Alias: as.Alias}
	_ = cmd.Run(c)
	return c.Data.Save(&c.Globals)
}

type AddReceiverCmd struct {
	Alias       string   `arg:"" help:"A unique name for the receiver subscription"`
	Transmitter string   `required:"" help:"Base URL of the remote transmitter"`
	Server      string   `help:"Alias of the local server that will host the subscription (default is selected)"`
	Mode        string   `default:"poll" enum:"poll,push" help:"Delivery mode: poll or push"`
	Token       string   `help:"Access token for the remote transmitter stream API"`
	PushToken   string   `help:"Authorization token the transmitter must present at our push endpoint (push mode)"`
	PushUrl     string   `help:"Push ingress URL given to the transmitter (push mode; defaults to the server's /push/{alias})"`
	Events      []string `sep:"," default:"*" help:"Comma separated event type URIs to request"`
	Unmanaged   bool     `help:"Import an existing remote stream rather than creating one"`
	StreamId    string   `help:"Remote stream id when importing an unmanaged stream"`
}

func (ar *AddReceiverCmd) Run(c *CLI) error {
	server, err := c.Data.GetServer(ar.Server)
	if err != nil {
		return err
	}

	method := model.DeliveryPoll
	if ar.Mode == "push" {
		method = model.DeliveryPush
	}
	rec := model.ReceiverRecord{
		Alias:                  ar.Alias,
		TransmitterUrl:         ar.Transmitter,
		TransmitterAccessToken: ar.Token,
		PushAuthorizationToken: ar.PushToken,
		PushEndpointUrl:        ar.PushUrl,
		Method:                 method,
		ManagedStream:          !ar.Unmanaged,
		StreamId:               ar.StreamId,
		EventsRequested:        ar.Events,
	}

	bodyBytes, _ := json.Marshal(rec)
	req, _ := http.NewRequest(http.MethodPost, serverPath(server, "/receivers"), bytes.NewReader(bodyBytes))
	req.Header.Set("Authorization", "Bearer "+server.ClientToken)
	req.Header.Set("Content-Type", "application/json")
	client := http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("error creating receiver: %s\n%s", resp.Status, string(respBytes))
	}
	fmt.Println("Receiver subscription created:")
	fmt.Println(string(respBytes))
	c.GetOutputWriter().WriteBytes(respBytes, true)
	return nil
}

type AddCmd struct {
	Server   AddServerCmd   `cmd:"" help:"Add a server to be configured."`
	Receiver AddReceiverCmd `cmd:"" help:"Add a receiver subscription to a remote transmitter."`
}

type CreateStreamCmd struct {
	Alias  string   `arg:"" help:"A local alias for the stream"`
	Server string   `help:"Alias of the server to create the stream on (default is selected)"`
	Aud    []string `sep:"," default:"receiver.example.com" help:"One or more audience values"`
	Events []string `sep:"," default:"*" help:"Comma separated event type URIs (or * wildcard patterns) requested"`
	Mode   string   `default:"poll" enum:"poll,push" help:"Delivery mode: poll or push"`
	Url    string   `help:"The event publication URL for push mode"`
	Token  string   `help:"Authorization token for push delivery"`
}

func (cs *CreateStreamCmd) Run(c *CLI) error {
	server, err := c.Data.GetServer(cs.Server)
	if err != nil {
		return err
	}
	if _, exists := server.Streams[cs.Alias]; exists {
		return errors.New("stream alias already exists")
	}

	request := model.StreamConfiguration{
		Aud:             cs.Aud,
		EventsRequested: cs.Events,
	}
	if cs.Mode == "push" {
		if cs.Url == "" {
			return errors.New("push mode requires --url")
		}
		request.Delivery = &model.OneOfStreamConfigurationDelivery{
			PushDeliveryMethod: &model.PushDeliveryMethod{
				Method:              model.DeliveryPush,
				EndpointUrl:         cs.Url,
				AuthorizationHeader: cs.Token,
			},
		}
	}

	bodyBytes, _ := json.Marshal(request)
	req, _ := http.NewRequest(http.MethodPost, serverPath(server, "/stream"), bytes.NewReader(bodyBytes))
	req.Header.Set("Authorization", "Bearer "+server.ClientToken)
	req.Header.Set("Content-Type", "application/json")
	client := http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("error creating stream: %s\n%s", resp.Status, string(respBytes))
	}

	var config model.StreamConfiguration
	if err = json.Unmarshal(respBytes, &config); err != nil {
		return err
	}

	stream := Stream{
		Alias:      cs.Alias,
		Id:         config.Id,
		Iss:        config.Iss,
		Aud:        strings.Join(config.Aud, ","),
		IssJwksUrl: config.IssuerJWKSUrl,
	}
	if config.Delivery != nil && config.Delivery.PollDeliveryMethod != nil {
		stream.Endpoint = config.Delivery.PollDeliveryMethod.EndpointUrl
		stream.Token = strings.TrimPrefix(config.Delivery.PollDeliveryMethod.AuthorizationHeader, "Bearer ")
	}
	server.Streams[cs.Alias] = stream
	c.Data.Servers[server.Alias] = *server

	fmt.Printf("Stream %s created:\n", config.Id)
	fmt.Println(string(respBytes))
	c.GetOutputWriter().WriteBytes(respBytes, true)
	return c.Data.Save(&c.Globals)
}

type CreateKeyCmd struct {
	Alias    string `arg:"" required:"" help:"The alias of the server to issue the key"`
	IssuerId string `arg:"" required:"" help:"The issuer value associated with the key (e.g. example.com)"`
	File     string `optional:"" default:"issuer.pem" help:"File where the issued PEM is stored"`
}

func (ck *CreateKeyCmd) Run(g *Globals) error {
	server, err := g.Data.GetServer(ck.Alias)
	if err != nil {
		return err
	}
	keyUrl := serverPath(server, "/jwks/"+ck.IssuerId)
	req, _ := http.NewRequest(http.MethodPost, keyUrl, nil)
	if server.ClientToken != "" {
		req.Header.Set("Authorization", "Bearer "+server.ClientToken)
	} else {
		fmt.Printf("No authorization information for %s, attempting anonymous request.\n", server.Alias)
	}
	client := http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return errors.New("error creating issuer key: " + resp.Status)
	}
	body, _ := io.ReadAll(resp.Body)

	g.Data.Pems[ck.IssuerId] = body

	if ck.File != "" {
		if err = os.WriteFile(ck.File, body, 0640); err != nil {
			fmt.Println(err.Error())
		}
	}
	fmt.Println("Issuer key received (PEM):\n" + string(body))
	return g.Data.Save(g)
}

type CreateCmd struct {
	Stream CreateStreamCmd `cmd:"" aliases:"s"`
	Key    CreateKeyCmd    `cmd:"" help:"Obtain an issuer key from a goSharedSignals server"`
}

type DeleteStreamCmd struct {
	Alias string `arg:"" help:"The local alias of the stream to delete"`
}

func (d *DeleteStreamCmd) Run(c *CLI) error {
	stream, server := c.Data.GetStreamAndServer(d.Alias)
	if server == nil || stream == nil {
		return errors.New("enter the alias of a locally defined stream. See show stream")
	}
	req, _ := http.NewRequest(http.MethodDelete, serverPath(server, "/stream?stream_id="+stream.Id), nil)
	req.Header.Set("Authorization", "Bearer "+server.ClientToken)
	client := http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errors.New("error deleting stream: " + resp.Status)
	}
	delete(server.Streams, stream.Alias)
	c.Data.Servers[server.Alias] = *server
	fmt.Printf("Stream %s deleted.\n", stream.Id)
	return c.Data.Save(&c.Globals)
}

type DeleteReceiverCmd struct {
	Alias  string `arg:"" help:"The alias of the receiver subscription to delete"`
	Server string `help:"Alias of the server holding the subscription (default is selected)"`
}

func (d *DeleteReceiverCmd) Run(c *CLI) error {
	server, err := c.Data.GetServer(d.Server)
	if err != nil {
		return err
	}
	req, _ := http.NewRequest(http.MethodDelete, serverPath(server, "/receivers/"+d.Alias), nil)
	req.Header.Set("Authorization", "Bearer "+server.ClientToken)
	client := http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errors.New("error deleting receiver: " + resp.Status)
	}
	fmt.Printf("Receiver %s deleted.\n", d.Alias)
	return nil
}

type DeleteCmd struct {
	Stream   DeleteStreamCmd   `cmd:"" help:"Delete a stream from a server"`
	Receiver DeleteReceiverCmd `cmd:"" help:"Delete a receiver subscription"`
}

type SelectCmd struct {
	Alias string `arg:"" help:"Alias of the server to select"`
}

func (s *SelectCmd) Run(g *Globals) error {
	if _, exists := g.Data.Servers[s.Alias]; !exists {
		return fmt.Errorf("server alias '%s' is not defined", s.Alias)
	}
	g.Data.Selected = s.Alias
	fmt.Println("Selected server: " + s.Alias)
	return g.Data.Save(g)
}

type GetStreamConfigCmd struct {
	Alias string `arg:"" help:"The local alias of the stream"`
}

func (gc *GetStreamConfigCmd) Run(c *CLI) error {
	stream, server := c.Data.GetStreamAndServer(gc.Alias)
	if server == nil || stream == nil {
		return errors.New("enter the alias of a locally defined stream. See show stream")
	}
	client := http.Client{}
	defer client.CloseIdleConnections()
	config, err := getStreamConfig(&client, server, stream)
	if err != nil {
		return err
	}
	configBytes, _ := json.MarshalIndent(config, "", "  ")
	fmt.Println(string(configBytes))
	c.GetOutputWriter().WriteBytes(configBytes, true)
	return nil
}

type GetStreamStatusCmd struct {
	Alias string `arg:"" help:"The local alias of the stream"`
}

func (gs *GetStreamStatusCmd) Run(c *CLI) error {
	stream, server := c.Data.GetStreamAndServer(gs.Alias)
	if server == nil || stream == nil {
		return errors.New("enter the alias of a locally defined stream. See show stream")
	}
	req, _ := http.NewRequest(http.MethodGet, serverPath(server, "/status?stream_id="+stream.Id), nil)
	req.Header.Set("Authorization", "Bearer "+server.ClientToken)
	client := http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return errors.New("error retrieving status: " + resp.Status)
	}
	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(body))
	c.GetOutputWriter().WriteBytes(body, true)
	return nil
}

type GetReceiversCmd struct {
	Server string `help:"Alias of the server to list receivers from (default is selected)"`
}

func (gr *GetReceiversCmd) Run(c *CLI) error {
	server, err := c.Data.GetServer(gr.Server)
	if err != nil {
		return err
	}
	req, _ := http.NewRequest(http.MethodGet, serverPath(server, "/receivers"), nil)
	req.Header.Set("Authorization", "Bearer "+server.ClientToken)
	client := http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return errors.New("error listing receivers: " + resp.Status)
	}
	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(body))
	c.GetOutputWriter().WriteBytes(body, true)
	return nil
}

type GetStreamCmd struct {
	Config GetStreamConfigCmd `cmd:"" help:"Retrieve the current stream configuration"`
	Status GetStreamStatusCmd `cmd:"" help:"Retrieve the current stream status"`
}

type GetCmd struct {
	Stream    GetStreamCmd    `cmd:"" help:"Get stream information"`
	Receivers GetReceiversCmd `cmd:"" help:"List receiver subscriptions"`
}

type SetStreamStatusCmd struct {
	Alias  string `arg:"" help:"The local alias of the stream"`
	Status string `arg:"" enum:"enabled,paused,disabled" help:"The new status"`
	Reason string `help:"Reason for the status change"`
}

func (ss *SetStreamStatusCmd) Run(c *CLI) error {
	stream, server := c.Data.GetStreamAndServer(ss.Alias)
	if server == nil || stream == nil {
		return errors.New("enter the alias of a locally defined stream. See show stream")
	}
	statusReq := model.StreamStatus{
		Status: ss.Status,
		Reason: ss.Reason,
	}
	bodyBytes, _ := json.Marshal(statusReq)
	req, _ := http.NewRequest(http.MethodPost, serverPath(server, "/status?stream_id="+stream.Id), bytes.NewReader(bodyBytes))
	req.Header.Set("Authorization", "Bearer "+server.ClientToken)
	req.Header.Set("Content-Type", "application/json")
	client := http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errors.New("error updating status: " + resp.Status)
	}
	fmt.Printf("Stream %s is now %s.\n", stream.Id, ss.Status)
	return nil
}

type SetStreamCmd struct {
	Status SetStreamStatusCmd `cmd:"" help:"Change the stream status"`
}

type SetCmd struct {
	Stream SetStreamCmd `cmd:"" help:"Modify a stream"`
}

type VerifyCmd struct {
	Alias string `arg:"" help:"The local alias of the stream to verify"`
	State string `help:"An optional state value to correlate the verification event"`
}

func (v *VerifyCmd) Run(c *CLI) error {
	stream, server := c.Data.GetStreamAndServer(v.Alias)
	if server == nil || stream == nil {
		return errors.New("enter the alias of a locally defined stream. See show stream")
	}
	request := model.VerificationRequest{
		StreamId: stream.Id,
		State:    v.State,
	}
	bodyBytes, _ := json.Marshal(request)
	req, _ := http.NewRequest(http.MethodPost, serverPath(server, "/verification"), bytes.NewReader(bodyBytes))
	req.Header.Set("Authorization", "Bearer "+server.ClientToken)
	req.Header.Set("Content-Type", "application/json")
	client := http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusNoContent:
		fmt.Println("Verification event queued.")
		return nil
	case http.StatusTooManyRequests:
		return errors.New("verification request throttled, try again later")
	default:
		return errors.New("error requesting verification: " + resp.Status)
	}
}

type ShowServerCmd struct {
	Alias string `arg:"" optional:"" help:"Alias of server to show (default is all)"`
}

func (s *ShowServerCmd) Run(c *CLI) error {
	if len(c.Data.Servers) == 0 {
		fmt.Println("No servers defined.")
		return nil
	}
	output := func(server SsfServer) {
		serverBytes, _ := json.MarshalIndent(server, "", "  ")
		fmt.Println(string(serverBytes))
	}
	if s.Alias != "" {
		server, err := c.Data.GetServer(s.Alias)
		if err != nil {
			return err
		}
		output(*server)
		return nil
	}
	for _, server := range c.Data.Servers {
		output(server)
	}
	return nil
}

type ShowStreamCmd struct {
	Alias string `arg:"" optional:"" help:"Alias of a stream, or * for all"`
}

func (s *ShowStreamCmd) Run(c *CLI) error {
	if s.Alias == "" || s.Alias == "*" {
		for _, server := range c.Data.Servers {
			for _, stream := range server.Streams {
				streamBytes, _ := json.MarshalIndent(stream, "", "  ")
				fmt.Printf("Server: %s\n%s\n", server.Alias, string(streamBytes))
			}
		}
		return nil
	}
	stream, server := c.Data.GetStreamAndServer(s.Alias)
	if stream == nil {
		return errors.New("stream alias not found")
	}
	streamBytes, _ := json.MarshalIndent(stream, "", "  ")
	fmt.Printf("Server: %s\n%s\n", server.Alias, string(streamBytes))
	return nil
}

type ShowCmd struct {
	Server ShowServerCmd `cmd:"" help:"Show a defined server"`
	Stream ShowStreamCmd `cmd:"" help:"Show locally defined streams"`
}

type GenerateCmd struct {
	Event  string `arg:"" help:"An event type URI (or its short name) of the event to create"`
	Url    string `help:"A push delivery endpoint to submit the event to, otherwise the event is displayed"`
	Token  string `help:"Authorization token for the push endpoint"`
	Issuer string `default:"gen.example.com" help:"Issuer value for the generated event"`
	Aud    string `default:"receiver.example.com" help:"Comma separated audience for the generated event"`
}

func (gen *GenerateCmd) Run(c *CLI) error {
	eventUri := goEvent.ResolveEventUri(gen.Event)
	audience := strings.Split(gen.Aud, ",")

	event, account := goEvent.GenerateEvent(eventUri, gen.Issuer, audience)
	fmt.Printf("Generated %s for %s\n", eventUri, account.Email)

	if gen.Url == "" {
		output := event.String()
		fmt.Println(output)
		c.GetOutputWriter().WriteString(output, true)
		return nil
	}

	key, err := c.Data.GetKey(gen.Issuer)
	if err != nil {
		return err
	}
	return pushEvent(c, &event, gen.Url, gen.Token, gen.Issuer, key)
}

func pushEvent(c *CLI, event *goSet.SecurityEventToken, endpoint string, token string, issuer string, key *rsa.PrivateKey) error {
	client := http.Client{}
	defer client.CloseIdleConnections()

	event.IssuedAt = jwt.NewNumericDate(time.Now())
	signString, err := event.JWS(nil, issuer, key)
	if err != nil {
		return err
	}
	req, _ := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(signString))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/secevent+jwt")
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		fmt.Println("Submitted.")
		c.GetOutputWriter().WriteString(event.String(), true)
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var errorMsg model.SetDeliveryErr
	if json.Unmarshal(body, &errorMsg) == nil && errorMsg.ErrCode != "" {
		return fmt.Errorf("delivery error %s: %s", errorMsg.ErrCode, errorMsg.Description)
	}
	return fmt.Errorf("HTTP error %s POSTING to %s", resp.Status, endpoint)
}

type PollCmd struct {
	Alias             string   `arg:"" help:"The alias of a polling stream to receive events"`
	AutoAck           bool     `default:"true" help:"Set to false to download events without acknowledging them"`
	MaxEvents         int      `default:"100" short:"m" help:"Maximum events to retrieve per polling cycle"`
	ReturnImmediately bool     `short:"i" default:"false" help:"If set true, returns immediately if no events"`
	Acks              []string `sep:"," help:"Comma separated list of JTIs to acknowledge"`
	Loop              bool     `default:"true" short:"l" help:"By default, poll keeps looping unless set to false"`
}

func (p *PollCmd) Run(cli *CLI) error {
	stream, server := cli.Data.GetStreamAndServer(p.Alias)
	if server == nil || stream == nil {
		return errors.New("enter the alias of a locally defined stream. See show stream")
	}

	pollParams := model.PollParameters{
		MaxEvents:         p.MaxEvents,
		ReturnImmediately: p.ReturnImmediately,
		Acks:              p.Acks,
	}
	fmt.Println("Starting polling session. Use CTRL/C to stop...")
	outWriter := cli.GetOutputWriter()
	ctx, cancel := context.WithCancel(context.Background())

	exitCh := make(chan struct{})
	go p.doPolling(ctx, server, stream, pollParams, outWriter, exitCh)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt)
	go func() {
		<-signalCh
		cancel()
	}()
	<-exitCh

	outWriter.Close()
	return nil
}

func (p *PollCmd) doPolling(ctx context.Context, server *SsfServer, stream *Stream, params model.PollParameters, outWriter *OutputWriter, exitCh chan struct{}) {
	defer close(exitCh)
	var setErrs map[string]model.SetErrorType
	client := http.Client{}
	defer client.CloseIdleConnections()

	config, err := getStreamConfig(&client, server, stream)
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	if config.Delivery.GetMethod() != model.DeliveryPoll {
		fmt.Println("Selected stream is not a polling stream")
		return
	}
	endpoint := config.Delivery.PollDeliveryMethod.EndpointUrl

	jwksUrl := config.IssuerJWKSUrl
	if strings.HasPrefix(jwksUrl, "/") {
		jwksUrl = serverPath(server, jwksUrl)
	}
	jwks, err := goSet.GetJwks(jwksUrl)
	if err != nil {
		fmt.Println("Error retrieving the issuer public key: " + err.Error())
		return
	}

	for {
		fmt.Printf("Polling %s, stream %s...\n", server.Alias, stream.Alias)
		params.Acks = p.Acks
		params.SetErrs = setErrs

		pollResponse, err := p.doPollRequest(ctx, &client, params, endpoint, stream.Token)
		if err != nil {
			if strings.Contains(err.Error(), "context canceled") {
				return
			}
			fmt.Println("Polling error: " + err.Error())
			return
		}
		fmt.Printf("Received %d events for stream %s\n", len(pollResponse.Sets), stream.Alias)

		p.Acks = []string{}
		setErrs = nil

		for jti, setString := range pollResponse.Sets {
			token, err := goSet.Parse(setString, jwks)
			if err != nil {
				if setErrs == nil {
					setErrs = map[string]model.SetErrorType{}
				}
				fmt.Printf("Error parsing/validating token [%s]: %s\n", jti, err.Error())
				setErrs[jti] = model.SetErrorType{
					Error:       model.ErrorInvalidRequest,
					Description: "The SET could not be parsed: " + err.Error(),
				}
				continue
			}
			tokenBytes, _ := json.MarshalIndent(token, "", "  ")
			fmt.Printf("Security Event: [%s]\n%s\n", jti, string(tokenBytes))
			outWriter.WriteBytes(tokenBytes, false)
			if p.AutoAck {
				p.Acks = append(p.Acks, jti)
			}
		}

		if !p.Loop {
			p.doAckOnly(ctx, &client, endpoint, stream.Token)
			return
		}
		select {
		case <-ctx.Done():
			p.doAckOnly(context.Background(), &client, endpoint, stream.Token)
			return
		default:
		}
	}
}

func (p *PollCmd) doPollRequest(ctx context.Context, client *http.Client, params model.PollParameters, endpoint string, token string) (*model.PollResponse, error) {
	bodyBytes, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return nil, errors.New("received http error: " + resp.Status)
	}
	var pollResponse model.PollResponse
	bodyBytes, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(bodyBytes, &pollResponse); err != nil {
		return nil, err
	}
	return &pollResponse, nil
}

func (p *PollCmd) doAckOnly(ctx context.Context, client *http.Client, endpoint string, token string) {
	if p.AutoAck && len(p.Acks) > 0 {
		pollRequest := model.PollParameters{
			MaxEvents:         0,
			ReturnImmediately: true,
			Acks:              p.Acks,
		}
		pollResponse, err := p.doPollRequest(ctx, client, pollRequest, endpoint, token)
		if err != nil {
			fmt.Println("Error occurred performing polling acknowledgement: " + err.Error())
			return
		}
		if len(pollResponse.Sets) > 0 {
			fmt.Printf("Warning, %d SETs were returned from an ack-only request to %s\n", len(pollResponse.Sets), endpoint)
		}
	}
}

type ExitCmd struct {
}

func (e *ExitCmd) Run(globals *Globals) error {
	if err := globals.Data.Save(globals); err != nil {
		fmt.Println(err.Error())
	}
	os.Exit(0)
	return nil
}

type HelpCmd struct {
	Command []string `arg:"" optional:"" help:"Show help on command."`
}

func (h *HelpCmd) Run(realCtx *kong.Context) error {
	ctx, err := kong.Trace(realCtx.Kong, h.Command)
	if err != nil {
		return err
	}
	if ctx.Error != nil {
		return ctx.Error
	}
	if err = ctx.PrintUsage(false); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(realCtx.Stdout)
	return nil
}
