package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/internal/providers/dbProviders"
	ssf "github.com/i2-open/goSharedSignals/pkg/goSSF/server"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

var testLog = log.New(os.Stdout, "TOOL-TEST:   ", log.Ldate|log.Ltime)

var server1name = "toolTest1"
var testGenIssuer = "gen.example.com"

type ssfInstance struct {
	server   *http.Server
	provider dbProviders.DbProviderInterface
	app      *ssf.SignalsApplication
}

type toolSuite struct {
	suite.Suite
	pd      *ParserData
	server  *ssfInstance
	testDir string
}

func (suite *toolSuite) initialize() error {
	dir, _ := os.MkdirTemp(os.TempDir(), "goSsf-*")
	suite.testDir = dir

	configName := fmt.Sprintf("%s/toolconfig.json", suite.testDir)
	_ = os.Setenv("GOSSF_HOME", configName)

	cli := &CLI{}
	cli.Globals.Config = configName

	fmt.Println("Test working directory: " + dir)
	var err error
	suite.pd, err = initParser(cli)
	if err != nil {
		testLog.Println(err.Error())
	}

	instance, err := createServer(server1name)
	if err != nil {
		testLog.Printf("Error starting %s: %s", server1name, err.Error())
		return err
	}
	suite.server = instance
	return nil
}

func (suite *toolSuite) cleanup() {
	testLog.Printf("** Shutting down server %s...", suite.server.provider.Name())
	suite.server.app.Shutdown()
	time.Sleep(time.Second)
	_ = os.RemoveAll(suite.testDir)
	_ = os.Unsetenv("GOSSF_HOME")
}

func createServer(dbName string) (*ssfInstance, error) {
	var instance ssfInstance
	provider, err := dbProviders.OpenProvider("mockdb://"+dbName+"/", dbName)
	if err != nil {
		return nil, err
	}

	listener, _ := net.Listen("tcp", "localhost:0")

	signalsApplication := ssf.StartServer(listener.Addr().String(), provider, "")
	instance.app = signalsApplication
	instance.server = signalsApplication.Server
	instance.provider = provider

	go func() {
		_ = signalsApplication.Server.Serve(listener)
	}()
	return &instance, nil
}

func (suite *toolSuite) executeCommand(cmd string) ([]byte, error) {
	args := strings.Split(cmd, " ")
	var ctx *kong.Context
	ctx, err := suite.pd.parser.Parse(args)
	if err != nil {
		suite.pd.parser.Errorf("%s", err.Error())
		return nil, err
	}

	output := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err = ctx.Run(&suite.pd.cli.Globals)

	_ = w.Close()
	os.Stdout = output

	resultBytes, _ := io.ReadAll(r)
	_ = r.Close()

	return resultBytes, err
}

func TestTool(t *testing.T) {
	s := toolSuite{}
	err := s.initialize()
	if err != nil {
		t.Fatal("Error initializing tests: " + err.Error())
	}
	defer s.cleanup()

	suite.Run(t, &s)

	testLog.Println("** TEST COMPLETE **")
}

func (suite *toolSuite) Test1_AddServer() {
	cmd := fmt.Sprintf("add server %s http://%s/", server1name, suite.server.server.Addr)

	res, err := suite.executeCommand(cmd)
	assert.NoError(suite.T(), err, "Add server successful")
	testLog.Printf("%s", res)

	server, err := suite.pd.cli.Data.GetServer(server1name)
	assert.NoError(suite.T(), err, "Server was stored")
	assert.Equal(suite.T(), server1name, server.Alias, "Found server and matched")
	assert.NotEmpty(suite.T(), server.ClientToken, "Client registration produced a token")
	assert.NotNil(suite.T(), server.ServerConfiguration)

	res, err = suite.executeCommand("show server " + server1name)
	assert.NoError(suite.T(), err, "Show server successful")
	assert.Contains(suite.T(), string(res), "/jwks.json", "Has jwks uri")
}

func (suite *toolSuite) Test2_CreateKey() {
	pemFile := fmt.Sprintf("%s/pem-%s.pem", suite.testDir, server1name)
	cmd := fmt.Sprintf("create key %s %s --file=%s", server1name, testGenIssuer, pemFile)

	_, err := suite.executeCommand(cmd)
	assert.NoError(suite.T(), err, "Error creating issuer key")

	info, err := os.Stat(pemFile)
	assert.NoError(suite.T(), err, "PEM file was written")
	assert.Greater(suite.T(), info.Size(), int64(10), "PEM file present (> 0 bytes)")

	key, err := suite.pd.cli.Data.GetKey(testGenIssuer)
	assert.NoError(suite.T(), err, "PEM parses to an RSA key")
	assert.NotNil(suite.T(), key)
}

func (suite *toolSuite) Test3_CreateStream() {
	cmd := fmt.Sprintf("create stream events1 --server=%s --aud=receiver.example.com --events=*", server1name)

	res, err := suite.executeCommand(cmd)
	assert.NoError(suite.T(), err, "Create stream has no error")
	testLog.Printf("%s", res)

	stream, server := suite.pd.cli.Data.GetStreamAndServer("events1")
	assert.NotNil(suite.T(), stream, "Stream stored locally")
	assert.Equal(suite.T(), server1name, server.Alias)
	assert.NotEmpty(suite.T(), stream.Id)
	assert.NotEmpty(suite.T(), stream.Token, "Poll delivery token captured")
	assert.Contains(suite.T(), stream.Endpoint, "/poll/", "Poll endpoint captured")

	res, err = suite.executeCommand("get stream config events1")
	assert.NoError(suite.T(), err, "Get stream config successful")
	assert.Contains(suite.T(), string(res), stream.Id)

	res, err = suite.executeCommand("get stream status events1")
	assert.NoError(suite.T(), err, "Get stream status successful")
	assert.Contains(suite.T(), string(res), model.StreamStatusEnabled)
}

func (suite *toolSuite) Test4_SetStreamStatus() {
	res, err := suite.executeCommand("set stream status events1 paused --reason=maintenance")
	assert.NoError(suite.T(), err, "Pause stream successful")
	assert.Contains(suite.T(), string(res), "paused")

	res, err = suite.executeCommand("get stream status events1")
	assert.NoError(suite.T(), err)
	assert.Contains(suite.T(), string(res), model.StreamStatusPaused)

	_, err = suite.executeCommand("set stream status events1 enabled")
	assert.NoError(suite.T(), err, "Re-enable stream successful")
}

func (suite *toolSuite) Test5_GenerateEvent() {
	res, err := suite.executeCommand("generate session-revoked")
	assert.NoError(suite.T(), err, "Generate event successful")
	result := string(res)
	assert.Contains(suite.T(), result, model.EventCaepSessionRevoked, "Event type URI present")
	assert.Contains(suite.T(), result, "session_id", "Payload present")
}

func (suite *toolSuite) Test6_Verify() {
	res, err := suite.executeCommand("verify events1")
	assert.NoError(suite.T(), err, "Verification request successful")
	assert.Contains(suite.T(), string(res), "Verification event queued")

	// a second request inside the minimum interval throttles
	_, err = suite.executeCommand("verify events1")
	assert.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "throttled")
}

func (suite *toolSuite) Test7_DeleteStream() {
	res, err := suite.executeCommand("delete stream events1")
	assert.NoError(suite.T(), err, "Delete stream successful")
	assert.Contains(suite.T(), string(res), "deleted")

	stream, _ := suite.pd.cli.Data.GetStreamAndServer("events1")
	assert.Nil(suite.T(), stream, "Stream removed locally")
}
