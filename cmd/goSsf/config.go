package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/i2-open/goSharedSignals/internal/model"
)

var ConfigFile = "config.json"

type SsfServer struct {
	Alias               string
	Host                string
	ClientToken         string // Administers streams (scope admin) within a project
	IatToken            string // Registers new clients in the same project
	ProjectId           string
	Streams             map[string]Stream
	ServerConfiguration *model.TransmitterConfiguration
}

type Stream struct {
	Alias      string `json:"alias"`
	Id         string `json:"id"`
	Token      string `json:"token"`
	Endpoint   string `json:"endpoint"`
	Iss        string `json:"iss"`
	Aud        string `json:"aud"` // comma separated
	IssJwksUrl string `json:"issJwksUrl"`
}

type ConfigData struct {
	Selected string
	Servers  map[string]SsfServer
	Pems     map[string][]byte

	keys map[string]*rsa.PrivateKey `json:"-"` // parsed keys, not persisted
}

func (c *ConfigData) GetKey(issuerId string) (*rsa.PrivateKey, error) {
	if c.keys == nil {
		c.keys = map[string]*rsa.PrivateKey{}
	}
	if key := c.keys[issuerId]; key != nil {
		return key, nil
	}

	if c.Pems == nil {
		return nil, errors.New("no PEMs loaded; configuration not initialized")
	}
	pemBytes, ok := c.Pems[issuerId]
	if !ok || len(pemBytes) == 0 {
		return nil, fmt.Errorf("no PEM found for issuer '%s'", issuerId)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil || len(block.Bytes) == 0 {
		return nil, errors.New("invalid or corrupt PEM data")
	}

	pkcs8PrivateKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := pkcs8PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("PEM does not hold an RSA private key")
	}
	c.keys[issuerId] = key

	return key, nil
}

/*
GetStreamAndServer returns either the specified stream, server, or server and
stream when using <server>.<stream> notation.
*/
func (c *ConfigData) GetStreamAndServer(alias string) (*Stream, *SsfServer) {
	if strings.Contains(alias, ".") {
		parts := strings.SplitN(alias, ".", 2)
		server, exists := c.Servers[parts[0]]
		if !exists {
			return nil, nil
		}
		stream, exists := server.Streams[parts[1]]
		if !exists {
			return nil, &server
		}
		return &stream, &server
	}
	for ks, server := range c.Servers {
		if ks == alias {
			return nil, &server
		}
		for k, stream := range server.Streams {
			if k == alias {
				return &stream, &server
			}
		}
	}
	return nil, nil
}

/*
GetServer returns either the specified server alias, or the currently selected
server if alias is "".
*/
func (c *ConfigData) GetServer(alias string) (*SsfServer, error) {
	if alias != "" {
		server, exists := c.Servers[alias]
		if !exists {
			return nil, fmt.Errorf("specified alias '%s' is not defined", alias)
		}
		return &server, nil
	}

	if c.Selected == "" || len(c.Servers) == 0 {
		return nil, errors.New("no servers defined, use 'add server'")
	}

	server := c.Servers[c.Selected]
	return &server, nil
}

// serverPath joins a path onto the server host URL without doubling slashes.
func serverPath(server *SsfServer, path string) string {
	return strings.TrimSuffix(server.Host, "/") + path
}

func getStreamConfig(client *http.Client, server *SsfServer, stream *Stream) (*model.StreamConfiguration, error) {
	req, err := http.NewRequest(http.MethodGet, server.ServerConfiguration.ConfigurationEndpoint+"?stream_id="+stream.Id, nil)
	if err != nil {
		return nil, err
	}
	if server.ClientToken != "" {
		req.Header.Set("Authorization", "Bearer "+server.ClientToken)
	} else if stream.Token != "" {
		req.Header.Set("Authorization", "Bearer "+stream.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error retrieving configuration for %s: %s", stream.Alias, resp.Status)
	}
	bodyBytes, _ := io.ReadAll(resp.Body)
	var config model.StreamConfiguration
	if err := json.Unmarshal(bodyBytes, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *ConfigData) checkConfigPath(g *Globals) error {
	configPath := g.Config
	if configPath == "" {
		configPath = stripQuotes(os.Getenv("GOSSF_HOME"))
		if configPath == "" {
			configPath = ".goSsf/" + ConfigFile
			usr, err := user.Current()
			if err == nil {
				configPath = filepath.Join(usr.HomeDir, configPath)
			}
		} else {
			fmt.Printf("Using GOSSF_HOME path: %s\n", configPath)
			g.ConfigFile = configPath
			return nil
		}
	}

	dirPath := filepath.Dir(configPath)
	baseFile := filepath.Base(configPath)
	if filepath.Ext(baseFile) == "" {
		dirPath = configPath
		configPath = filepath.Join(dirPath, ConfigFile)
	}

	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		fmt.Printf("Creating new config path: %s\n", dirPath)
		if err = os.MkdirAll(dirPath, 0770); err != nil {
			fmt.Printf("Error creating directory %s: %s", dirPath, err)
			return err
		}
	}

	g.ConfigFile = configPath
	return nil
}

func (c *ConfigData) Load(g *Globals) error {
	if c.Pems == nil {
		c.Pems = map[string][]byte{}
	}
	if c.Servers == nil {
		c.Servers = map[string]SsfServer{}
	}
	if c.keys == nil {
		c.keys = map[string]*rsa.PrivateKey{}
	}

	if _, err := os.Stat(g.ConfigFile); os.IsNotExist(err) {
		return nil // No existing configuration
	}

	configBytes, err := os.ReadFile(g.ConfigFile)
	if err != nil {
		fmt.Println("Error reading configuration: " + err.Error())
		return nil
	}
	if len(configBytes) == 0 {
		return nil
	}
	err = json.Unmarshal(configBytes, c)
	if err != nil {
		fmt.Println("Error parsing stored configuration: " + err.Error())
		return err
	}

	if c.Pems == nil {
		c.Pems = map[string][]byte{}
	}
	if c.Servers == nil {
		c.Servers = map[string]SsfServer{}
	}
	if c.keys == nil {
		c.keys = map[string]*rsa.PrivateKey{}
	}
	return nil
}

func (c *ConfigData) Save(g *Globals) error {
	out, err := json.MarshalIndent(c, "", " ")
	if err != nil {
		return err
	}
	err = os.WriteFile(g.ConfigFile, out, 0660)
	if err != nil {
		fmt.Println("Error saving configuration: " + err.Error())
	}
	return err
}

// stripQuotes removes surrounding quotes that docker env files sometimes leave
// on values.
func stripQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	first := value[0]
	last := value[len(value)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return value[1 : len(value)-1]
	}
	return value
}
