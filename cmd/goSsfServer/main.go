package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/i2-open/goSharedSignals/config"
	"github.com/i2-open/goSharedSignals/internal/providers/dbProviders"
	ssf "github.com/i2-open/goSharedSignals/pkg/goSSF/server"
)

// stripQuotes removes surrounding quotes that docker-compose env files
// sometimes leave on values.
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

func main() {
	cfg := config.GetEnvConfig()

	dbUrl := stripQuotes(cfg.DbUrl)
	dbName := stripQuotes(cfg.DbName)
	baseUrl := stripQuotes(cfg.BaseUrl)
	port := stripQuotes(cfg.Port)

	if cfg.Issuer != "" {
		_ = os.Setenv("SSF_ISSUER", stripQuotes(cfg.Issuer))
	}

	provider, err := dbProviders.OpenProvider(dbUrl, dbName)
	if err != nil {
		log.Fatalf("Unable to open provider [%s]: %s", dbUrl, err.Error())
	}

	sa := ssf.StartServer("0.0.0.0:"+port, provider, baseUrl)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		sa.Shutdown()
		os.Exit(0)
	}()

	err = sa.Server.ListenAndServe()
	if err != nil {
		log.Println(err.Error())
	}
}
