package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

/*
Config holds the server process configuration, read from SSF_* environment
variables. DbUrl accepts either a mongodb:// connection string or the
mockdb: prefix for the in-memory provider.
*/
type Config struct {
	Port    string `envconfig:"PORT" default:"8888"`
	BaseUrl string `envconfig:"BASE_URL"`
	DbUrl   string `envconfig:"DB_URL" default:"mongodb://localhost:27017"`
	DbName  string `envconfig:"DB_NAME" default:"ssfRouter"`
	Issuer  string `envconfig:"ISSUER" default:"DEFAULT"`
}

func GetEnvConfig() Config {
	var cfg Config
	err := envconfig.Process("SSF", &cfg)
	if err != nil {
		log.Println("Error occurred reading configuration: " + err.Error())
		return Config{}
	}
	return cfg
}
