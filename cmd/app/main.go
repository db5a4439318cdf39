// entry point to the rental service
package main

import (
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/config"
	"github.com/ds124wfegd/car-rental/internal/appServer"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))

	viperInstance, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Cannot load config. Error: {%s}", err.Error())
	}

	cfg, err := config.ParseConfig(viperInstance)
	if err != nil {
		logrus.Fatalf("Cannot parse config. Error: {%s}", err.Error())
	}

	logrus.WithFields(logrus.Fields{
		"version": cfg.Server.AppVersion,
		"env":     cfg.Server.Env,
		"storage": cfg.Storage.Driver,
	}).Info("config loaded")
	appServer.NewServer(cfg)
}
