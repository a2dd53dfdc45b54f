package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"paygate/cardauth/pkg/config"
	"paygate/cardauth/pkg/cres"
	"paygate/cardauth/pkg/nuvei"
	"paygate/cardauth/pkg/web"
)

func run() error {
	log.Info("Starting card authentication daemon")
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	quitChan := make(chan interface{})

	err := godotenv.Load()
	if err != nil {
		log.WithError(err).Error("error loading .env, ignoring")
	}

	conf, err := config.Load()
	if err != nil {
		log.WithError(err).Error("error loading configuration")
		return err
	}

	processor := nuvei.NewClient(*conf)
	challenge := cres.NewClient(*conf)
	store := web.NewStore()
	log.WithField("environment", conf.Environment).Info("clients initialized")

	hc := web.NewHandlerContext(*conf, processor, challenge, store)

	sm := http.NewServeMux()
	sm.HandleFunc("/api/epoch", hc.HandleUtilityEpoch)
	sm.HandleFunc("/api/ip", hc.HandleUtilityIP)
	sm.HandleFunc("/api/v1/card/submit", hc.HandleSubmitCard)
	sm.HandleFunc("/api/v1/otp/submit", hc.HandleSubmitOtp)
	sm.HandleFunc("/api/v1/session/cancel", hc.HandleCancelChallenge)
	sm.HandleFunc("/api/v1/session/events", hc.HandleSubmissionEvents)

	server := http.Server{
		Addr:              conf.ListenAddress,
		Handler:           sm,
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	var listener net.Listener
	listener, err = net.Listen("tcp", conf.ListenAddress)
	if err != nil {
		log.WithError(err).Error("error setting up listener")
		return err
	}
	log.WithField("listen", conf.ListenAddress).Info("Starting HTTP API server")
	go startServer(&server, listener)
	for {
		select {
		case <-quitChan:
			log.Warn("quit channel closed, closing listener")
			err = server.Shutdown(context.Background())
			if err != nil {
				log.WithError(err).Error("error during HTTP server shutdown")
				return err
			}
			return nil
		case sig := <-signalChan:
			switch sig {
			case os.Interrupt, syscall.SIGTERM:
				log.Info("interrupt signal received, sending Quit signal")
				close(quitChan)
			}
		}
	}
}

func startServer(srv *http.Server, listener net.Listener) {
	err := srv.Serve(listener)
	if err != nil {
		log.WithError(err).Error("HTTP API server error")
	}
	log.Warn("closing HTTP API server")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
