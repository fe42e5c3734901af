// Reference Conference Server
//
// This server hosts a minimal conference app that records the same
// connection checkpoints a production deployment does. Point the
// conntime runner or the e2e suite at it to exercise the timing checks
// without an external deployment.
//
// Usage:
//
//	go run ./cmd/meet-server -addr :8080
//	go run ./cmd/meet-server -addr :8080 -max-users 3 -attach
//	go run ./cmd/meet-server -auth-user host -auth-password secret
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/meettorture/cmd/meet-server/server"
)

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	maxUsers := flag.Int("max-users", 0, "Maximum occupants per room (0 = unlimited)")
	attach := flag.Bool("attach", false, "Serve pre-bound sessions (externalConnectUrl)")
	authUser := flag.String("auth-user", "", "Require room hosts to sign in with this username")
	authPass := flag.String("auth-password", "", "Host password")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := server.DefaultConfig()
	cfg.Addr = *addr
	cfg.MaxOccupants = *maxUsers
	cfg.ExternalConnect = *attach
	cfg.Log = log
	if *authUser != "" {
		cfg.Auth = &server.Credentials{Username: *authUser, Password: *authPass}
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to create server")
	}

	listen, err := srv.Start()
	if err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
	log.WithFields(logrus.Fields{
		"addr":      listen,
		"max_users": cfg.MaxOccupants,
		"attach":    cfg.ExternalConnect,
		"auth":      cfg.Auth != nil,
	}).Info("open http://localhost" + *addr + "/<room> in a browser")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
}
