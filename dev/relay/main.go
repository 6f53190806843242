package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqy/minichat/auth"
	"github.com/mqy/minichat/config"
	"github.com/mqy/minichat/relay"
	"github.com/mqy/minichat/store"
)

// The relay is a development chat backend for the terminal client and tests.

var (
	flagEnvFile        = flag.String("env-file", ".env", "optional .env file")
	flagAddr           = flag.String("addr", "", "server address, ip:port; overrides MINICHAT_RELAY_ADDR")
	flagDB             = flag.String("db", "", "bbolt message db path; overrides MINICHAT_RELAY_DB")
	flagDisableMetrics = flag.Bool("disable-metrics", false, "disable prometheus metrics")
)

func main() {
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	conf, err := config.Load(*flagEnvFile)
	if err != nil {
		return errorf("%v", err)
	}
	if *flagAddr != "" {
		conf.Relay.Addr = *flagAddr
	}
	if *flagDB != "" {
		conf.Relay.DBPath = *flagDB
	}
	if err := conf.Validate(); err != nil {
		return errorf("%v", err)
	}
	if err := validateAddr(conf.Relay.Addr); err != nil {
		return errorf("--addr: %v", err)
	}

	msgStore, err := store.NewBoltStore(conf.Relay.DBPath)
	if err != nil {
		return errorf("%v", err)
	}
	defer func() {
		_ = msgStore.Close()
	}()

	authClient, issue := newAuth(&conf.Relay)
	r := relay.New(authClient, msgStore, issue)

	mux := http.NewServeMux()
	if !*flagDisableMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		))
	}
	mux.Handle("/", r)

	srv := &http.Server{
		Addr:              conf.Relay.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		errC <- srv.ListenAndServe()
	}()

	glog.Infof("minichat relay is listening on %s, `CTRL+c` or `kill %d` to graceful stop", conf.Relay.Addr, os.Getpid())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case err := <-errC:
		return errorf("server error: %v", err)
	case sig := <-sigCh:
		glog.Infof("received signal `%s` stopping", sig.String())
	}

	r.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		glog.Errorf("shutdown error: %v", err)
	}

	glog.Info("minichat relay exited")
	return 0
}

// newAuth authenticates JWT bearer tokens when a secret is configured, else
// trusts the token as the uid.
func newAuth(conf *config.RelayConfig) (auth.Client, relay.Issuer) {
	if conf.JWTSecret == "" {
		glog.Infof("JWT_SECRET is empty, using mock auth")
		return &auth.MockClient{}, func(uid string) (string, error) { return uid, nil }
	}
	return &auth.JWTClient{Secret: conf.JWTSecret}, func(uid string) (string, error) {
		return auth.NewToken(conf.JWTSecret, uid, conf.TokenTTL)
	}
}

func validateAddr(s string) error {
	ips, _, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("error split host port from `%s`: %v", s, err)
	}
	ip := net.ParseIP(ips)
	if ip == nil {
		return fmt.Errorf("error parse IP from host `%s`", ips)
	}
	if !ip.IsLoopback() && !ip.IsPrivate() {
		return fmt.Errorf("`%s` is not loopback or private address", ips)
	}
	return nil
}

func errorf(fmt string, args ...interface{}) int {
	glog.Errorf(fmt, args...)
	return 1
}
