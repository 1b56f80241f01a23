package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/crgimenes/goconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/purldb/purldb/libreconcile"
	"github.com/purldb/purldb/reconciler"
)

// Config this struct is using the goconfig library for simple flag and env var
// parsing. See: https://github.com/crgimenes/goconfig
type Config struct {
	HTTPListenAddr   string `cfgDefault:"0.0.0.0:8080" cfg:"HTTP_LISTEN_ADDR"`
	ConnString       string `cfgDefault:"host=localhost port=5434 user=purldb dbname=purldb password=purldb sslmode=disable" cfg:"CONNECTION_STRING" cfgHelper:"Connection string for the provided DataStore"`
	IdentityMode     string `cfgDefault:"purl-then-download-url" cfg:"IDENTITY_MODE" cfgHelper:"How observations are matched to packages: purl-then-download-url or download-url-only"`
	BatchConcurrency int    `cfgDefault:"10" cfg:"BATCH_CONCURRENCY" cfgHelper:"The number of observations reconciled concurrently per batch request"`
	LogLevel         string `cfgDefault:"debug" cfg:"LOG_LEVEL" cfgHelper:"Log levels: debug, info, warning, error, fatal, panic" `
}

func main() {
	ctx := context.Background()
	// parse our config
	conf := Config{}
	err := goconfig.Parse(&conf)
	if err != nil {
		log.Fatal().Msgf("failed to parse config: %v", err)
	}

	// setup pretty logging
	zerolog.SetGlobalLevel(logLevel(conf))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	ctx = log.Logger.WithContext(ctx)

	mode, err := reconciler.ParseIdentityMode(conf.IdentityMode)
	if err != nil {
		log.Fatal().Msgf("bad identity mode: %v", err)
	}
	opts := &libreconcile.Options{
		ConnString:       conf.ConnString,
		Migrations:       true,
		IdentityMode:     mode,
		BatchConcurrency: conf.BatchConcurrency,
	}

	// create libreconcile
	lib, err := libreconcile.New(ctx, opts)
	if err != nil {
		log.Fatal().Msgf("failed to create libreconcile %v", err)
	}
	defer lib.Close(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", libreconcile.NewHandler(lib))
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:        conf.HTTPListenAddr,
		Handler:     mux,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	log.Printf("starting http server on %v", conf.HTTPListenAddr)
	err = srv.ListenAndServe()
	if err != nil {
		log.Fatal().Msgf("failed to start http server: %v", err)
	}
}

func logLevel(conf Config) zerolog.Level {
	level := strings.ToLower(conf.LogLevel)
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}
