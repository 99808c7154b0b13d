package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// flowstack-mirror serves a directory of release archives over HTTP so
// air-gapped hosts can point their mirror lists at it:
//
//	flowstack-mirror --root /srv/releases --addr :9000
//
// Resulting URLs look like:
//
//	http://10.0.0.5:9000/logstash-6.3.2.tar.gz
//	http://10.0.0.5:9000/elastiflow.tar.gz
func main() {
	var (
		root = flag.String("root", ".", "directory of archives to serve")
		addr = flag.String("addr", ":9000", "listen address (host:port)")
	)
	flag.Parse()
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	absRoot, err := filepath.Abs(*root)
	if err != nil {
		log.Fatal().Err(err).Msg("could not resolve root")
	}
	st, err := os.Stat(absRoot)
	if err != nil {
		log.Fatal().Str("root", absRoot).Err(err).Msg("root not accessible")
	}
	if !st.IsDir() {
		log.Fatal().Str("root", absRoot).Msg("root is not a directory")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","time_utc":"%s"}`, time.Now().UTC().Format(time.RFC3339))
	})
	mux.Handle("/", http.FileServer(http.Dir(absRoot)))

	srv := &http.Server{Addr: *addr, Handler: mux}
	log.Info().Str("root", absRoot).Str("addr", *addr).Msg("serving archives")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server exited")
	}
}
