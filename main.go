package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"screenshare/config"
	"screenshare/handlers/api/rooms"
	"screenshare/handlers/socketio"
	"screenshare/handlers/websocket"
	"screenshare/relay"
	"screenshare/stores"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
	sio "github.com/zishang520/socket.io/v2/socket"
)

// originAllowed accepts local development origins, the desktop shell and
// any origin listed in ALLOWED_ORIGINS.
func originAllowed(allowed []string) func(origin string) bool {
	return func(origin string) bool {
		if origin == "" {
			return false
		}
		if slices.Contains(allowed, origin) {
			return true
		}

		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}

		switch parsed.Scheme {
		case "http", "https":
			switch parsed.Hostname() {
			case "localhost", "127.0.0.1", "::1":
				return true
			}
		case "tauri":
			return parsed.Hostname() == "localhost"
		}

		return false
	}
}

func setupRouter(cfg *config.Config, rl *relay.Relay) *chi.Mux {
	allowed := originAllowed(cfg.AllowedOrigins)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return allowed(origin)
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, "ok")
	})

	r.Mount("/api/rooms", rooms.Routes(rl))

	r.Handle("/ws", websocket.Handler(rl, websocket.Options{
		MaxMessageSize: cfg.MaxMessageSize,
		QueueSize:      cfg.SendQueueSize,
		CheckOrigin: func(r *http.Request) bool {
			// Native clients send no Origin header.
			origin := r.Header.Get("Origin")
			return origin == "" || allowed(origin)
		},
	}))

	return r
}

func waitForShutdown(srv *http.Server, ioo *sio.Server, rl *relay.Relay) {
	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ioo.Close(nil)
	rl.Close()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
}

func main() {
	logLevel := flag.String("loglevel", "", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", "", "Set the server listen address")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(config.Options{
		ListenAddr: *listenAddr,
		LogLevel:   *logLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)

	rl := relay.New(stores.GetRoomRegistry(cfg.StorageType))

	r := setupRouter(cfg, rl)
	ioo := socketio.Setup(rl, socketio.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxMessageSize: cfg.MaxMessageSize,
		QueueSize:      cfg.SendQueueSize,
	})
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	logrus.WithField("addr", cfg.ListenAddr).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(srv, ioo, rl)
}
