package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"wufwuf.org/internal/account"
	"wufwuf.org/internal/auth"
	"wufwuf.org/internal/httpapi"
	"wufwuf.org/internal/obs"
	"wufwuf.org/internal/store/pg"
)

var version = "0.3.1"

const defaultTokenTTL = 15 * time.Minute

func main() {
	obs.Init()

	dsn := os.Getenv("WUFWUF_PG_DSN")
	if dsn == "" {
		log.Fatal("missing WUFWUF_PG_DSN")
	}
	secret := os.Getenv("WUFWUF_AUTH_SECRET")
	if secret == "" {
		// Never generated in-process: a random secret would invalidate
		// every outstanding session on restart and break scaled replicas.
		log.Fatal("missing WUFWUF_AUTH_SECRET")
	}
	ttl := defaultTokenTTL
	if raw := os.Getenv("WUFWUF_TOKEN_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			log.Fatalf("invalid WUFWUF_TOKEN_TTL %q", raw)
		}
		ttl = parsed
	}
	addr := os.Getenv("WUFWUF_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	tokens, err := auth.NewTokenService(secret, ttl)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	accounts, err := account.NewController(store, tokens)
	if err != nil {
		log.Fatalf("account controller: %v", err)
	}

	api := httpapi.New(accounts, httpapi.ReadyProbe{DB: store.DB()}, version)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting wufwuf-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
