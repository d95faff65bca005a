package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arena-shooter/internal/arena"
	"arena-shooter/internal/config"
	"arena-shooter/internal/gateway"
	"arena-shooter/internal/lifecycle"
	"arena-shooter/internal/physics"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("no .env file found, using environment variables only")
		}
	} else {
		log.Println("loaded environment from ../.env")
	}

	log.Println("================================")
	log.Println(" ARENA SHOOTER - GO ENGINE")
	log.Println("================================")

	appCfg := config.Load()

	geo, err := arena.Load(appCfg.Arena.MapPath, appCfg.Arena.ArenaSize)
	if err != nil {
		log.Fatalf("fatal: failed to load arena geometry: %v", err)
	}
	log.Printf("arena: %d buildings, %d spawn points", len(geo.Buildings), len(geo.SpawnPoints))

	world := physics.NewWorld(geo, appCfg.Physics)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := lifecycle.NewStore(ctx, appCfg.Persistence)
	cancel()
	if err != nil {
		log.Fatalf("fatal: failed to initialize persistence: %v", err)
	}

	settle := lifecycle.NewSettlement(appCfg.Settlement)

	hub := gateway.NewHub()
	sink := gateway.NewSnapshotSink(hub)

	ctrl := lifecycle.New(appCfg.Match, appCfg.Bot, geo, world, store, settle, sink)
	if err := ctrl.Start(context.Background()); err != nil {
		log.Fatalf("fatal: failed to start match lifecycle: %v", err)
	}
	log.Println("lifecycle controller started, first lobby open")

	var verifier gateway.Verifier
	if appCfg.Identity.BaseURL == "" {
		log.Println("IDENTITY_SERVICE_URL unset, only test_ tokens will authenticate outside production")
		verifier = noopVerifier{}
	} else {
		verifier = gateway.NewHTTPVerifier(appCfg.Identity.BaseURL, appCfg.Identity.Timeout)
	}
	verifier = gateway.NewRedisCachedVerifier(verifier, appCfg.Gateway.RedisURL,
		appCfg.Gateway.IdentitySuccessTTL, appCfg.Gateway.IdentityFailureTTL)
	identity := gateway.NewIdentityCache(verifier, appCfg.Gateway.IdentitySuccessTTL,
		appCfg.Gateway.IdentityFailureTTL, appCfg.Gateway.ProductionMode)

	gw := gateway.New(ctrl, appCfg.Gateway, identity, hub)

	stopPump := make(chan struct{})
	go hub.Run()
	go hub.PumpSnapshots(ctrl, appCfg.Match.TickInterval(), stopPump)

	addr := fmt.Sprintf(":%d", appCfg.Gateway.Port)
	srv := &http.Server{Addr: addr, Handler: gw.Router()}

	go func() {
		log.Printf("gateway listening on http://localhost%s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("fatal: gateway server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Println("server ready, press Ctrl+C to stop")
	<-quit

	log.Println("shutting down...")
	close(stopPump)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	if e := ctrl.CurrentEngine(); e != nil {
		e.Stop()
	}
	store.Close()
	log.Println("goodbye")
}

// noopVerifier rejects everything except the test_ bypass the identity
// cache already handles before ever reaching a Verifier.
type noopVerifier struct{}

func (noopVerifier) Verify(ctx context.Context, token string) (gateway.Identity, error) {
	return gateway.Identity{}, gateway.ErrInvalidToken
}
