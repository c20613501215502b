package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/eramir/facecheck/internal/api"
	"github.com/eramir/facecheck/internal/broker"
	"github.com/eramir/facecheck/internal/config"
	"github.com/eramir/facecheck/internal/cv"
	"github.com/eramir/facecheck/internal/images"
	"github.com/eramir/facecheck/internal/service"
	"github.com/eramir/facecheck/internal/store"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taskStore, err := store.NewTaskStore(cfg.Database.DSN())
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		if err := taskStore.Close(); err != nil {
			log.Printf("failed to close task store: %v", err)
		}
	}()

	imageStore, err := images.NewStore(cfg.Storage.ImagesDir)
	if err != nil {
		log.Fatal(err)
	}

	b := broker.New(cfg.Broker.Addr, cfg.Broker.ConnectionMax, cfg.Broker.ChannelMax)
	defer b.Close()

	publisher := cv.NewPublisher(b)
	tasks := service.NewTaskService(taskStore, imageStore, publisher)

	// The one response listener for the whole process. It owns the shared
	// response queue and runs until shutdown.
	listener := cv.NewListener(b, tasks.SaveResponses)
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)

		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("listener stopped: %v", err)
		}
	}()

	server := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: api.NewAPI(tasks),
	}

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		log.Printf("Connected to Redis at %s", cfg.Broker.Addr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("failed to shut down HTTP server: %v", err)
	}

	<-listenerDone
}
