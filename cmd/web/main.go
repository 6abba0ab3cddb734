package main

import (
	"context"
	"log"

	"plant-diagnostics-web/internal/bootstrap"
	"plant-diagnostics-web/internal/config"
	"plant-diagnostics-web/internal/server"
	"plant-diagnostics-web/internal/tracer"
)

func main() {
	// 0. Initialize Tracer
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)

	// 3. Start Background Services
	go func() {
		log.Println("Background: Starting Relay Service...")
		if err := container.RelayService.Consume(context.Background()); err != nil {
			log.Printf("Background Relay Error: %v", err)
		}
	}()
	go func() {
		log.Println("Background: Starting Prediction Channel...")
		if err := container.Channel.Run(context.Background()); err != nil {
			log.Printf("Background Channel Error: %v", err)
		}
	}()

	// 4. Initialize Server
	srv := server.New(cfg, container)

	// 5. Run Server
	log.Fatal(srv.Run())
}
