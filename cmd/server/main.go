package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/antoine78910/ecomefficiency-sub002/internal/server"
)

func main() {
	// Optional .env for local development; real deployments use the
	// process environment.
	godotenv.Load()

	s, err := server.NewServer()
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	s.Run()
}
