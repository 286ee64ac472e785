// Package main — точка входа call-service (HTTP + WebSocket signaling).
package main

import (
	"log"

	"github.com/psds-microservice/call-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
