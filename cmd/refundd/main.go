package main

import (
	"log"

	"refundledger/services/refundd"
)

func main() {
	if err := refundd.Main(); err != nil {
		log.Fatalf("refundd: %v", err)
	}
}
