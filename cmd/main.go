package main

import (
	"os"

	"github.com/soundprediction/graphmem/cmd/graphmem"
)

func main() {
	if err := graphmem.Execute(); err != nil {
		os.Exit(1)
	}
}
