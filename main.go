package main

import (
	"github.com/beamdrop/beamdrop/cmd"
	"github.com/beamdrop/beamdrop/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
