package main

import (
	"log"
	"os"

	"github.com/harshkas4na/VolatilityProtection/cmd/lopctl/commands"
)

func main() {
	log.SetFlags(0)
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
