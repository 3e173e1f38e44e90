package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/woffyai/woffyd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error("woffyd failed", "err", err)
		os.Exit(1)
	}
}
