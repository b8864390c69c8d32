package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/HanTheDev/phish-guard/internal/cli"
)

var version = "dev"

func main() {
	godotenv.Load()
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
