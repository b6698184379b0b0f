package main

import (
	"foerderbande/cmd"

	"github.com/joho/godotenv"
	_ "golang.org/x/crypto/x509roots/fallback" // We need this to make TLS work in scratch containers
)

func main() {
	// A missing .env file is fine, flags and the environment still apply
	_ = godotenv.Load()

	cmd.Execute()
}
