package main

import (
	"os"

	"github.com/jamesprial/go-ifunny-api-wrapper/internal/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
