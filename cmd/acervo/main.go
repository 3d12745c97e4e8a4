package main

import (
	"os"

	"github.com/acervo-ai/acervo/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
