package main

import (
	"os"

	"github.com/pdf-extractor/backend/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
