package main

import (
	"os"

	"sdburn/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
