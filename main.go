package main

import (
	"os"

	"github.com/msglog/msglog/internal/cli"
)

func main() {
	code, _ := cli.Run(os.Args, nil)
	os.Exit(code)
}
