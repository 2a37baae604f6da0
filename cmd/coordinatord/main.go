package main

import (
	"os"

	"github.com/5day4cast/coordinator/internal/daemon"
)

func main() {
	os.Exit(daemon.Run(os.Args))
}
