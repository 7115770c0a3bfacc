package main

import (
	"os"

	"github.com/encapsia/encapsia-go/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
