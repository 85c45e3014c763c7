package main

import (
	"os"

	"github.com/moratsam/opencl-vector-flow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
