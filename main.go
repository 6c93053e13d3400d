// api/main.go
package main

import (
	"os"

	"storepulse/api/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
