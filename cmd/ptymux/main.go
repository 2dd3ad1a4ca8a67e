// ptymux serves shareable terminal sessions over a websocket.
package main

import (
	"os"

	"github.com/ricochet1k/ptymux/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
