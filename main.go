package main

import (
	"os"

	"github.com/cloudgate/upload-gateway/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
