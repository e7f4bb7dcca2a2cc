package main

import (
	"github.com/mirrorpush/mirrorpush/cmd"
	"github.com/mirrorpush/mirrorpush/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
