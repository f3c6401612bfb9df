package main

import (
	"github.com/dnsparity/dnsparity/cmd"
)

func main() {
	cmd.Execute()
}
