package main

import (
	"github.com/ekaya-inc/ekaya-ask/cmd"
)

func main() {
	cmd.Execute()
}
