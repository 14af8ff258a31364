// Copyright © 2019 Packline

package main

import (
	"github.com/packline/revstore/cmd/revstore/cmd"
)

func main() {
	cmd.Execute()
}
