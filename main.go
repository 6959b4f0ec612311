package main

import (
	"github.com/AzielCF/az-compare/cmd"
)

func main() {
	cmd.Execute()
}
