package main

import (
	"github.com/AzielCF/az-wacrm/cmd"
)

func main() {
	cmd.Execute()
}
