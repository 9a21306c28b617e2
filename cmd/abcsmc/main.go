package main

import "github.com/emiliopalmerini/abcsmc/internal/cli"

func main() {
	cli.Execute()
}
