package main

import "github.com/hydrocred/hydrocred/internal/cli"

func main() {
	cli.Execute()
}
