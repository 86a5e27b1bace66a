package main

import "github.com/ice-blockchain/go-rwsplit/internal/cli"

func main() {
	cli.Execute()
}
