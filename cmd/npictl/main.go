package main

import "github.com/aman-zulfiqar/solana-npi-router/internal/cli"

func main() {
	cli.Execute()
}
