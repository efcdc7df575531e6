package main

import "github.com/nik-kale/Secure-MCP-Gateway/internal/cli"

func main() {
	cli.Execute()
}
