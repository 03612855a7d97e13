package main

import "github.com/vietddude/orchestrator/internal/cli"

func main() {
	cli.Execute()
}
