package main

import "trading-analyst/internal/cli"

func main() {
	cli.Execute()
}
