package main

import "github.com/forPelevin/aishorts/internal/cli"

func main() {
	cli.Main()
}
