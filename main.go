package main

import "turdusctl/internal/cli"

func main() {
	cli.Execute()
}
