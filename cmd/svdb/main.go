package main

import "github.com/mvp-joe/svdb/internal/cli"

func main() {
	cli.Execute()
}
