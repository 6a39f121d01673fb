package main

import "github.com/vietddude/buywatcher/internal/cli"

func main() {
	cli.Execute()
}
