package main

import "github.com/hesamsheikh/AnimAI-Trainer/internal/cli"

func main() {
	cli.Execute()
}
