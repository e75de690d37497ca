package main

import "github.com/codex-usage/codex-usage/cmd"

func main() {
	cmd.Execute()
}
