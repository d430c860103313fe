package main

import "github.com/trackline/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
