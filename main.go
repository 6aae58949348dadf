package main

import "github.com/conwatch/conwatch/cmd"

func main() {
	cmd.Execute()
}
