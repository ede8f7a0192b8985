package main

import "mts/cmd"

func main() {
	cmd.Execute()
}
