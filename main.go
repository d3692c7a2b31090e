package main

import "github.com/KaramelBytes/storyteller/cmd"

func main() {
	cmd.Execute()
}
