package main

import "github.com/brk3/streakmate/cmd"

func main() {
	cmd.Execute()
}
