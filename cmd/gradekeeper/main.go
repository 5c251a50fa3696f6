package main

import "github.com/stallev/gradekeeper/cmd/gradekeeper/cmd"

func main() {
	cmd.Execute()
}
