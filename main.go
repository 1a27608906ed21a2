package main

import "github.com/kebairia/zipbackup/cmd"

func main() {
	cmd.Execute()
}
