package main

import "github.com/ValentinKolb/hashserv/cmd"

func main() {
	cmd.Execute()
}
