package main

import "termin-notifier/cmd"

func main() {
	cmd.Execute()
}
