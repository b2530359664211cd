package main

import "github.com/nguyentranbao-ct/team-messaging/cmd"

func main() {
	cmd.Execute()
}
