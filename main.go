package main

import "github.com/KaramelBytes/vaultsync-cli/cmd"

func main() {
	cmd.Execute()
}
