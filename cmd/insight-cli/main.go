package main

import "gitlab-insight/cmd/insight-cli/command"

func main() {
	command.Execute()
}
