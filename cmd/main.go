package main

import (
	"github.com/collector-remoting/cmd/agent"
)

func main() {
	agent.Execute()
}
