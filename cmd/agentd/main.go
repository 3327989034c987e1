// Command agentd runs the deep-research agent's HTTP service.
package main

import "deepresearch/internal/agentd"

func main() {
	agentd.Run()
}
