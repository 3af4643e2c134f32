// Command agentgraph runs, serves and inspects agent graphs.
package main

func main() {
	Execute()
}
