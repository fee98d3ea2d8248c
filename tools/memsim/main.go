// Command memsim runs the kernel memory hand-off against simulated physical
// memory and reports the resulting layout.
package main

func main() {
	execute()
}
