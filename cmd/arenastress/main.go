// Command arenastress runs a producer/consumer workload against the arena
// allocator and checks that every block is returned to its source.
package main

func main() {
	execute()
}
