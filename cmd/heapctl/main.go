// Command heapctl exercises and inspects the heapkit allocators.
package main

func main() {
	execute()
}
