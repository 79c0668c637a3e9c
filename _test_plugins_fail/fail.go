// Command fail is built as a Go plugin that fails to load, because its
// constructor has the wrong type.
package main

func NewInstance() string {
	return "noop"
}

func main() {}
