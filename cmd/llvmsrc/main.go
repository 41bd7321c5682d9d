package main

import "github.com/goplus/llvmsrc/cmd/llvmsrc/internal"

func main() {
	internal.Execute()
}
