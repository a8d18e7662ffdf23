package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Printf("command %s: %v\n", os.Getenv("CMD_ID"), os.Args[1:])
}
