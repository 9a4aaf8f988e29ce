package main

import (
	"fmt"
	"os"
)

func main() {
	// 敏感信息（TAVUS_API_KEY）只走环境变量，其余参数见 server/configs/storyteller.yaml。
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
