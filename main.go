package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/zeu5/crm/benchmarks"
)

// main entry point to all the experiments
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCommand := benchmarks.GetRootCommand()
	if err := rootCommand.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}
