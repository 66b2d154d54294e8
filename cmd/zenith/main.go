// Command zenith is an interactive terminal dashboard for CPU, memory,
// network, disk, battery, and (optionally) NVIDIA GPU vitals, plus a
// filterable process table, with scroll-back history persisted across
// runs.
package main

import (
	"fmt"
	"os"

	"github.com/Dicklesworthstone/zenith/internal/app"
	"github.com/Dicklesworthstone/zenith/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return config.ExitBadArguments
	}
	if cfg.ShowHelp {
		fmt.Print(config.Usage())
		return config.ExitOK
	}
	if cfg.ShowVersion {
		fmt.Printf("zenith %s\n", config.Version)
		return config.ExitOK
	}
	return app.Run(cfg)
}
