package main

import (
	"fmt"
	"io"

	"github.com/jwebster45206/villager-trader/internal/config"
)

func validateConfig(out io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Configuration OK (%s)\n\n", path)
	fmt.Fprint(out, cfg.Summary())
	return nil
}
