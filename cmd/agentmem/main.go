package main

import (
	"fmt"
	"os"

	"github.com/cadre-oss/agentmem/internal/cli"
	memerrors "github.com/cadre-oss/agentmem/internal/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if sug := memerrors.Suggestion(err); sug != "" {
			fmt.Fprintln(os.Stderr, "Hint:", sug)
		}
		os.Exit(1)
	}
}
