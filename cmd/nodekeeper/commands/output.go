package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(verb string, s *pack.Summary) error {
	if jsonOutput {
		return printJSON(s)
	}
	if s == nil {
		return nil
	}
	state := "disabled"
	if s.Enabled {
		state = "enabled"
	}
	fmt.Printf("%s %s (%s %s, %s)\n", verb, s.Name, s.Kind, s.Version, state)
	return nil
}
