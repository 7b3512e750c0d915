package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/zfogg/friendlypix/internal/pathindex"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect cascade rule files",
}

var validateRulesCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a rules file (or the built-in rules) and list its cascades",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			rs  *pathindex.RuleSet
			err error
		)
		source := "built-in rules"
		if len(args) == 1 {
			source = args[0]
			rs, err = pathindex.LoadRuleSet(source)
		} else {
			rs, err = pathindex.DefaultRuleSet()
		}
		if err != nil {
			return err
		}
		ix, err := pathindex.New(rs)
		if err != nil {
			fmt.Printf("%s %s\n", red("✗"), source)
			return err
		}

		rules := ix.Rules()
		sort.Slice(rules, func(i, j int) bool {
			if rules[i].Kind != rules[j].Kind {
				return rules[i].Kind < rules[j].Kind
			}
			return rules[i].Event < rules[j].Event
		})
		if output == "json" {
			return printJSON(rules)
		}

		fmt.Printf("%s %s: %d rules, %d indexes\n", green("✓"), source, len(rules), len(rs.Indexes))
		for _, r := range rules {
			fmt.Printf("  %s/%s %s\n", r.Kind, r.Event, faint(r.Source))
			for _, p := range r.Paths {
				fmt.Printf("    %s %s\n", p.Op, p.Path)
			}
		}
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(validateRulesCmd)
}
