package commands

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/matchkit/internal/textio"
	"github.com/Sumatoshi-tech/matchkit/pkg/prefixtree"
)

// Match mode names accepted by --mode.
const (
	ModeLongest  = "longest"
	ModeShortest = "shortest"
	ModeExact    = "exact"
)

const missMark = "-"

// errUnknownMode rejects a --mode value outside the three match modes.
var errUnknownMode = errors.New("unknown match mode")

// MatchCommand holds the flags for the match command.
type MatchCommand struct {
	rules      string
	mode       string
	ignoreCase bool
	noColor    bool
}

// NewMatchCommand creates and configures the match command.
func NewMatchCommand() *cobra.Command {
	cmd := &MatchCommand{}

	cobraCmd := &cobra.Command{
		Use:   "match [text ...]",
		Short: "Match input lines against a rule set",
		Long: `Match builds a prefix tree from a rule file (one key per line, a YAML
rule document, or an lz4-compressed variant of either) and reports the
configured match for every input. With no arguments, lines are read from stdin.`,
		RunE: cmd.Run,
	}

	cobraCmd.Flags().StringVarP(&cmd.rules, "rules", "r", "", "Rule file (required)")
	cobraCmd.Flags().StringVarP(&cmd.mode, "mode", "m", ModeLongest, "Match mode: longest, shortest, or exact")
	cobraCmd.Flags().BoolVarP(&cmd.ignoreCase, "ignore-case", "i", false, "ASCII case-insensitive matching")
	cobraCmd.Flags().BoolVar(&cmd.noColor, "no-color", false, "Disable colored output")

	_ = cobraCmd.MarkFlagRequired("rules")

	return cobraCmd
}

// Run executes the match command.
func (c *MatchCommand) Run(cmd *cobra.Command, args []string) error {
	rules, err := textio.LoadRules(c.rules)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	tree, err := buildRuleTree(rules, c.ignoreCase)
	if err != nil {
		return err
	}

	matcher, err := matcherFor(tree, c.mode)
	if err != nil {
		return err
	}

	inputs := args
	if len(inputs) == 0 {
		inputs, err = readLines(cmd)
		if err != nil {
			return err
		}
	}

	c.render(cmd, rules, inputs, matcher)

	return nil
}

// render writes one table row per input with the matched key and label.
func (c *MatchCommand) render(cmd *cobra.Command, rules []textio.Rule, inputs []string, matcher ruleMatcher) {
	hitColor := color.New(color.FgGreen)
	if c.noColor {
		hitColor.DisableColor()
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.AppendHeader(table.Row{"Input", "Matched Key", "Label"})

	hits := int64(0)

	for _, input := range inputs {
		m, ok := matcher(input)
		if !ok {
			tw.AppendRow(table.Row{input, missMark, missMark})

			continue
		}

		hits++

		tw.AppendRow(table.Row{input, hitColor.Sprint(m.Key), m.Value})
	}

	tw.Render()

	fmt.Fprintf(cmd.OutOrStdout(), "%s of %s inputs matched against %s rules\n",
		humanize.Comma(hits), humanize.Comma(int64(len(inputs))), humanize.Comma(int64(len(rules))))
}

// ruleMatcher resolves one input against the rule tree.
type ruleMatcher func(string) (prefixtree.Match[string], bool)

// matcherFor selects the tree lookup for a mode name.
func matcherFor(tree *prefixtree.Tree[string], mode string) (ruleMatcher, error) {
	switch mode {
	case ModeLongest:
		return tree.MatchLongest, nil
	case ModeShortest:
		return tree.MatchShortest, nil
	case ModeExact:
		return tree.MatchExact, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMode, mode)
	}
}

// buildRuleTree inserts every rule, warning on duplicate patterns instead of
// failing the whole run.
func buildRuleTree(rules []textio.Rule, ignoreCase bool) (*prefixtree.Tree[string], error) {
	tree := prefixtree.New(
		prefixtree.WithMatchCapacity[string](len(rules)),
		prefixtree.WithNodeCapacity[string](2*len(rules)),
		prefixtree.WithIgnoreCase[string](ignoreCase),
	)

	for _, rule := range rules {
		_, err := tree.Insert(rule.Pattern, rule.Label, prefixtree.FailOnExisting)
		if errors.Is(err, prefixtree.ErrDuplicateKey) {
			slog.Warn("skipping duplicate rule", "pattern", rule.Pattern)

			continue
		}

		if err != nil {
			return nil, fmt.Errorf("insert rule %q: %w", rule.Pattern, err)
		}
	}

	return tree, nil
}

// readLines reads the command's stdin line by line.
func readLines(cmd *cobra.Command) ([]string, error) {
	var lines []string

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	return lines, nil
}
