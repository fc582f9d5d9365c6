package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/normanking/cortexportrait/internal/expression"
	"github.com/normanking/cortexportrait/internal/feed"
	"github.com/normanking/cortexportrait/internal/portrait"
	"github.com/normanking/cortexportrait/internal/random"
	"github.com/normanking/cortexportrait/internal/rendertree"
	"github.com/normanking/cortexportrait/internal/viseme"
)

func newResolveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <character> <expression> [variant]",
		Short: "Show the texture each channel resolves to",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			defer logger.Close()

			expr, ok := expression.Lookup(args[1])
			if !ok {
				return fmt.Errorf("unknown expression %q", args[1])
			}
			variant := 0
			if len(args) == 3 {
				if variant, err = strconv.Atoi(args[2]); err != nil {
					return fmt.Errorf("invalid variant %q: %w", args[2], err)
				}
			}

			trees := rendertree.NewRegistry(logger.Component("rendertree"))
			if err := loadTrees(cfg.RenderTree, trees, logger.Zerolog()); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "CHANNEL\tTEXTURE\tRESOLVED\n")
			for _, ch := range rendertree.Channels() {
				tex, found := trees.ResolveTexture(args[0], expr, variant, ch)
				fmt.Fprintf(w, "%s\t%s\t%t\n", ch, tex, found)
			}
			fmt.Fprintf(w, "\nvariants\t%d\n", trees.VariantCount(args[0], expr))
			return w.Flush()
		},
	}
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <label>...",
		Short: "Normalize free-text emotion labels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "LABEL\tEXPRESSION\tINTENSITY\n")
			for _, label := range args {
				expr, intensity := expression.ParseLabel(label)
				fmt.Fprintf(w, "%s\t%s\t%d\n", label, expr, intensity)
			}
			return w.Flush()
		},
	}
}

func newVisemesCmd() *cobra.Command {
	var alphabet string
	cmd := &cobra.Command{
		Use:   "visemes <text|phoneme>...",
		Short: "Convert text or phonemes into a viseme sequence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var codes []viseme.Code
			if alphabet == "" {
				codes = viseme.SequenceFromText(strings.Join(args, " "), viseme.DefaultGroupMapping())
			} else {
				a := viseme.Alphabet(strings.ToLower(alphabet))
				switch a {
				case viseme.AlphabetIPA, viseme.AlphabetARPABET, viseme.AlphabetPinyin:
				default:
					return fmt.Errorf("unknown alphabet %q", alphabet)
				}
				codes = viseme.SequenceFromPhonemes(a, args)
			}
			names := lo.Map(codes, func(c viseme.Code, _ int) string { return c.String() })
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, " "))
			return nil
		},
	}
	cmd.Flags().StringVar(&alphabet, "alphabet", "", "treat arguments as phonemes (ipa, arpabet, pinyin)")
	return cmd
}

func newTreeCmd() *cobra.Command {
	tree := &cobra.Command{
		Use:   "tree",
		Short: "Manage render-tree files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write the built-in render tree as a starting point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", args[0])
			}
			if err := rendertree.Save(args[0], rendertree.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	checkCmd := &cobra.Command{
		Use:   "check <path>...",
		Short: "Validate render-tree files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, p := range args {
				t, err := rendertree.LoadFile(p)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", p, err)
					continue
				}
				names := lo.Map(t.Expressions(), func(e expression.Expression, _ int) string { return e.String() })
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s)\n", p, strings.Join(names, ", "))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d render trees invalid", failed, len(args))
			}
			return nil
		},
	}

	tree.AddCommand(initCmd, checkCmd)
	return tree
}

// demoStep is one scripted input of the demo.
type demoStep struct {
	tick int64
	desc string
	do   func(d *portrait.Director, now time.Time)
}

func demoScript(id string) []demoStep {
	return []demoStep{
		{0, "affinity 45", func(d *portrait.Director, _ time.Time) { d.SetAffinity(id, 45) }},
		{30, "speak", func(d *portrait.Director, _ time.Time) { d.Speak(id, "Hello there, it is good to see you again!") }},
		{150, "event raid_incoming", func(d *portrait.Director, _ time.Time) {
			d.ApplyEvent(id, expression.EventRaidIncoming, false)
		}},
		{210, "blink", func(d *portrait.Director, now time.Time) { d.TriggerBlink(id, now) }},
		{240, "label joy(2)", func(d *portrait.Director, _ time.Time) { d.ApplyLabel(id, "joy(2)") }},
		{300, "drowsy", func(d *portrait.Director, _ time.Time) { d.SetDrowsy(id, true) }},
	}
}

func newDemoCmd(g *globals) *cobra.Command {
	var (
		ticks  int64
		every  int64
		seed   uint64
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "demo [character]",
		Short: "Run a scripted offline session and print frames",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			defer logger.Close()

			if every <= 0 {
				every = 1
			}
			id := "demo"
			if len(args) == 1 {
				id = args[0]
			}

			trees := rendertree.NewRegistry(logger.Component("rendertree"))
			if err := loadTrees(cfg.RenderTree, trees, logger.Zerolog()); err != nil {
				return err
			}

			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			step := cfg.Expression.TickInterval()
			d := portrait.New(directorConfig(cfg), trees, nil, nil, random.New(seed), logger.Component("portrait"))
			d.SetClock(func() time.Time { return now })
			d.Add(id)

			script := lo.GroupBy(demoScript(id), func(s demoStep) int64 { return s.tick })
			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)

			for t := int64(0); t < ticks; t++ {
				for _, s := range script[t] {
					fmt.Fprintf(cmd.ErrOrStderr(), "tick %d: %s\n", t, s.desc)
					s.do(d, now)
				}
				frames := d.Update(now)
				if t%every == 0 {
					for _, f := range frames {
						if asJSON {
							if err := enc.Encode(feed.Message{Type: feed.TypeFrame, Frame: feed.FromFrame(f)}); err != nil {
								return err
							}
							continue
						}
						printFrame(out, f)
					}
				}
				now = now.Add(step)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&ticks, "ticks", 420, "number of ticks to simulate")
	cmd.Flags().Int64Var(&every, "every", 15, "print every nth frame")
	cmd.Flags().Uint64Var(&seed, "seed", 7, "random seed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print frames as feed messages")
	return cmd
}

func printFrame(out io.Writer, f portrait.Frame) {
	parts := lo.Map(f.Channels, func(c portrait.ChannelSelection, _ int) string {
		return fmt.Sprintf("%s=%s(%s)", c.Channel, c.Texture, c.Source)
	})
	fmt.Fprintf(out, "%5d %-12s %-9s blink=%-8s %s\n",
		f.Tick, f.CacheKey, f.Viseme, f.Blink, strings.Join(parts, " "))
}
