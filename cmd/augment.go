package cmd

import (
	"fmt"
	"os"

	"github.com/KaramelBytes/vaultsync-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	augPrompt        string
	augModel         string
	augTokenizer     string
	augContextLength int
	augJSON          bool
	augBreakdown     bool
)

var augmentCmd = &cobra.Command{
	Use:   "augment <path>",
	Short: "Pack a vault file and a prompt into a model's context window",
	Long: `Augment reads a vault file and combines it with --prompt so the result fits the
model's context window. When the file is too long it is cut at the longest
prefix that fits and a truncation note is added.`,
	Example: `  vaultsync augment notes/meeting.md --prompt "List the action items"
  vaultsync augment big.md --prompt "Summarize" --context-length 4096 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if augPrompt == "" {
			return fmt.Errorf("--prompt is required")
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if augTokenizer != "" {
			cfg.Tokenizer = augTokenizer
		}
		sess, err := sessionFactory(augModel, augContextLength)
		if err != nil {
			return err
		}
		res, err := a.svc.AugmentPromptWithFile(cmd.Context(), args[0], augPrompt, sess)
		if err != nil {
			return err
		}
		if augJSON {
			return printJSON(res)
		}
		fmt.Println(res.Prompt)
		if augBreakdown {
			raw, err := a.svc.ReadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			counts := utils.TokenBreakdown(map[string]string{
				"file":   raw,
				"prompt": augPrompt,
				"total":  res.Prompt,
			}, func(s string) int { return len(sess.Tokenize(s)) })
			fmt.Fprintf(os.Stderr, "tokens: file=%d prompt=%d assembled=%d budget=%d\n",
				counts["file"], counts["prompt"], counts["total"], res.Budget)
		}
		if res.Truncated {
			fmt.Fprintf(os.Stderr, "⚠ Warning: content truncated at byte %d (%d/%d tokens)\n", res.CutoffOffset, res.Tokens, res.Budget)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(augmentCmd)
	augmentCmd.Flags().StringVarP(&augPrompt, "prompt", "p", "", "user prompt to answer against the file")
	augmentCmd.Flags().StringVarP(&augModel, "model", "m", "", "model used to look up the context window (default: config default_model)")
	augmentCmd.Flags().StringVar(&augTokenizer, "tokenizer", "", "tokenizer: tiktoken or heuristic (default: config tokenizer)")
	augmentCmd.Flags().IntVar(&augContextLength, "context-length", 0, "context window in tokens, overriding the model catalog")
	augmentCmd.Flags().BoolVar(&augJSON, "json", false, "print the result with cutoff details as JSON")
	augmentCmd.Flags().BoolVar(&augBreakdown, "breakdown", false, "print token counts of the file, the prompt and the result to stderr")
}
