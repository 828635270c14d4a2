package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/askmany/askmany"
	"github.com/askmany/askmany/internal/store"
	"github.com/askmany/askmany/pkg/types"
)

var (
	askModelIDs    []int64
	askTemperature float64
	askMaxTokens   int
	askTimeout     time.Duration
	askConcurrency int
	askSave        bool
	askPromptID    int64
	askJSON        bool
	askQuiet       bool
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send a prompt to several models at once",
	Long: `Send one prompt to the selected models concurrently and print every
answer. Without --models the prompt goes to every active model in the
registry. Progress is written to stderr, answers to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().Int64SliceVarP(&askModelIDs, "models", "m", nil, "model ids to query (default: every active model)")
	askCmd.Flags().Float64VarP(&askTemperature, "temperature", "t", 0, "sampling temperature for this request")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "completion token ceiling for this request")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 0, "per-model time budget (overrides config)")
	askCmd.Flags().IntVar(&askConcurrency, "concurrency", 0, "concurrent model requests (overrides config)")
	askCmd.Flags().BoolVar(&askSave, "save", false, "persist the prompt and the successful answers")
	askCmd.Flags().Int64Var(&askPromptID, "prompt-id", 0, "attach saved answers to this existing prompt (implies --save)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print outcomes as JSON instead of text")
	askCmd.Flags().BoolVarP(&askQuiet, "quiet", "q", false, "suppress per-model progress output")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ids := askModelIDs
	if len(ids) == 0 {
		models, err := a.store.ListModels(ctx, true)
		if err != nil {
			return fmt.Errorf("list models: %w", err)
		}
		for _, m := range models {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return errors.New("no active models: register one with 'askmany models add'")
	}

	var opts []askmany.Option
	if !askQuiet {
		opts = append(opts, askmany.WithProgress(func(id int64, msg string) {
			fmt.Fprintf(os.Stderr, "  [model %d] %s\n", id, msg)
		}))
	}
	if cmd.Flags().Changed("timeout") {
		opts = append(opts, askmany.WithTimeout(askTimeout))
	}
	if cmd.Flags().Changed("concurrency") {
		opts = append(opts, askmany.WithMaxConcurrent(askConcurrency))
	}

	d, err := a.dispatcher(opts...)
	if err != nil {
		return err
	}
	defer d.Close()

	req := types.PromptRequest{Prompt: args[0]}
	if cmd.Flags().Changed("temperature") {
		req.Temperature = &askTemperature
	}
	if cmd.Flags().Changed("max-tokens") {
		req.MaxTokens = &askMaxTokens
	}

	start := time.Now()
	outcomes, err := d.DispatchRequest(ctx, ids, req)
	if err != nil {
		return err
	}
	tally := types.TallyOutcomes(outcomes)

	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Outcomes []types.RequestOutcome `json:"outcomes"`
			Tally    types.Tally            `json:"tally"`
		}{outcomes, tally}); err != nil {
			return err
		}
	} else {
		printOutcomes(outcomes)
		fmt.Printf("\n%d/%d models answered in %s\n",
			tally.Succeeded, tally.Total, time.Since(start).Round(time.Millisecond))
	}

	if askSave || askPromptID != 0 {
		promptID, err := savePromptAndResults(ctx, a.store, args[0], askPromptID, outcomes)
		if err != nil {
			a.logger.Warn("saving answers failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "saved as prompt %d\n", promptID)
		}
	}

	if tally.Succeeded == 0 {
		return errors.New("no model answered")
	}
	return nil
}

func printOutcomes(outcomes []types.RequestOutcome) {
	for i := range outcomes {
		out := &outcomes[i]
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("=== %s ===\n", outcomeLabel(out))
		if out.Succeeded {
			fmt.Println(strings.TrimSpace(out.ResponseText))
		} else {
			fmt.Printf("error: %s\n", out.Error)
		}
		meta := fmt.Sprintf("(%.2fs", out.Elapsed)
		if out.TokensUsed != nil {
			meta += fmt.Sprintf(", %d tokens", *out.TokensUsed)
		}
		fmt.Println(meta + ")")
	}
}

func outcomeLabel(out *types.RequestOutcome) string {
	if out.ModelName == "" {
		return fmt.Sprintf("model %d", out.ModelID)
	}
	return fmt.Sprintf("%s (model %d)", out.ModelName, out.ModelID)
}

// savePromptAndResults persists the successful outcomes. A zero promptID
// creates a new prompt row; otherwise the results attach to the existing
// one.
func savePromptAndResults(ctx context.Context, st store.Store, text string, promptID int64, outcomes []types.RequestOutcome) (int64, error) {
	if promptID == 0 {
		prompt := store.Prompt{Text: text}
		if err := st.CreatePrompt(ctx, &prompt); err != nil {
			return 0, err
		}
		promptID = prompt.ID
	} else {
		existing, err := st.GetPrompt(ctx, promptID)
		if err != nil {
			return 0, err
		}
		if existing == nil {
			return 0, fmt.Errorf("prompt %d not found", promptID)
		}
	}
	for i := range outcomes {
		out := &outcomes[i]
		if !out.Succeeded {
			continue
		}
		res := store.Result{
			PromptID:     promptID,
			ModelID:      out.ModelID,
			ModelName:    out.ModelName,
			ResponseText: out.ResponseText,
			ResponseTime: out.Elapsed,
			TokensUsed:   out.TokensUsed,
		}
		if err := st.SaveResult(ctx, &res); err != nil {
			return promptID, err
		}
	}
	return promptID, nil
}
