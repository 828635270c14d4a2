package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/askmany/askmany/internal/enhance"
	"github.com/askmany/askmany/internal/store"
)

var (
	enhanceTypeFlag string
	enhanceSave     bool
	enhanceJSON     bool
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance [prompt]",
	Short: "Rewrite a prompt for better model answers",
	Long: `Rewrite a rough prompt into a clearer, more specific one using the
configured enhancement model. The type tunes the rewrite for general,
code, analysis or creative work.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnhance,
}

func init() {
	enhanceCmd.Flags().StringVar(&enhanceTypeFlag, "type", "general", "enhancement type: general, code, analysis, creative")
	enhanceCmd.Flags().BoolVar(&enhanceSave, "save", false, "store the enhanced prompt in the prompt library")
	enhanceCmd.Flags().BoolVar(&enhanceJSON, "json", false, "print the full result as JSON")
}

func runEnhance(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	typ, known := enhance.ParseType(enhanceTypeFlag)
	if !known {
		return fmt.Errorf("unknown enhancement type %q (want general, code, analysis or creative)", enhanceTypeFlag)
	}

	enhancer, err := a.enhancer(ctx)
	if err != nil {
		return err
	}

	result, err := enhancer.Enhance(ctx, args[0], typ)
	if err != nil {
		return err
	}

	if enhanceJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printEnhanceResult(result)
	}

	if enhanceSave {
		prompt := store.Prompt{Text: result.EnhancedPrompt, Tags: []string{"enhanced", string(result.Type)}}
		if err := a.store.CreatePrompt(ctx, &prompt); err != nil {
			a.logger.Warn("saving enhanced prompt failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "saved as prompt %d\n", prompt.ID)
		}
	}
	return nil
}

func printEnhanceResult(result *enhance.Result) {
	fmt.Println(strings.TrimSpace(result.EnhancedPrompt))

	if len(result.Alternatives) > 0 {
		fmt.Println("\nAlternatives:")
		for i, alt := range result.Alternatives {
			fmt.Printf("  %d. %s\n", i+1, alt)
		}
	}
	if result.Explanation != "" {
		fmt.Printf("\nWhy: %s\n", result.Explanation)
	}
	if len(result.Recommendations) > 0 {
		keys := make([]string, 0, len(result.Recommendations))
		for k := range result.Recommendations {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("\nRecommended settings:")
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, result.Recommendations[k])
		}
	}
}
