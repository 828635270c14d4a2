package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/askmany/askmany/internal/store"
	"github.com/askmany/askmany/pkg/types"
)

var (
	modelsAll          bool
	modelAddName       string
	modelAddEndpoint   string
	modelAddCredential string
	modelAddInactive   bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the model registry",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered models",
	RunE:  runModelsList,
}

var modelsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a model",
	Long: `Register a model in the registry. The credential key names the
environment variable (or secrets.keys entry) holding the provider API
key; its prefix also selects the provider dialect, e.g. ANTHROPIC_API_KEY
routes requests through the Anthropic wire format.`,
	RunE: runModelsAdd,
}

var modelsToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Flip a model in or out of the active roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsToggle,
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Remove a model and its saved answers",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsDelete,
}

var modelsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the default model roster",
	Long: `Install the built-in starter models, skipping any that are already
registered. Models whose credential is not set are registered inactive.`,
	RunE: runModelsSeed,
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsAddCmd)
	modelsCmd.AddCommand(modelsToggleCmd)
	modelsCmd.AddCommand(modelsDeleteCmd)
	modelsCmd.AddCommand(modelsSeedCmd)

	modelsListCmd.Flags().BoolVarP(&modelsAll, "all", "a", false, "include inactive models")

	modelsAddCmd.Flags().StringVar(&modelAddName, "name", "", "model name sent to the provider (required)")
	modelsAddCmd.Flags().StringVar(&modelAddEndpoint, "endpoint", "", "chat completions endpoint URL (required)")
	modelsAddCmd.Flags().StringVar(&modelAddCredential, "credential-key", "", "credential key, e.g. OPENAI_API_KEY (required)")
	modelsAddCmd.Flags().BoolVar(&modelAddInactive, "inactive", false, "register without activating")
}

func runModelsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	models, err := a.store.ListModels(ctx, !modelsAll)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 {
		fmt.Println("no models registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tACTIVE\tCREDENTIAL\tENDPOINT")
	for _, m := range models {
		fmt.Fprintf(w, "%d\t%s\t%t\t%s\t%s\n",
			m.ID, m.Name, m.IsActive, m.CredentialKey, m.APIEndpoint)
	}
	return w.Flush()
}

func runModelsAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model := types.Model{
		Name:          modelAddName,
		APIEndpoint:   modelAddEndpoint,
		CredentialKey: modelAddCredential,
		IsActive:      !modelAddInactive,
	}
	if err := model.Validate(); err != nil {
		return err
	}
	if err := a.store.CreateModel(ctx, &model); err != nil {
		return fmt.Errorf("create model: %w", err)
	}

	fmt.Printf("model %d registered: %s\n", model.ID, model.Name)
	if _, ok := a.secrets.Secret(ctx, types.ProviderShortName(model.CredentialKey)); !ok {
		fmt.Fprintf(os.Stderr, "warning: %s is not set; dispatches to this model will fail\n", model.CredentialKey)
	}
	return nil
}

func runModelsToggle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid model id %q", args[0])
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model, err := a.store.GetModel(ctx, id)
	if err != nil {
		return fmt.Errorf("get model: %w", err)
	}
	if model == nil {
		return fmt.Errorf("model %d not found", id)
	}

	active := !model.IsActive
	if err := a.store.SetModelActive(ctx, id, active); err != nil {
		return fmt.Errorf("toggle model: %w", err)
	}

	state := "inactive"
	if active {
		state = "active"
	}
	fmt.Printf("model %d (%s) is now %s\n", model.ID, model.Name, state)
	return nil
}

func runModelsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid model id %q", args[0])
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model, err := a.store.GetModel(ctx, id)
	if err != nil {
		return fmt.Errorf("get model: %w", err)
	}
	if model == nil {
		return fmt.Errorf("model %d not found", id)
	}

	if err := a.store.DeleteModel(ctx, id); err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	fmt.Printf("model %d (%s) deleted\n", model.ID, model.Name)
	return nil
}

func runModelsSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	before, err := a.store.ListModels(ctx, false)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if err := store.SeedDefaults(ctx, a.store, a.secrets, a.logger); err != nil {
		return fmt.Errorf("seed models: %w", err)
	}
	after, err := a.store.ListModels(ctx, false)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	fmt.Printf("%d models seeded, %d total\n", len(after)-len(before), len(after))
	return nil
}
