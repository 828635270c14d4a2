// Package askmany fans a single prompt out to many language models at
// once and collects one normalized outcome per model. Models live in a
// registry (memory or Postgres), credentials are resolved through a
// pluggable secret source, and each model's endpoint is spoken to through
// the matching wire adapter (OpenAI-compatible, Anthropic, Google, or
// OpenRouter).
//
// Basic usage:
//
//	st := store.NewMemoryStore()
//	secrets := secret.NewSource(manager, nil, logger)
//
//	d, err := askmany.New(st, secrets,
//	    askmany.WithMaxConcurrent(5),
//	    askmany.WithProgress(func(modelID int64, msg string) {
//	        log.Printf("model %d: %s", modelID, msg)
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Close()
//
//	outcomes, err := d.Dispatch(ctx, []int64{1, 2, 3}, "Explain CRDTs briefly.")
//
// One model failing never aborts the others; outcomes come back in the
// order the ids were given, exactly one per id.
package askmany

import (
	askerrors "github.com/askmany/askmany/pkg/errors"
	"github.com/askmany/askmany/pkg/types"
	"github.com/askmany/askmany/providers"
)

// Version is the current version of askmany.
const Version = "0.1.0"

// Re-export the core data types so library users rarely need to import
// pkg/types directly.
type (
	// Model describes one configured upstream model.
	Model = types.Model

	// PromptRequest carries a prompt with optional sampling overrides.
	PromptRequest = types.PromptRequest

	// RequestOutcome is the normalized per-model result of a fan-out.
	RequestOutcome = types.RequestOutcome

	// Tally is the success/total count for one fan-out.
	Tally = types.Tally

	// DispatchError is the standardized failure produced by any stage of
	// a fan-out.
	DispatchError = askerrors.DispatchError

	// SecretSource resolves provider short names to API keys.
	SecretSource = providers.SecretSource
)

// Re-export the error kind constants used to classify failed outcomes.
const (
	TypeModelNotFound      = askerrors.TypeModelNotFound
	TypeModelInactive      = askerrors.TypeModelInactive
	TypeMissingCredential  = askerrors.TypeMissingCredential
	TypeClientConstruction = askerrors.TypeClientConstruction
	TypeTimeout            = askerrors.TypeTimeout
	TypeConnection         = askerrors.TypeConnection
	TypeRateLimit          = askerrors.TypeRateLimit
	TypePaymentRequired    = askerrors.TypePaymentRequired
	TypeAuthentication     = askerrors.TypeAuthentication
	TypeEndpointNotFound   = askerrors.TypeEndpointNotFound
	TypeParse              = askerrors.TypeParse
	TypeCancelled          = askerrors.TypeCancelled
)
