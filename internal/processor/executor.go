package processor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"jewelshot/internal/domain"
	"jewelshot/internal/providers/genai"
	"jewelshot/internal/storage"
)

// Provider is the opaque generation capability.
type Provider interface {
	Invoke(ctx context.Context, endpoint string, params map[string]any, credential domain.Credential) (*genai.Output, error)
}

// Credentials hands out pooled provider credentials.
type Credentials interface {
	Acquire() (domain.Credential, error)
	Throttle(ctx context.Context, credentialID string) error
	Touch(ctx context.Context, credentialID string)
	MarkUnhealthy(ctx context.Context, credentialID, reason string) error
}

// Executor performs a single provider attempt for an operation. It is shared
// by the queue router and the batch orchestrator.
type Executor struct {
	provider Provider
	creds    Credentials
	store    storage.ObjectStore
	logger   zerolog.Logger
}

func NewExecutor(provider Provider, creds Credentials, store storage.ObjectStore, logger zerolog.Logger) *Executor {
	return &Executor{provider: provider, creds: creds, store: store, logger: logger}
}

// Execute runs one attempt. ref names the stored result when the provider
// returns inline bytes. A failure to store those bytes is reported as a
// transient provider error so the attempt can be repeated.
func (e *Executor) Execute(ctx context.Context, kind domain.OperationKind, req Request, ref string) (domain.GenerationResult, error) {
	call, err := Build(kind, req)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	cred, err := e.creds.Acquire()
	if err != nil {
		// Keys come back through refresh or an operator reset, so the
		// attempt is repeated within the retry budget.
		return domain.GenerationResult{}, &domain.ProviderError{Class: domain.ProviderClassTransient, Message: "no healthy credential", Err: err}
	}
	if err := e.creds.Throttle(ctx, cred.ID); err != nil {
		return domain.GenerationResult{}, &domain.ProviderError{Class: domain.ProviderClassTransient, Message: "throttle wait aborted", Err: err}
	}

	out, err := e.provider.Invoke(ctx, call.Endpoint, call.Params, cred)
	if err != nil {
		if domain.IsAuthFailure(err) {
			if markErr := e.creds.MarkUnhealthy(ctx, cred.ID, err.Error()); markErr != nil {
				e.logger.Error().Err(markErr).Str("credential_id", cred.ID).Msg("processor: mark credential unhealthy failed")
			}
		}
		return domain.GenerationResult{}, err
	}
	e.creds.Touch(ctx, cred.ID)

	if out == nil || len(out.Assets) == 0 {
		return domain.GenerationResult{}, &domain.ProviderError{Class: domain.ProviderClassTransient, Message: "provider returned no output"}
	}
	asset := out.Assets[0]
	result := domain.GenerationResult{
		URL:         asset.URL,
		Width:       asset.Width,
		Height:      asset.Height,
		ContentType: asset.ContentType,
	}
	if len(asset.Data) == 0 {
		return result, nil
	}
	if e.store == nil {
		return domain.GenerationResult{}, &domain.ProviderError{Class: domain.ProviderClassValidation, Message: "inline result but no object store configured"}
	}
	key := fmt.Sprintf("results/%s/%s.%s", kind, ref, storage.ExtensionFor(asset.ContentType))
	stored, err := e.store.Put(ctx, key, asset.Data, asset.ContentType)
	if err != nil {
		return domain.GenerationResult{}, &domain.ProviderError{Class: domain.ProviderClassTransient, Message: "mirror inline result", Err: err}
	}
	result.URL = stored
	return result, nil
}

