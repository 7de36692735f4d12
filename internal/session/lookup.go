package session

import (
	"context"

	"github.com/example/qr-payment-confirm/internal/refstore"
	"github.com/example/qr-payment-confirm/pkg/errors"
)

// TriggerLookup labels fallback queries started by Lookup.
const TriggerLookup = "lookup"

// Lookup re-checks the last persisted retrieval reference with one status
// query. It returns refstore.ErrNotFound when nothing was persisted; a nil
// failure means the payment was confirmed.
func Lookup(ctx context.Context, store refstore.Store, fq *FallbackQuery) (string, *errors.E, error) {
	ref, err := store.Load(ctx, refstore.Key)
	if err != nil {
		return "", nil, err
	}
	return ref, fq.Check(ctx, ref, TriggerLookup), nil
}
