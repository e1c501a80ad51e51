package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidReceipt = errors.New("invalid receipt")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateReceipt(r *model.Receipt) error {
	if r == nil {
		return fmt.Errorf("%w: receipt", ErrNilParameter)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidReceipt)
	}
	if strings.TrimSpace(r.SourceFile) == "" {
		return fmt.Errorf("%w: missing source file", ErrInvalidReceipt)
	}
	if r.ParsedBy == "" {
		return fmt.Errorf("%w: missing provenance", ErrInvalidReceipt)
	}
	if r.ProcessedAt.IsZero() {
		return fmt.Errorf("%w: missing processed time", ErrInvalidReceipt)
	}
	for i := range r.Items {
		if strings.TrimSpace(r.Items[i].Name) == "" {
			return fmt.Errorf("%w: item %d has no name", ErrInvalidReceipt, i)
		}
		if c := r.Items[i].Confidence; c < 0 || c > 1 {
			return fmt.Errorf("%w: item %d confidence must be between 0 and 1", ErrInvalidReceipt, i)
		}
	}
	return nil
}
