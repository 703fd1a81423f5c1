package extractor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clinsight-ai/insight/pkg/common/models"
)

var (
	errUnknownSource = errors.New("unknown source")
	errEmptyBatch    = errors.New("empty batch")
	errMissingStudy  = errors.New("missing study_id")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Validator gates incoming extract batches. Sources default to the full
// known set; a narrower allow list can be configured.
type Validator struct {
	allowedSources map[string]struct{}
}

func NewValidator(sources []string) *Validator {
	if len(sources) == 0 {
		sources = models.KnownSources
	}
	allowed := make(map[string]struct{})
	for _, src := range sources {
		if trimmed := strings.TrimSpace(strings.ToLower(src)); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return &Validator{allowedSources: allowed}
}

// Validate rejects batches the reducer could not work with. Every row must
// name the study it belongs to.
func (v *Validator) Validate(source string, req BatchRequest) error {
	if v == nil {
		return ValidationError{reason: errors.New("validator not initialised")}
	}

	source = strings.TrimSpace(strings.ToLower(source))
	if source == "" {
		return ValidationError{reason: fmt.Errorf("source required: %w", errUnknownSource)}
	}
	if _, ok := v.allowedSources[source]; !ok {
		return ValidationError{reason: fmt.Errorf("source '%s' not allowed: %w", source, errUnknownSource)}
	}

	if len(req.Rows) == 0 {
		return ValidationError{reason: errEmptyBatch}
	}

	for i, row := range req.Rows {
		if getString(row["study_id"]) == "" {
			return ValidationError{reason: fmt.Errorf("row %d: %w", i, errMissingStudy)}
		}
	}

	return nil
}
