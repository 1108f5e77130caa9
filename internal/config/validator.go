package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rcliao/hybrid-memory/internal/model"
)

var validate = validator.New()

// FieldError describes one invalid setting.
type FieldError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of invalid settings. It matches model.ErrInvalidConfig.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:")
	for _, fe := range e {
		sb.WriteString("\n  - ")
		sb.WriteString(fe.Error())
	}
	return sb.String()
}

func (e ValidationErrors) Unwrap() error { return model.ErrInvalidConfig }

// Validate checks field tags plus the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	var details ValidationErrors
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", model.ErrInvalidConfig, err)
		}
		for _, fe := range verrs {
			details = append(details, FieldError{
				Field:   fe.Namespace(),
				Message: formatValidationError(fe),
				Value:   fe.Value(),
			})
		}
	}

	if cfg.ShortTerm.RetainTurns >= cfg.ShortTerm.SummaryThreshold {
		details = append(details, FieldError{
			Field:   "Config.ShortTerm.RetainTurns",
			Message: "must be smaller than summary_threshold",
			Value:   cfg.ShortTerm.RetainTurns,
		})
	}
	if cfg.ShortTerm.SummaryThreshold > cfg.ShortTerm.MaxMessages {
		details = append(details, FieldError{
			Field:   "Config.ShortTerm.SummaryThreshold",
			Message: "must not exceed max_messages",
			Value:   cfg.ShortTerm.SummaryThreshold,
		})
	}
	if !cfg.Retrieval.UseRRF && cfg.Retrieval.BM25Weight == 0 && cfg.Retrieval.VectorWeight == 0 {
		details = append(details, FieldError{
			Field:   "Config.Retrieval",
			Message: "weighted fusion needs a non-zero weight",
			Value:   0,
		})
	}

	if len(details) > 0 {
		return details
	}
	return nil
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
