package domain

import (
	"fmt"
)

const (
	MaxMeasurementIDLen = 64
	MaxCustomEntries    = 100
	MaxItems            = 200
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ValidateEnvelope checks the envelope metadata and the event's own business
// fields. It returns a *ValidationError, or nil.
func ValidateEnvelope(env *EventEnvelope) error {
	if env == nil {
		return &ValidationError{Fields: []FieldError{{"envelope", "required"}}}
	}
	var errs []FieldError

	if env.MeasurementID == "" {
		errs = append(errs, FieldError{"measurement_id", "required"})
	} else if len(env.MeasurementID) > MaxMeasurementIDLen {
		errs = append(errs, FieldError{"measurement_id", fmt.Sprintf("max length %d", MaxMeasurementIDLen)})
	}

	if env.Event == nil {
		errs = append(errs, FieldError{"event", "required"})
	} else if _, known := New(env.Event.Kind()); !known {
		errs = append(errs, FieldError{"event_type", fmt.Sprintf("unknown event type %q", env.Event.Kind())})
	} else {
		p := env.Event.Params()
		if len(p.CustomDimensions) > MaxCustomEntries {
			errs = append(errs, FieldError{"custom_dimensions", fmt.Sprintf("max %d entries", MaxCustomEntries)})
		}
		if len(p.CustomMetrics) > MaxCustomEntries {
			errs = append(errs, FieldError{"custom_metrics", fmt.Sprintf("max %d entries", MaxCustomEntries)})
		}
		errs = append(errs, env.Event.Validate()...)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func required(errs []FieldError, field, v string) []FieldError {
	if v == "" {
		return append(errs, FieldError{field, "required"})
	}
	return errs
}

func requiredAmount(errs []FieldError, field string, v *float64) []FieldError {
	switch {
	case v == nil:
		return append(errs, FieldError{field, "required"})
	case *v < 0:
		return append(errs, FieldError{field, "must be non-negative"})
	}
	return errs
}

func percent(errs []FieldError, field string, v uint8) []FieldError {
	if v > 100 {
		return append(errs, FieldError{field, "must be between 0 and 100"})
	}
	return errs
}

func validateItems(items []Item) []FieldError {
	if len(items) > MaxItems {
		return []FieldError{{"items", fmt.Sprintf("max %d items", MaxItems)}}
	}
	var errs []FieldError
	for i, it := range items {
		prefix := fmt.Sprintf("items[%d].", i)
		errs = required(errs, prefix+"item_id", it.ItemID)
		errs = required(errs, prefix+"item_name", it.ItemName)
		if it.Price < 0 {
			errs = append(errs, FieldError{prefix + "price", "must be non-negative"})
		}
		if it.Quantity <= 0 {
			errs = append(errs, FieldError{prefix + "quantity", "must be positive"})
		}
		if it.Discount != nil && *it.Discount < 0 {
			errs = append(errs, FieldError{prefix + "discount", "must be non-negative"})
		}
	}
	return errs
}

func (e *Custom) Validate() []FieldError {
	return required(nil, "name", e.Name)
}

func (e *FormSubmit) Validate() []FieldError {
	return required(nil, "form_id", e.FormID)
}

func (e *ViewItem) Validate() []FieldError { return validateItems(e.Items) }

func (e *AddToCart) Validate() []FieldError { return validateItems(e.Items) }

func (e *RemoveFromCart) Validate() []FieldError { return validateItems(e.Items) }

func (e *BeginCheckout) Validate() []FieldError {
	errs := requiredAmount(nil, "value", e.Value)
	errs = required(errs, "currency", e.Currency)
	return append(errs, validateItems(e.Items)...)
}

func (e *Purchase) Validate() []FieldError {
	errs := required(nil, "transaction_id", e.TransactionID)
	errs = requiredAmount(errs, "value", e.Value)
	errs = required(errs, "currency", e.Currency)
	if e.Tax != nil && *e.Tax < 0 {
		errs = append(errs, FieldError{"tax", "must be non-negative"})
	}
	if e.Shipping != nil && *e.Shipping < 0 {
		errs = append(errs, FieldError{"shipping", "must be non-negative"})
	}
	return append(errs, validateItems(e.Items)...)
}

func (e *Refund) Validate() []FieldError {
	errs := required(nil, "transaction_id", e.TransactionID)
	return append(errs, validateItems(e.Items)...)
}

func (e *Search) Validate() []FieldError {
	return required(nil, "search_term", e.SearchTerm)
}

func (e *VideoStart) Validate() []FieldError {
	errs := required(nil, "video_title", e.VideoTitle)
	return required(errs, "video_url", e.VideoURL)
}

func (e *VideoProgress) Validate() []FieldError {
	errs := required(nil, "video_title", e.VideoTitle)
	errs = required(errs, "video_url", e.VideoURL)
	return percent(errs, "video_percent", e.VideoPercent)
}

func (e *VideoComplete) Validate() []FieldError {
	errs := required(nil, "video_title", e.VideoTitle)
	return required(errs, "video_url", e.VideoURL)
}

func (e *Scroll) Validate() []FieldError {
	return percent(nil, "percent_scrolled", e.PercentScrolled)
}
