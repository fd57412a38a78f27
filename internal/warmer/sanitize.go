package warmer

// Limits bounds the parameters accepted by Start.
type Limits struct {
	// MaxBatchSize caps BatchSize; 0 disables the cap.
	MaxBatchSize int
	// Strict rejects out-of-range values instead of coercing them.
	Strict bool
}

// Sanitize coerces a requested RunConfig into a valid one. Negative values are
// folded to their absolute value and a zero batch size falls back to the
// default. In strict mode the same inputs are rejected with a ConfigError.
func Sanitize(cfg RunConfig, limits Limits) (RunConfig, error) {
	out := cfg
	var err error
	if out.MaxItems, err = nonNegative("max_items", out.MaxItems, limits.Strict); err != nil {
		return RunConfig{}, err
	}
	if out.DelayMs, err = nonNegative("delay_ms", out.DelayMs, limits.Strict); err != nil {
		return RunConfig{}, err
	}
	if out.BatchSize, err = nonNegative("batch_size", out.BatchSize, limits.Strict); err != nil {
		return RunConfig{}, err
	}
	if out.BatchSize == 0 {
		if limits.Strict {
			return RunConfig{}, &ConfigError{Field: "batch_size", Value: 0, Reason: "must be at least 1"}
		}
		out.BatchSize = DefaultBatchSize
	}
	if limits.MaxBatchSize > 0 && out.BatchSize > limits.MaxBatchSize {
		if limits.Strict {
			return RunConfig{}, &ConfigError{
				Field:  "batch_size",
				Value:  out.BatchSize,
				Reason: "exceeds the configured maximum",
			}
		}
		out.BatchSize = limits.MaxBatchSize
	}
	return out, nil
}

func nonNegative(field string, v int, strict bool) (int, error) {
	if v >= 0 {
		return v, nil
	}
	if strict {
		return 0, &ConfigError{Field: field, Value: v, Reason: "must not be negative"}
	}
	return -v, nil
}
