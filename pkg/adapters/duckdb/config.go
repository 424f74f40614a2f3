package duckdb

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/leapmeta/pkg/ident"
)

// Params are the DuckDB options read from the target's params map.
type Params struct {
	// Extensions are installed and loaded on connect (e.g. "icu", "json").
	Extensions []string `mapstructure:"extensions"`

	// Settings are applied with SET on connect (e.g. memory_limit, threads).
	Settings map[string]string `mapstructure:"settings"`
}

// parseParams decodes and checks the adapter params map. Extension names and
// setting keys end up unquoted in SQL, so both must be plain identifiers.
func parseParams(raw map[string]any) (*Params, error) {
	params := &Params{}
	if len(raw) == 0 {
		return params, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           params,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create params decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}

	for _, ext := range params.Extensions {
		if err := ident.ValidateReference("extension", ext); err != nil {
			return nil, err
		}
	}
	for k := range params.Settings {
		if err := ident.ValidateReference("setting", k); err != nil {
			return nil, err
		}
	}
	return params, nil
}
