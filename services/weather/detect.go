package weather

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AbdulWasayUl/go-weather-etl/models"
)

// ErrUnknownShape is returned when a body matches none of the provider shapes.
var ErrUnknownShape = errors.New("unrecognized weather payload shape")

// DetectKind inspects a raw body saved to disk or fetched from an arbitrary
// URL and reports which provider shape it has.
func DetectKind(body []byte) (models.PayloadKind, error) {
	var shape struct {
		Main    json.RawMessage   `json:"main"`
		Weather json.RawMessage   `json:"weather"`
		Dt      json.RawMessage   `json:"dt"`
		Daily   json.RawMessage   `json:"daily"`
		List    []json.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownShape, err)
	}

	switch {
	case len(shape.Daily) > 0:
		return models.KindOneCall, nil
	case shape.List != nil:
		if len(shape.List) == 0 {
			return models.KindForecast3h, nil
		}
		var first struct {
			Main json.RawMessage `json:"main"`
		}
		if err := json.Unmarshal(shape.List[0], &first); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnknownShape, err)
		}
		if len(first.Main) > 0 {
			return models.KindForecast3h, nil
		}
		return models.KindDaily, nil
	case len(shape.Main) > 0 || len(shape.Weather) > 0 || len(shape.Dt) > 0:
		return models.KindCurrent, nil
	}
	return "", ErrUnknownShape
}

// checkShape does the cheap structural check a tier needs to decide whether
// a 2xx body is usable. Field level validation happens in the transformer.
func checkShape(kind models.PayloadKind, body []byte) error {
	switch kind {
	case models.KindCurrent:
		var resp CurrentResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("malformed current payload: %w", err)
		}
		if resp.Dt == nil && resp.TempValue() == nil {
			return errors.New("current payload has neither dt nor temperature")
		}
	case models.KindForecast3h, models.KindDaily:
		var resp ListResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("malformed forecast payload: %w", err)
		}
		if len(resp.List) == 0 {
			return errors.New("forecast payload has an empty list")
		}
	case models.KindOneCall:
		var resp OneCallResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("malformed onecall payload: %w", err)
		}
		if len(resp.Daily) == 0 {
			return errors.New("onecall payload has no daily entries")
		}
	default:
		return fmt.Errorf("unknown payload kind %q", kind)
	}
	return nil
}
