package echoapi

import (
	"encoding/json"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core"
)

type activateRequest struct {
	Index *int `json:"index" validate:"required"`
}

func (r activateRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

// callRequest carries one runtime call relayed by the content frame.
// Args are positional; content scripts may pass numbers or booleans where strings are expected.
type callRequest struct {
	Method string        `json:"method" validate:"required,scormmethod"`
	Args   []interface{} `json:"args"`
	UnitID string        `json:"unit_id"`
}

func (r callRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

// StringArgs coerces Args the way the browser stringifies them; null becomes "".
func (r callRequest) StringArgs() ([]string, error) {
	args := make([]string, len(r.Args))
	for i, arg := range r.Args {
		switch v := arg.(type) {
		case nil:
			args[i] = ""
		case string:
			args[i] = v
		case bool:
			args[i] = strconv.FormatBool(v)
		case float64:
			args[i] = strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			args[i] = v.String()
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, core.NewValidationError(
					errors.Wrapf(err, "arg %d", i),
					core.FieldError{Field: "args", Error: "arguments must be scalars"},
				)
			}
			args[i] = string(data)
		}
	}
	return args, nil
}
