package scorm

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-scorm/core"
)

var (
	methodTag  = "scormmethod"
	methodText = "{0} must be a runtime API method"

	methodSet = func() map[string]bool {
		set := make(map[string]bool, len(Methods))
		for _, m := range Methods {
			set[m] = true
		}
		return set
	}()
)

// InitValidators registers the runtime validation tags on top of the app-wide ones.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(methodTag, methodValidation)
	core.RegisterCustomTranslation(validate, translator, methodTag, methodText)
}

func methodValidation(fl validator.FieldLevel) bool {
	return methodSet[fl.Field().String()]
}
