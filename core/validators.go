package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	courseIDTag   = "courseid"
	courseIDText  = "{0} must only contain letters, digits, '-', '_', ':' or '.'"
	courseIDRegex = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{1,128}$`)

	requiredTag  = "required"
	requiredText = "this field is required"
)

// InitValidators registers the english translations and the app-wide custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(courseIDTag, courseIDValidation)
	RegisterCustomTranslation(validate, translator, courseIDTag, courseIDText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// courseIDValidation accepts opaque course identifiers (UUIDs, slugs, LMS keys).
func courseIDValidation(fl validator.FieldLevel) bool {
	return courseIDRegex.MatchString(fl.Field().String())
}
