// Package validator registers the request tags used by the API models and
// turns binding failures into field-level messages.
package validator

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/hengadev/errsx"

	"github.com/jwalitptl/medrecord-api/internal/model"
)

var tags = map[string]validator.Func{
	"department":  oneOf(model.Departments...),
	"gender":      oneOf(model.GenderMale, model.GenderFemale, model.GenderOther),
	"record_type": recordType,
}

// Register installs the custom tags on gin's default validator.
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return stderrors.New("gin binding validator is not go-playground/validator")
	}
	return RegisterOn(v)
}

func RegisterOn(v *validator.Validate) error {
	v.RegisterTagNameFunc(jsonTagName)
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %s: %w", tag, err)
		}
	}
	return nil
}

func oneOf(values ...string) validator.Func {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	return func(fl validator.FieldLevel) bool {
		_, ok := allowed[strings.ToLower(fl.Field().String())]
		return ok
	}
}

func recordType(fl validator.FieldLevel) bool {
	return model.RecordType(fl.Field().String()).Valid()
}

// Describe renders binding errors as one message listing every bad field.
// Errors that are not validation failures, such as malformed JSON, pass
// through unchanged.
func Describe(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return err
	}

	var errs errsx.Map
	for _, fe := range verrs {
		errs.Set(fe.Field(), rule(fe))
	}
	return errs.AsError()
}

// jsonTagName reports fields by their json name.
func jsonTagName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

func rule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "datetime":
		return fmt.Sprintf("must match %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "department":
		return fmt.Sprintf("must be one of %s", strings.Join(model.Departments, ", "))
	case "gender":
		return "must be male, female or other"
	case "record_type":
		return "must be vitals, diagnosis, prescription, lab or general"
	}
	return fmt.Sprintf("failed %s", fe.Tag())
}
