package internal

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	pkgerrs "github.com/jamesprial/go-ifunny-api-wrapper/pkg/errors"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

const (
	// MaxPageLimit is the largest page the APIs serve.
	MaxPageLimit = 100

	// User agent constraints
	maxUserAgentLength = 256
)

// Validator checks client configuration and request parameters against
// `validate` struct tags.
type Validator struct {
	once     sync.Once
	validate *validator.Validate
}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) lazyinit() {
	v.once.Do(func() {
		v.validate = validator.New()
		// header values must not smuggle extra lines or control bytes
		_ = v.validate.RegisterValidation("header", func(fl validator.FieldLevel) bool {
			return strings.IndexFunc(fl.Field().String(), func(r rune) bool {
				return (r < 0x20 && r != '\t') || r == 0x7f
			}) < 0
		})
	})
}

// ValidateConfig validates a tagged configuration struct. Violations are
// reported as *errors.ConfigError naming the first offending field.
func (v *Validator) ValidateConfig(cfg any) error {
	if kindOfData(cfg) != reflect.Struct {
		return &pkgerrs.ConfigError{Message: fmt.Sprintf("expected a config struct, got %T", cfg)}
	}

	v.lazyinit()
	if err := v.validate.Struct(cfg); err != nil {
		field, message := describe(err)
		return &pkgerrs.ConfigError{Field: field, Message: message}
	}
	return nil
}

// ValidatePageParams checks paging parameters before a page is requested.
func (v *Validator) ValidatePageParams(params types.PageParams) error {
	v.lazyinit()
	if err := v.validate.Struct(params); err != nil {
		field, message := describe(err)
		return &pkgerrs.ValidationError{Field: "PageParams." + field, Message: message}
	}
	return nil
}

// ValidateUserAgent validates the User-Agent string to prevent header injection attacks.
func (v *Validator) ValidateUserAgent(ua string) error {
	v.lazyinit()
	rule := fmt.Sprintf("required,max=%d,header", maxUserAgentLength)
	if err := v.validate.Var(ua, rule); err != nil {
		_, message := describe(err)
		return &pkgerrs.ConfigError{Field: "UserAgent", Message: message}
	}
	return nil
}

// describe turns the first validator failure into a field name and message.
func describe(err error) (string, string) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "", err.Error()
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field(), "is required"
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return fe.Field(), fmt.Sprintf("cannot exceed %s characters", fe.Param())
		}
		return fe.Field(), fmt.Sprintf("cannot exceed %s", fe.Param())
	case "min", "gte":
		return fe.Field(), fmt.Sprintf("must be at least %s", fe.Param())
	case "url":
		return fe.Field(), "must be an absolute URL"
	case "header":
		return fe.Field(), "cannot contain newline or control characters"
	default:
		return fe.Field(), fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// kindOfData returns the reflection Kind of the passed data
// If the data is a pointer, it returns the Kind of the referenced value
func kindOfData(data any) reflect.Kind {
	value := reflect.ValueOf(data)
	valueType := value.Kind()

	if valueType == reflect.Ptr {
		valueType = value.Elem().Kind()
	}
	return valueType
}
