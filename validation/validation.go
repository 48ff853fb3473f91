package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator"
	"github.com/meghashyamc/docsearch/logger"
)

const (
	dateLayout = "2006-01-02"

	maxFilterFields      = 50
	maxValuesPerFilter   = 1000
	maxFilterFieldLength = 256
	cursorLength         = 2
)

type Validator struct {
	validator                *validator.Validate
	logger                   logger.Logger
	tagValidationDetailsOnce sync.Once
	tagValidationDetailsMap  map[string]tagValidationDetails
}

type tagValidationDetails struct {
	validatorFunc validator.Func
	err           error
}

func New(logger logger.Logger) (*Validator, error) {
	validator := &Validator{validator: validator.New(), logger: logger}
	validator.validator.RegisterTagNameFunc(useJSONFieldNames)
	if err := validator.registerCustomValidatorsForTags(); err != nil {
		return nil, err
	}

	return validator, nil
}

func (v *Validator) Validate(i any) error {

	if err := v.validator.Struct(i); err != nil {
		v.logger.Warn("validation failed", "err", err.Error())
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {

			tagValidationDetails, ok := v.getTagValidationDetails()[validationErrs[0].Tag()]
			if ok {
				return tagValidationDetails.err
			}

			switch validationErrs[0].Tag() {
			case "required":
				return fmt.Errorf("missing required field '%s'", validationErrs[0].Field())

			case "min", "max":
				return fmt.Errorf("value or length of field '%s' is not in the expected range", validationErrs[0].Field())

			}
		}
		return err
	}
	return nil
}
func (v *Validator) getTagValidationDetails() map[string]tagValidationDetails {
	v.tagValidationDetailsOnce.Do(func() {
		v.tagValidationDetailsMap = map[string]tagValidationDetails{
			"valid_path":       {validatorFunc: v.isValidPath, err: errors.New("invalid path")},
			"valid_match_mode": {validatorFunc: v.isValidMatchMode, err: errors.New("match_mode must be 'any' or 'all'")},
			"valid_date":       {validatorFunc: v.isValidDate, err: errors.New("dates must be in YYYY-MM-DD form")},
			"valid_filters":    {validatorFunc: v.isValidFilters, err: errors.New("invalid filters")},
			"valid_cursor":     {validatorFunc: v.isValidCursor, err: errors.New("invalid cursor")},
		}
	})
	return v.tagValidationDetailsMap
}

func (v *Validator) registerCustomValidatorsForTags() error {

	tagValidationDetailsMap := v.getTagValidationDetails()

	for tag, tagValidationDetails := range tagValidationDetailsMap {
		if err := v.validator.RegisterValidation(tag, tagValidationDetails.validatorFunc); err != nil {
			v.logger.Error("failed to register customer validator function", "err", err.Error())
			return err
		}
	}
	return nil
}

func useJSONFieldNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func (v *Validator) isValidPath(fl validator.FieldLevel) bool {
	inputPath := fl.Field().String()
	if len(inputPath) == 0 {
		return true
	}
	if strings.TrimSpace(inputPath) == "" {
		v.logger.Warn("validation path is empty", "path", inputPath)
		return false
	}

	if strings.Contains(inputPath, "\x00") {
		v.logger.Warn("validation path has null byte", "path", inputPath)
		return false
	}

	if !strings.HasPrefix(inputPath, "/") {
		v.logger.Warn("validation path does not start with /", "path", inputPath)
		return false
	}

	if _, err := os.Stat(inputPath); err != nil {
		v.logger.Info("path does not exist", "path", inputPath)
		return false
	}

	return true
}

func (v *Validator) isValidMatchMode(fl validator.FieldLevel) bool {
	switch strings.ToLower(fl.Field().String()) {
	case "", "any", "all":
		return true
	}
	return false
}

func (v *Validator) isValidDate(fl validator.FieldLevel) bool {
	date := strings.TrimSpace(fl.Field().String())
	if len(date) == 0 {
		return true
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		v.logger.Warn("date is not in YYYY-MM-DD form", "date", date)
		return false
	}
	return true
}

func (v *Validator) isValidFilters(fl validator.FieldLevel) bool {
	filters, ok := fl.Field().Interface().(map[string][]string)
	if !ok {
		return false
	}
	if len(filters) > maxFilterFields {
		v.logger.Warn("too many filter fields", "count", len(filters))
		return false
	}

	for field, values := range filters {
		if strings.TrimSpace(field) == "" || len(field) > maxFilterFieldLength {
			v.logger.Warn("invalid filter field name", "field", field)
			return false
		}
		if len(values) > maxValuesPerFilter {
			v.logger.Warn("too many values for filter", "field", field, "count", len(values))
			return false
		}
	}
	return true
}

// isValidCursor accepts nothing or a sort tuple of strings and numbers, as produced by a search.
func (v *Validator) isValidCursor(fl validator.FieldLevel) bool {
	cursor, ok := fl.Field().Interface().([]any)
	if !ok {
		return false
	}
	if len(cursor) == 0 {
		return true
	}
	if len(cursor) != cursorLength {
		v.logger.Warn("cursor has an unexpected length", "length", len(cursor))
		return false
	}

	for _, value := range cursor {
		switch value.(type) {
		case string, json.Number, float64:
		default:
			v.logger.Warn("cursor holds an unexpected value", "type", fmt.Sprintf("%T", value))
			return false
		}
	}
	return true
}
