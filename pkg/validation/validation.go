package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/fee-engine/pkg/errors"
)

var academicYearPattern = regexp.MustCompile(`^\d{4}(-\d{2}(\d{2})?)?$`)

// New returns a validator that understands decimal.Decimal fields
// (decimal_gt, decimal_gte) and academic years such as 2026-2027.
func New() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Decimals are validated through their string form.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("decimal_gt", decimalCompare(func(d, bound decimal.Decimal) bool { return d.GreaterThan(bound) }))
	_ = v.RegisterValidation("decimal_gte", decimalCompare(func(d, bound decimal.Decimal) bool { return d.GreaterThanOrEqual(bound) }))
	_ = v.RegisterValidation("academic_year", func(fl validator.FieldLevel) bool {
		return academicYearPattern.MatchString(fl.Field().String())
	})

	return v
}

func decimalCompare(cmp func(d, bound decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		bound, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		return cmp(d, bound)
	}
}

// Struct validates s and converts failures into a validation BusinessError.
func Struct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return customError.WrapValidation(err.Error())
	}

	fields := make([]customError.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, customError.FieldError{
			Field:   fieldPath(fe),
			Message: describe(fe),
		})
	}
	return customError.WrapValidation("request validation failed", fields...)
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "decimal_gt":
		return "must be greater than " + fe.Param()
	case "decimal_gte":
		return "must be at least " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "academic_year":
		return "must look like 2026 or 2026-2027"
	default:
		return "failed " + fe.Tag() + " validation" + paramSuffix(fe.Param())
	}
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	if _, err := strconv.Atoi(p); err == nil {
		return " (" + p + ")"
	}
	return " (" + strconv.Quote(p) + ")"
}
