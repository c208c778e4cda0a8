package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with the custom tags and struct-level
// rules used by the request types.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report JSON field names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("notblank", notBlank)
	v.RegisterStructValidation(createPurchaseOrderStructValidation, CreatePurchaseOrderRequest{})

	return v
}

func notBlank(fl validatorv10.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// createPurchaseOrderStructValidation rejects negative costs.
func createPurchaseOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreatePurchaseOrderRequest)
	if req.Cost != nil && req.Cost.IsNegative() {
		sl.ReportError(req.Cost, "cost", "Cost", "nonnegative", "")
	}
}
