package kaos_fields

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var validatorOnce sync.Once
var validate *validator.Validate

var errInvalidStepRange = errors.New("finder min_step_sec must not exceed max_step_sec")

func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")

		if err := validate.RegisterValidation("latlon", latLon); err != nil {
			logrus.Fatalf("Unexpected err %v", err)
		}

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]

			if name == "-" {
				return ""
			}

			return name
		})
	})
	return validate
}

func ValidateStruct(obj interface{}) error {
	if kindOfData(obj) == reflect.Struct {
		if err := Validator().Struct(obj); err != nil {
			return err
		}
	}
	return nil
}

func kindOfData(data interface{}) reflect.Kind {

	value := reflect.ValueOf(data)
	valueType := value.Kind()

	if valueType == reflect.Ptr {
		valueType = value.Elem().Kind()
	}
	return valueType
}

// latLon accepts a two element [latitude, longitude] pair in degrees.
func latLon(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice && field.Kind() != reflect.Array {
		return false
	}
	if field.Len() != 2 {
		return false
	}
	lat, lon := field.Index(0), field.Index(1)
	if !lat.CanFloat() || !lon.CanFloat() {
		return false
	}
	return lat.Float() >= -90 && lat.Float() <= 90 && lon.Float() >= -180 && lon.Float() <= 180
}

type ErrDetails map[string]interface{}

// ErrorToString turns a single validator failure into a field: reason pair.
func ErrorToString(e validator.FieldError) ErrDetails {
	err := make(map[string]interface{})

	switch e.Tag() {
	case "required":
		err[e.Field()] = "this field is required"
	case "max":
		err[e.Field()] = fmt.Sprintf("this field cannot be longer than %s", e.Param())
	case "min":
		err[e.Field()] = fmt.Sprintf("this field must have at least %s items", e.Param())
	case "len":
		err[e.Field()] = fmt.Sprintf("this field must have exactly %s items", e.Param())
	case "latlon":
		err[e.Field()] = fmt.Sprintf("%v is not a valid [latitude, longitude] pair", e.Value())
	case "oneof":
		err[e.Field()] = fmt.Sprintf("must be one of [%s]", e.Param())
	default:
		err[e.Field()] = fmt.Sprintf("%s is not valid", e.Field())
	}

	return err
}

// ValidationDetails flattens validator errors into one map keyed by field.
// Other errors are reported under "body".
func ValidationDetails(err error) ErrDetails {
	out := ErrDetails{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			for k, v := range ErrorToString(fe) {
				out[k] = v
			}
		}
		return out
	}
	if err != nil {
		out["body"] = err.Error()
	}
	return out
}
