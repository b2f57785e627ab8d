package transform

import (
	"errors"
	"reflect"

	"github.com/AbdulWasayUl/go-weather-etl/internal/etlerr"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("field"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// itemFields are the values every conditions entry is checked for, named by
// their location in the provider payload.
type itemFields struct {
	Temperature *float64 `field:"main.temp" validate:"required"`
	Condition   string   `field:"weather[0].main" validate:"required"`
	Timestamp   *int64   `field:"dt" validate:"required"`
	Humidity    *float64 `field:"main.humidity" validate:"omitempty,gte=0,lte=100"`
	CloudCover  *float64 `field:"clouds.all" validate:"omitempty,gte=0,lte=100"`
	WindDeg     *float64 `field:"wind.deg" validate:"omitempty,gte=0,lte=360"`
	Pop         *float64 `field:"pop" validate:"omitempty,gte=0,lte=1"`
	Pressure    *float64 `field:"main.pressure" validate:"omitempty,gte=0,lte=2000"`
	Visibility  *float64 `field:"visibility" validate:"omitempty,gte=0,lte=1000000"`
}

// problems collects field errors across a payload so a rejection names all of them.
type problems struct {
	missing   []string
	malformed []string
}

func (p *problems) check(prefix string, f itemFields) {
	err := validate.Struct(f)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		p.malformed = append(p.malformed, prefix+"entry")
		return
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			p.missing = append(p.missing, prefix+fe.Field())
		} else {
			p.malformed = append(p.malformed, prefix+fe.Field())
		}
	}
}

func (p *problems) missingField(name string) {
	p.missing = append(p.missing, name)
}

func (p *problems) err() error {
	if len(p.missing) == 0 && len(p.malformed) == 0 {
		return nil
	}
	return &etlerr.ValidationError{Missing: p.missing, Malformed: p.malformed}
}
