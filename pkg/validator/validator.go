package validator

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-records/internal/codegen"
)

// Register adds the clinic rules to v:
//
//	bizcode          any business code, e.g. P000001
//	bizcode=patient  a code of the named kind
//
// Empty values pass; combine with required when the code is mandatory.
func Register(v *playground.Validate) error {
	return v.RegisterValidation("bizcode", bizCode)
}

// RegisterWithGin installs the rules on gin's default binding validator.
func RegisterWithGin() error {
	v, ok := binding.Validator.Engine().(*playground.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator %T", binding.Validator.Engine())
	}
	return Register(v)
}

func bizCode(fl playground.FieldLevel) bool {
	code := fl.Field().String()
	if code == "" {
		return true
	}
	name := fl.Param()
	if name == "" {
		return codegen.Valid(code)
	}
	for _, k := range codegen.Kinds() {
		if k.Name == name {
			_, err := k.Parse(code)
			return err == nil
		}
	}
	return false
}
