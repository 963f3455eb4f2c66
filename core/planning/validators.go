package planning

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/planner/core"
)

var (
	planActionTag  = "planaction"
	planActionText = "action must be one of approve or reject"
)

// InitValidators registers the planning validations on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(planActionTag, planActionValidation)
	core.RegisterCustomTranslation(validate, translator, planActionTag, planActionText)
}

func planActionValidation(fl validator.FieldLevel) bool {
	var a Action
	switch v := fl.Field().Interface().(type) {
	case Action:
		a = v
	case string:
		a = Action(v)
	default:
		return false
	}
	_, ok := a.Target()
	return ok
}
