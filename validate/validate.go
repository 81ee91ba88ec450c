package validate

import (
	"errors"
	"regexp"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/google/uuid"
)

var validate *validator.Validate

var translator ut.Translator

// Vietnamese subscriber numbers: +84 or a leading zero followed by 9 digits.
var vnPhone = regexp.MustCompile(`^(\+84|0)[1-9][0-9]{8}$`)

func init() {

	validate = validator.New()

	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterValidation("vnphone", func(fl validator.FieldLevel) bool {
		return vnPhone.MatchString(fl.Field().String())
	})
	validate.RegisterTranslation("vnphone", translator,
		func(ut ut.Translator) error {
			return ut.Add("vnphone", "{0} must be a valid VN phone number", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T("vnphone", fe.Field())
			return t
		},
	)
}

func Check(val any) error {
	if err := validate.Struct(val); err != nil {

		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		if len(verrors) < 1 {
			return nil
		}

		return errors.New(verrors[0].Translate(translator))
	}

	return nil
}

// Fields validates val and returns every violation keyed by field name, so
// callers can attach the full list to an error response.
func Fields(val any) map[string]interface{} {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	verrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]interface{}{"body": err.Error()}
	}

	fields := make(map[string]interface{}, len(verrors))
	for _, fe := range verrors {
		fields[fe.Field()] = fe.Translate(translator)
	}
	return fields
}

func GenerateID() string {
	return uuid.NewString()
}

func CheckID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("ID is not in its proper form")
	}
	return nil
}
