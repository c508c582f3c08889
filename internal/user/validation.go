package user

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := parseDate(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	return v
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("invalid date")
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var registerMessages = map[string]string{
	"email":     "Valid email is required",
	"password":  "Password must be at least 6 characters",
	"firstName": "First name is required",
	"lastName":  "Last name is required",
	"gender":    "Gender must be male, female, or other",
	"birthday":  "Birthday must be a valid date",
}

var loginMessages = map[string]string{
	"email":    "Valid email is required",
	"password": "Password is required",
}

const (
	msgFirstNameEmpty = "First name cannot be empty"
	msgLastNameEmpty  = "Last name cannot be empty"
)

type registerRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=6"`
	FirstName string  `json:"firstName" validate:"required"`
	LastName  string  `json:"lastName" validate:"required"`
	Address   *string `json:"address"`
	Country   *string `json:"country"`
	Gender    *string `json:"gender" validate:"omitnil,oneof=male female other"`
	Birthday  *string `json:"birthday" validate:"omitnil,isodate"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// updateRequest keeps nullable columns as Field so an explicit null survives
// decoding and can clear the column.
type updateRequest struct {
	Email     *string       `json:"email"`
	Password  *string       `json:"password"`
	FirstName *string       `json:"firstName"`
	LastName  *string       `json:"lastName"`
	Address   Field[string] `json:"address"`
	Country   Field[string] `json:"country"`
	Gender    Field[string] `json:"gender"`
	Birthday  Field[string] `json:"birthday"`
}

func (r *registerRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Address = trimPtr(r.Address)
	r.Country = trimPtr(r.Country)
}

func (r *registerRequest) check() []FieldError {
	r.normalize()
	return validateStruct(r, registerMessages)
}

// input assumes check has passed, so Birthday already parses.
func (r registerRequest) input() RegisterInput {
	in := RegisterInput{
		Email:     r.Email,
		Password:  r.Password,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Address:   r.Address,
		Country:   r.Country,
		Gender:    r.Gender,
	}
	if r.Birthday != nil {
		t, _ := parseDate(*r.Birthday)
		in.Birthday = &t
	}
	return in
}

func (r *loginRequest) check() []FieldError {
	r.Email = strings.TrimSpace(r.Email)
	return validateStruct(r, loginMessages)
}

// check validates only the keys that were sent and reports every failure.
func (r *updateRequest) check() (UpdateInput, []FieldError) {
	var (
		in   UpdateInput
		errs []FieldError
	)

	if r.Email != nil {
		email := strings.TrimSpace(*r.Email)
		if validate.Var(email, "required,email") != nil {
			errs = append(errs, FieldError{Field: "email", Message: registerMessages["email"]})
		}
		in.Email = &email
	}
	if r.Password != nil {
		if validate.Var(*r.Password, "min=6") != nil {
			errs = append(errs, FieldError{Field: "password", Message: registerMessages["password"]})
		}
		in.Password = r.Password
	}
	if r.FirstName != nil {
		name := strings.TrimSpace(*r.FirstName)
		if name == "" {
			errs = append(errs, FieldError{Field: "firstName", Message: msgFirstNameEmpty})
		}
		in.FirstName = &name
	}
	if r.LastName != nil {
		name := strings.TrimSpace(*r.LastName)
		if name == "" {
			errs = append(errs, FieldError{Field: "lastName", Message: msgLastNameEmpty})
		}
		in.LastName = &name
	}

	if r.Address.Present {
		in.Address = Field[string]{Present: true, Value: trimPtr(r.Address.Value)}
	}
	if r.Country.Present {
		in.Country = Field[string]{Present: true, Value: trimPtr(r.Country.Value)}
	}

	switch {
	case !r.Gender.Present:
	case r.Gender.Value == nil:
		in.Gender = Null[string]()
	case validate.Var(*r.Gender.Value, "oneof=male female other") != nil:
		errs = append(errs, FieldError{Field: "gender", Message: registerMessages["gender"]})
	default:
		in.Gender = r.Gender
	}

	switch {
	case !r.Birthday.Present:
	case r.Birthday.Value == nil:
		in.Birthday = Null[time.Time]()
	default:
		t, err := parseDate(*r.Birthday.Value)
		if err != nil {
			errs = append(errs, FieldError{Field: "birthday", Message: registerMessages["birthday"]})
			break
		}
		in.Birthday = Set(t)
	}

	return in, errs
}

func validateStruct(v any, messages map[string]string) []FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Field()]
		if !ok {
			msg = fe.Error()
		}
		out = append(out, FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
