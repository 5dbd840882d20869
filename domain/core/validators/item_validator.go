package validators

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"grocerylist/domain/config"
	pkgerrors "grocerylist/pkg/errors"

	"github.com/go-playground/validator/v10"
)

// ItemForm is the raw state of the add/edit form. Amount is nil until the
// user has entered a number.
type ItemForm struct {
	Title  string   `json:"title" validate:"required,item_title"`
	Amount *float64 `json:"amount" validate:"required,item_amount"`
}

// ValidItem is a form that passed validation, with the title trimmed
type ValidItem struct {
	Title  string
	Amount float64
}

// FieldErrors maps a form field name to its message
type FieldErrors map[string]string

// Fields returns the failing field names in a stable order
func (fe FieldErrors) Fields() []string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Err converts the field errors into a validation AppError, or nil when empty.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(fe))
	details := make(map[string]interface{}, len(fe))
	for _, f := range fe.Fields() {
		msgs = append(msgs, fe[f])
		details[f] = fe[f]
	}
	return pkgerrors.NewValidationError(strings.Join(msgs, "; ")).
		WithDetails(map[string]interface{}{"fields": details})
}

// ItemValidator validates item forms against the domain limits
type ItemValidator struct {
	cfg      *config.DomainConfig
	validate *validator.Validate
}

// NewItemValidator creates a validator bound to cfg
func NewItemValidator(cfg *config.DomainConfig) *ItemValidator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	v := validator.New()
	_ = v.RegisterValidation("item_title", func(fl validator.FieldLevel) bool {
		n := utf8.RuneCountInString(fl.Field().String())
		return n >= cfg.MinTitleLength && n <= cfg.MaxTitleLength
	})
	_ = v.RegisterValidation("item_amount", func(fl validator.FieldLevel) bool {
		amount := fl.Field().Float()
		if math.IsNaN(amount) || math.IsInf(amount, 0) {
			return false
		}
		return amount >= cfg.MinAmount && amount <= cfg.MaxAmount
	})

	return &ItemValidator{cfg: cfg, validate: v}
}

// Validate checks a form. The title is trimmed before any rule runs.
func (iv *ItemValidator) Validate(form ItemForm) (ValidItem, FieldErrors) {
	form.Title = strings.TrimSpace(form.Title)

	err := iv.validate.Struct(form)
	if err == nil {
		return ValidItem{Title: form.Title, Amount: *form.Amount}, nil
	}

	fieldErrs := FieldErrors{}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		fieldErrs["form"] = err.Error()
		return ValidItem{}, fieldErrs
	}
	for _, e := range validationErrors {
		field := strings.ToLower(e.Field())
		if _, seen := fieldErrs[field]; seen {
			continue
		}
		fieldErrs[field] = iv.message(field, e, form)
	}
	return ValidItem{}, fieldErrs
}

// Check is Validate returning a validation AppError instead of FieldErrors.
func (iv *ItemValidator) Check(form ItemForm) (ValidItem, error) {
	item, fieldErrs := iv.Validate(form)
	if err := fieldErrs.Err(); err != nil {
		return ValidItem{}, err
	}
	return item, nil
}

func (iv *ItemValidator) message(field string, e validator.FieldError, form ItemForm) string {
	switch field {
	case "title":
		if e.Tag() == "required" {
			return "Item name is required"
		}
		if utf8.RuneCountInString(form.Title) < iv.cfg.MinTitleLength {
			return fmt.Sprintf("Item name must be at least %d character", iv.cfg.MinTitleLength)
		}
		return fmt.Sprintf("Item name must be at most %d characters", iv.cfg.MaxTitleLength)
	case "amount":
		if e.Tag() == "required" {
			return "Amount is required"
		}
		if form.Amount != nil && *form.Amount > iv.cfg.MaxAmount {
			return fmt.Sprintf("Amount must be less than %g", iv.cfg.MaxAmount+1)
		}
		if form.Amount != nil && (math.IsNaN(*form.Amount) || math.IsInf(*form.Amount, 0)) {
			return "Amount must be a number"
		}
		return "Amount must be greater than 0"
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

var defaultValidator = NewItemValidator(nil)

// ValidateItemForm validates form against the default domain limits
func ValidateItemForm(form ItemForm) (ValidItem, FieldErrors) {
	return defaultValidator.Validate(form)
}
