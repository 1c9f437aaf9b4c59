package wizard

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/velo-booking/internal/booking"
)

// ContactForm holds the contact step input as typed. Measurements are free
// text and only become numbers when the booking request is built.
type ContactForm struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Email       string `json:"email" validate:"required"`
	Phone       string `json:"phone" validate:"required"`
	Height      string `json:"height,omitempty"`
	Weight      string `json:"weight,omitempty"`
	ShoeSize    string `json:"shoe_size,omitempty"`
	Notes       string `json:"notes,omitempty"`
	AcceptTerms bool   `json:"accept_terms" validate:"required"`
}

// Draft accumulates the wizard selections.
type Draft struct {
	Service *booking.Service  `json:"service,omitempty"`
	Date    *booking.Date     `json:"date,omitempty"`
	Slot    *booking.TimeSlot `json:"slot,omitempty"`
	Contact ContactForm       `json:"contact"`
}

// Contact returns the four fields sent as the booking's customer.
func (f ContactForm) Contact() booking.ContactDetails {
	return booking.ContactDetails{
		FirstName: strings.TrimSpace(f.FirstName),
		LastName:  strings.TrimSpace(f.LastName),
		Email:     strings.TrimSpace(f.Email),
		Phone:     strings.TrimSpace(f.Phone),
	}
}

// BookingContext parses the optional measurements. Empty or non-numeric
// input is left out; it is never an error.
func (f ContactForm) BookingContext() *booking.BookingContext {
	ctx := &booking.BookingContext{
		HeightCM: parseNumber(f.Height),
		WeightKG: parseNumber(f.Weight),
		ShoeSize: parseNumber(f.ShoeSize),
		Notes:    strings.TrimSpace(f.Notes),
	}
	if ctx.IsEmpty() {
		return nil
	}
	return ctx
}

var decimalNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)

func parseNumber(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return nil
	}
	// ParseFloat also accepts NaN, Inf and hex floats, none of which a
	// person types as a height or shoe size.
	if !decimalNumber.MatchString(s) {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

var fieldNames = map[string]string{
	"FirstName":   "first_name",
	"LastName":    "last_name",
	"Email":       "email",
	"Phone":       "phone",
	"AcceptTerms": "accept_terms",
}

// checkRequired reports missing required fields as a validation error whose
// message lists them.
func checkRequired(v *validator.Validate, f ContactForm) error {
	trimmed := f
	trimmed.FirstName = strings.TrimSpace(f.FirstName)
	trimmed.LastName = strings.TrimSpace(f.LastName)
	trimmed.Email = strings.TrimSpace(f.Email)
	trimmed.Phone = strings.TrimSpace(f.Phone)

	err := v.Struct(trimmed)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name, ok := fieldNames[fe.StructField()]
		if !ok {
			name = fe.Field()
		}
		missing = append(missing, name)
	}
	sort.Strings(missing)
	return &booking.ValidationError{Message: "missing required fields: " + strings.Join(missing, ", ")}
}
