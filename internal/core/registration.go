package core

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
)

var (
	ErrPasswordMismatch = errors.New("password confirmation does not match")
	// ErrPasswordPolicy is returned by the reset flow for passwords missing
	// an upper case letter, a lower case letter, a digit or a symbol.
	ErrPasswordPolicy = errors.New("password does not meet the policy")
	ErrResetLink      = errors.New("reset link is incomplete")

	verificationCode = regexp.MustCompile(`^\d{6}$`)
	usernamePattern  = regexp.MustCompile(`^[A-Za-z0-9_.]{3,30}$`)
)

// Identity documents accepted at sign-up.
const (
	IDNationalCard = "national_id"
	IDPassport     = "passport"
)

// FieldErrors maps a form field name to the message shown under it.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return strings.Join(parts, "; ")
}

func (e FieldErrors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// RegistrationForm is the sign-up form as the user filled it.
type RegistrationForm struct {
	FirstName        string
	LastName         string
	DateOfBirth      string
	Email            string
	Username         string
	CountryCode      string
	AreaCode         string
	PhoneNumber      string
	Password         string
	ConfirmPassword  string
	Address          string
	City             string
	ResidenceCountry string
	IDType           string
	IDNumber         string
	AgreeToTerms     bool
}

// RegistrationRequest is the body of the backend sign-up call.
type RegistrationRequest struct {
	Email                string `json:"email"`
	Username             string `json:"username,omitempty"`
	Phone                string `json:"phone"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	DateOfBirth          string `json:"date_of_birth"`
	Password             string `json:"password"`
	Address              string `json:"address"`
	City                 string `json:"city"`
	Country              string `json:"country"`
	ResidenceCountryCode string `json:"residence_country_code"`
	IDDocumentType       string `json:"id_document_type"`
	IDDocumentNumber     string `json:"id_document_number"`
}

type RegistrationResult struct {
	Message              string `json:"message"`
	UserID               ID     `json:"user_id"`
	VerificationRequired bool   `json:"verification_required"`
}

type UsernameAvailability struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

// PasswordResetConfirm carries the link parameters and the new password.
type PasswordResetConfirm struct {
	UID             string `json:"uid"`
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

const msgRequired = "Obligatwa"

var phoneMessages = map[string]string{
	"HT": "Ayiti: 8 chif, kòmanse ak 2-5.",
	"US": "Obligatwa 10 chif (area code + nimewo).",
	"CA": "Obligatwa 10 chif (area code + nimewo).",
	"DO": "Obligatwa 10 chif (area code + nimewo).",
	"FR": "Frans: dwe 9 oswa 10 chif.",
	"CL": "Chili: dwe 9 chif.",
	"BR": "Brezil: dwe 10 oswa 11 chif.",
	"MX": "Meksik: dwe 10 chif.",
}

// Normalized trims every text field and upper-cases the country codes.
func (f RegistrationForm) Normalized() RegistrationForm {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.DateOfBirth = strings.TrimSpace(f.DateOfBirth)
	f.Email = NormalizeEmail(f.Email)
	f.Username = strings.TrimSpace(f.Username)
	f.CountryCode = strings.ToUpper(strings.TrimSpace(f.CountryCode))
	f.AreaCode = digitsOnly(f.AreaCode)
	f.PhoneNumber = digitsOnly(f.PhoneNumber)
	f.Address = strings.TrimSpace(f.Address)
	f.City = strings.TrimSpace(f.City)
	f.ResidenceCountry = strings.ToUpper(strings.TrimSpace(f.ResidenceCountry))
	f.IDType = strings.TrimSpace(f.IDType)
	f.IDNumber = strings.TrimSpace(f.IDNumber)
	if f.CountryCode == "" {
		f.CountryCode = "HT"
	}
	if f.IDType == "" {
		f.IDType = IDNationalCard
	}
	return f
}

// NationalNumber is the phone as validated: the bare number for Haiti,
// area code then number elsewhere.
func (f RegistrationForm) NationalNumber() string {
	if f.CountryCode == "HT" {
		return f.PhoneNumber
	}
	return f.AreaCode + f.PhoneNumber
}

// Validate checks a normalized form. It returns nil when the form can be
// sent to the backend.
func (f RegistrationForm) Validate(now time.Time) FieldErrors {
	errs := FieldErrors{}
	required := map[string]string{
		"first_name":         f.FirstName,
		"last_name":          f.LastName,
		"date_of_birth":      f.DateOfBirth,
		"email":              f.Email,
		"phone":              f.PhoneNumber,
		"address":            f.Address,
		"city":               f.City,
		"residence_country":  f.ResidenceCountry,
		"id_document_number": f.IDNumber,
	}
	for field, v := range required {
		if v == "" {
			errs[field] = msgRequired
		}
	}

	if f.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", f.DateOfBirth)
		if err != nil || dob.After(now) {
			errs["date_of_birth"] = "Dat la pa valab"
		}
	}
	if f.Email != "" && !strings.Contains(f.Email, "@") {
		errs["email"] = "Imèl la pa valab"
	}
	if f.Username != "" && !ValidUsername(f.Username) {
		errs["username"] = "3 a 30 karaktè: lèt, chif, pwen oswa _"
	}

	country, known := FindCountry(f.CountryCode)
	switch {
	case !known || !IsRegistrationAllowed(f.CountryCode):
		errs["phone"] = "Peyi sa a pa disponib pou enskripsyon"
	case f.PhoneNumber == "":
	case len(country.AreaCodes) > 0 && f.AreaCode == "":
		errs["phone"] = "Chwazi kòd rejyon an"
	case ValidatePhoneNumber(f.NationalNumber(), f.CountryCode) != nil:
		msg, ok := phoneMessages[f.CountryCode]
		if !ok {
			msg = "Nimewo telefòn pa valid."
		}
		errs["phone"] = msg
	}

	if f.ResidenceCountry != "" && !IsRegistrationAllowed(f.ResidenceCountry) {
		errs["residence_country"] = "Peyi sa a pa disponib pou enskripsyon"
	}
	if len(f.Password) < 8 {
		errs["password"] = "Minimòm 8 karaktè"
	}
	if f.Password != f.ConfirmPassword {
		errs["confirm_password"] = "Mo de pas yo pa menm"
	}
	if f.IDType != IDNationalCard && f.IDType != IDPassport {
		errs["id_document_type"] = "Tip dokiman an pa valab"
	}
	if !f.AgreeToTerms {
		errs["agree_terms"] = "Ou dwe aksepte kondisyon yo ak règleman konfidansyalite a"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Request builds the backend body from a validated form. The phone is sent
// in international form: dial code, area code, number.
func (f RegistrationForm) Request() RegistrationRequest {
	country, _ := FindCountry(f.CountryCode)
	residence, ok := FindCountry(f.ResidenceCountry)
	countryName := "Haiti"
	if ok {
		countryName = residence.Name
	}
	return RegistrationRequest{
		Email:                f.Email,
		Username:             f.Username,
		Phone:                country.DialCode + f.NationalNumber(),
		FirstName:            f.FirstName,
		LastName:             f.LastName,
		DateOfBirth:          f.DateOfBirth,
		Password:             f.Password,
		Address:              f.Address,
		City:                 f.City,
		Country:              countryName,
		ResidenceCountryCode: f.ResidenceCountry,
		IDDocumentType:       f.IDType,
		IDDocumentNumber:     f.IDNumber,
	}
}

// RegistrationCountries are the zones offered by the sign-up form.
func RegistrationCountries() []Country {
	out := make([]Country, 0, len(AllowedRegistrationCountries))
	for _, code := range AllowedRegistrationCountries {
		if c, ok := FindCountry(code); ok {
			out = append(out, c)
		}
	}
	return out
}

// ValidUsername accepts 3 to 30 letters, digits, dots or underscores.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

// ValidateVerificationCode accepts the 6-digit code mailed at sign-up.
func ValidateVerificationCode(code string) error {
	if !verificationCode.MatchString(code) {
		return ErrInvalidCode
	}
	return nil
}

// ValidatePasswordPolicy requires 8 characters with upper and lower case
// letters, a digit and a symbol.
func ValidatePasswordPolicy(pwd string) error {
	if len(pwd) < 8 {
		return ErrWeakPassword
	}
	var upper, lower, digit, symbol bool
	for _, r := range pwd {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return ErrPasswordPolicy
	}
	return nil
}

func (r PasswordResetConfirm) Validate() error {
	if r.UID == "" || r.Token == "" {
		return ErrResetLink
	}
	if r.NewPassword == "" {
		return ErrMissingField
	}
	if err := ValidatePasswordPolicy(r.NewPassword); err != nil {
		return err
	}
	if r.NewPassword != r.ConfirmPassword {
		return ErrPasswordMismatch
	}
	return nil
}
