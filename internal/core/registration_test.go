package core

import (
	"errors"
	"testing"
	"time"
)

var signupNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func validForm() RegistrationForm {
	return RegistrationForm{
		FirstName:        "Tika",
		LastName:         "Jan",
		DateOfBirth:      "1995-04-12",
		Email:            " Tika@Example.com ",
		CountryCode:      "HT",
		PhoneNumber:      "3712 9999",
		Password:         "sekrè123",
		ConfirmPassword:  "sekrè123",
		Address:          "12 Ri Kapwa",
		City:             "Pòtoprens",
		ResidenceCountry: "ht",
		IDNumber:         "001-234-567",
		AgreeToTerms:     true,
	}
}

func TestRegistrationFormValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegistrationForm)
		field  string
		msg    string
	}{
		{"valid haiti", func(*RegistrationForm) {}, "", ""},
		{"missing first name", func(f *RegistrationForm) { f.FirstName = " " }, "first_name", "Obligatwa"},
		{"missing phone", func(f *RegistrationForm) { f.PhoneNumber = "" }, "phone", "Obligatwa"},
		{"haiti bad prefix", func(f *RegistrationForm) { f.PhoneNumber = "67123456" }, "phone", "Ayiti: 8 chif, kòmanse ak 2-5."},
		{"us needs area code", func(f *RegistrationForm) { f.CountryCode = "US"; f.PhoneNumber = "5551234" }, "phone", "Chwazi kòd rejyon an"},
		{"us short number", func(f *RegistrationForm) { f.CountryCode = "US"; f.AreaCode = "305"; f.PhoneNumber = "55512" }, "phone", "Obligatwa 10 chif (area code + nimewo)."},
		{"us valid", func(f *RegistrationForm) { f.CountryCode = "US"; f.AreaCode = "305"; f.PhoneNumber = "555-1234" }, "", ""},
		{"chile length", func(f *RegistrationForm) { f.CountryCode = "CL"; f.PhoneNumber = "12345" }, "phone", "Chili: dwe 9 chif."},
		{"phone country closed", func(f *RegistrationForm) { f.CountryCode = "GP"; f.PhoneNumber = "690123456" }, "phone", "Peyi sa a pa disponib pou enskripsyon"},
		{"residence closed", func(f *RegistrationForm) { f.ResidenceCountry = "BS" }, "residence_country", "Peyi sa a pa disponib pou enskripsyon"},
		{"short password", func(f *RegistrationForm) { f.Password = "abc"; f.ConfirmPassword = "abc" }, "password", "Minimòm 8 karaktè"},
		{"confirm differs", func(f *RegistrationForm) { f.ConfirmPassword = "lòt-modpas" }, "confirm_password", "Mo de pas yo pa menm"},
		{"future birth date", func(f *RegistrationForm) { f.DateOfBirth = "2030-01-01" }, "date_of_birth", "Dat la pa valab"},
		{"bad username", func(f *RegistrationForm) { f.Username = "a b" }, "username", "3 a 30 karaktè: lèt, chif, pwen oswa _"},
		{"bad id type", func(f *RegistrationForm) { f.IDType = "license" }, "id_document_type", "Tip dokiman an pa valab"},
		{"terms", func(f *RegistrationForm) { f.AgreeToTerms = false }, "agree_terms", "Ou dwe aksepte kondisyon yo ak règleman konfidansyalite a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.mutate(&f)
			errs := f.Normalized().Validate(signupNow)
			if tt.field == "" {
				if errs != nil {
					t.Fatalf("Validate() = %v, want no errors", errs)
				}
				return
			}
			if got := errs[tt.field]; got != tt.msg {
				t.Errorf("errs[%q] = %q, want %q (all: %v)", tt.field, got, tt.msg, errs)
			}
		})
	}
}

func TestRegistrationRequest(t *testing.T) {
	f := validForm().Normalized()
	req := f.Request()
	if req.Phone != "+50937129999" {
		t.Errorf("Phone = %q", req.Phone)
	}
	if req.Email != "tika@example.com" || req.ResidenceCountryCode != "HT" || req.Country != "Haiti" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.IDDocumentType != IDNationalCard {
		t.Errorf("IDDocumentType = %q", req.IDDocumentType)
	}

	f.CountryCode, f.AreaCode, f.PhoneNumber, f.ResidenceCountry = "US", "305", "5551234", "US"
	req = f.Request()
	if req.Phone != "+13055551234" || req.Country != "United States" {
		t.Errorf("unexpected US request %+v", req)
	}
}

func TestRegistrationCountries(t *testing.T) {
	got := RegistrationCountries()
	if len(got) != len(AllowedRegistrationCountries) {
		t.Fatalf("got %d countries", len(got))
	}
	for _, c := range got {
		if !IsRegistrationAllowed(c.Code) {
			t.Errorf("%s offered but not allowed", c.Code)
		}
	}
}

func TestValidatePasswordPolicy(t *testing.T) {
	tests := []struct {
		pwd  string
		want error
	}{
		{"Abcdef1!", nil},
		{"Ab1!", ErrWeakPassword},
		{"abcdef1!", ErrPasswordPolicy},
		{"ABCDEF1!", ErrPasswordPolicy},
		{"Abcdefg!", ErrPasswordPolicy},
		{"Abcdefg1", ErrPasswordPolicy},
	}
	for _, tt := range tests {
		if err := ValidatePasswordPolicy(tt.pwd); !errors.Is(err, tt.want) {
			t.Errorf("ValidatePasswordPolicy(%q) = %v, want %v", tt.pwd, err, tt.want)
		}
	}
}

func TestPasswordResetConfirmValidate(t *testing.T) {
	ok := PasswordResetConfirm{UID: "MQ", Token: "abc", NewPassword: "Nouvo#2026", ConfirmPassword: "Nouvo#2026"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	noToken := ok
	noToken.Token = ""
	if err := noToken.Validate(); !errors.Is(err, ErrResetLink) {
		t.Errorf("missing token: %v", err)
	}
	mismatch := ok
	mismatch.ConfirmPassword = "Nouvo#2027"
	if err := mismatch.Validate(); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("mismatch: %v", err)
	}
}

func TestValidateVerificationCode(t *testing.T) {
	for code, ok := range map[string]bool{"123456": true, "12345": false, "12345a": false, "": false} {
		if err := ValidateVerificationCode(code); (err == nil) != ok {
			t.Errorf("ValidateVerificationCode(%q) = %v", code, err)
		}
	}
}

func TestFieldErrorsError(t *testing.T) {
	errs := FieldErrors{"phone": "b", "city": "a"}
	if got := errs.Error(); got != "city: a; phone: b" {
		t.Errorf("Error() = %q", got)
	}
}
