package core

import (
	"errors"
	"regexp"
	"strings"
)

// Country describes a dialing zone offered by the registration and phone forms.
type Country struct {
	Code      string
	Name      string
	NameKreol string
	DialCode  string
	AreaCodes []string
}

var (
	ErrInvalidPhone = errors.New("invalid phone number")

	haitiLocal = regexp.MustCompile(`^[2-5]\d{7}$`)
)

// Countries lists the zones the dashboard knows how to format.
var Countries = []Country{
	{Code: "HT", Name: "Haiti", NameKreol: "Ayiti", DialCode: "+509"},
	{Code: "US", Name: "United States", NameKreol: "Etazini", DialCode: "+1", AreaCodes: []string{"305", "347", "718", "786", "917", "954"}},
	{Code: "CA", Name: "Canada", NameKreol: "Kanada", DialCode: "+1", AreaCodes: []string{"438", "514", "613"}},
	{Code: "CL", Name: "Chile", NameKreol: "Chili", DialCode: "+56"},
	{Code: "FR", Name: "France", NameKreol: "Lafrans", DialCode: "+33"},
	{Code: "DO", Name: "Dominican Republic", NameKreol: "Repiblik Dominikèn", DialCode: "+1", AreaCodes: []string{"809", "829", "849"}},
	{Code: "BR", Name: "Brazil", NameKreol: "Brezil", DialCode: "+55"},
	{Code: "MX", Name: "Mexico", NameKreol: "Meksik", DialCode: "+52"},
	{Code: "GP", Name: "Guadeloupe", NameKreol: "Gwadloup", DialCode: "+590"},
	{Code: "BS", Name: "Bahamas", NameKreol: "Bahamas", DialCode: "+1", AreaCodes: []string{"242"}},
}

// AllowedRegistrationCountries are the zones a new account may reside in.
var AllowedRegistrationCountries = []string{"HT", "US", "CA", "CL", "FR", "DO", "BR", "MX"}

// HaitiMobilePrefixes maps carriers to the leading digits of their numbers.
var HaitiMobilePrefixes = map[string][]string{
	"digicel": {"3", "34", "36", "37", "38"},
	"natcom":  {"4", "41", "42", "43", "44", "45", "46", "47", "48", "49"},
}

// FindCountry looks a country up by ISO code.
func FindCountry(code string) (Country, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range Countries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}

// IsRegistrationAllowed reports whether accounts may be opened from code.
func IsRegistrationAllowed(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range AllowedRegistrationCountries {
		if c == code {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone reduces a phone to its digits; Haitian numbers written with
// the 509 country code are reduced to their 8 local digits.
func NormalizePhone(phone string) string {
	d := digitsOnly(phone)
	if len(d) == 11 && strings.HasPrefix(d, "509") {
		return d[3:]
	}
	return d
}

// HaitiCarrier returns "digicel", "natcom" or "" for a Haitian number.
func HaitiCarrier(phone string) string {
	d := NormalizePhone(phone)
	if len(d) != 8 {
		return ""
	}
	best, bestLen := "", 0
	for carrier, prefixes := range HaitiMobilePrefixes {
		for _, p := range prefixes {
			if strings.HasPrefix(d, p) && len(p) > bestLen {
				best, bestLen = carrier, len(p)
			}
		}
	}
	return best
}

// FormatPhoneNumber renders a phone in the national display format of
// country. Numbers that do not fit the expected shape are returned as is.
func FormatPhoneNumber(phone, country string) string {
	d := digitsOnly(phone)
	switch strings.ToUpper(country) {
	case "HT":
		if len(d) == 11 && strings.HasPrefix(d, "509") {
			d = d[3:]
		}
		if len(d) == 8 {
			return "+509 " + d[:4] + "-" + d[4:]
		}
	case "US", "CA":
		if len(d) == 11 && d[0] == '1' {
			d = d[1:]
		}
		if len(d) == 10 {
			return "+1 (" + d[:3] + ") " + d[3:6] + "-" + d[6:]
		}
	}
	return phone
}

// ValidatePhoneNumber checks the national number length rules of country.
func ValidatePhoneNumber(phone, country string) error {
	d := digitsOnly(phone)
	ok := false
	switch strings.ToUpper(country) {
	case "HT":
		if len(d) == 11 && strings.HasPrefix(d, "509") {
			d = d[3:]
		}
		ok = haitiLocal.MatchString(d)
	case "US", "CA", "DO", "MX":
		ok = len(d) == 10
	case "FR":
		ok = len(d) == 9 || len(d) == 10
	case "CL":
		ok = len(d) == 9
	case "BR":
		ok = len(d) == 10 || len(d) == 11
	default:
		ok = len(d) >= 7
	}
	if !ok {
		return ErrInvalidPhone
	}
	return nil
}

// NormalizeEmail lower-cases and trims an e-mail address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LooksLikeEmail is the heuristic the backend uses to route a recipient.
func LooksLikeEmail(s string) bool {
	return strings.Contains(s, "@")
}
