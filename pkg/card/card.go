package card

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Brand identifies a card network. Code is the processor's short type
// code sent with tokenization requests.
type Brand struct {
	Code      string
	Name      string
	CvcLength int
}

var (
	BrandVisa       = Brand{Code: "vi", Name: "Visa", CvcLength: 3}
	BrandMastercard = Brand{Code: "mc", Name: "Mastercard", CvcLength: 3}
	BrandAmex       = Brand{Code: "ax", Name: "American Express", CvcLength: 4}
	BrandDiners     = Brand{Code: "di", Name: "Diners Club", CvcLength: 3}
	BrandDiscover   = Brand{Code: "dc", Name: "Discover", CvcLength: 3}
	BrandUnknown    = Brand{Code: "", Name: "Unknown", CvcLength: 3}
)

var (
	rDigits = regexp.MustCompile(`^[0-9]+$`)
	rExpiry = regexp.MustCompile(`^(0[1-9]|1[0-2])/([0-9]{2})$`)
	rOtp    = regexp.MustCompile(`^[0-9]{4,8}$`)
)

// Detect resolves the card brand from the number prefix.
func Detect(number string) Brand {
	n := normalize(number)
	switch {
	case strings.HasPrefix(n, "4"):
		return BrandVisa
	case hasPrefixInRange(n, 51, 55) || hasPrefixInRange(n, 2221, 2720):
		return BrandMastercard
	case strings.HasPrefix(n, "34") || strings.HasPrefix(n, "37"):
		return BrandAmex
	case strings.HasPrefix(n, "36") || strings.HasPrefix(n, "38") || hasPrefixInRange(n, 300, 305):
		return BrandDiners
	case strings.HasPrefix(n, "6011") || strings.HasPrefix(n, "65"):
		return BrandDiscover
	default:
		return BrandUnknown
	}
}

// ValidateNumber checks length and the Luhn checksum.
func ValidateNumber(number string) error {
	n := normalize(number)
	if n == "" {
		return errors.New("card number is required")
	}
	if !rDigits.MatchString(n) {
		return errors.New("card number must contain only digits")
	}
	if len(n) < 13 || len(n) > 19 {
		return errors.New("card number length is invalid")
	}
	if !luhnValid(n) {
		return errors.New("card number failed checksum")
	}
	return nil
}

// ValidateHolderName applies the same bounds the processor enforces.
// Name checks are skipped entirely when the host hides the field.
func ValidateHolderName(name string, required bool) error {
	if !required {
		return nil
	}
	name = strings.TrimSpace(name)
	if len(name) < 4 || len(name) > 32 {
		return errors.New("holder name must be between 4 and 32 characters")
	}
	return nil
}

// ParseExpiry parses "MM/YY" and rejects dates in the past.
func ParseExpiry(expiry string) (month int, year int, err error) {
	m := rExpiry.FindStringSubmatch(strings.TrimSpace(expiry))
	if m == nil {
		err = errors.New("expiry must be in MM/YY format")
		return
	}
	month, _ = strconv.Atoi(m[1])
	yy, _ := strconv.Atoi(m[2])
	year = 2000 + yy
	now := time.Now()
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		err = errors.New("card is expired")
		return
	}
	return
}

// ValidateCvc checks the security code against the brand's length.
func ValidateCvc(cvc string, brand Brand) error {
	if cvc == "" {
		return errors.New("security code is required")
	}
	if !rDigits.MatchString(cvc) {
		return errors.New("security code must contain only digits")
	}
	if len(cvc) != brand.CvcLength {
		return errors.New(fmt.Sprintf("security code must be %d digits for %s", brand.CvcLength, brand.Name))
	}
	return nil
}

// ValidateOtp checks the one-time password format.
func ValidateOtp(code string) error {
	if !rOtp.MatchString(strings.TrimSpace(code)) {
		return errors.New("otp code must be 4 to 8 digits")
	}
	return nil
}

func normalize(number string) string {
	return strings.ReplaceAll(strings.TrimSpace(number), " ", "")
}

func luhnValid(n string) bool {
	sum := 0
	double := false
	for i := len(n) - 1; i >= 0; i-- {
		d := int(n[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func hasPrefixInRange(n string, lo, hi int) bool {
	width := len(strconv.Itoa(lo))
	if len(n) < width {
		return false
	}
	prefix, err := strconv.Atoi(n[:width])
	if err != nil {
		return false
	}
	return prefix >= lo && prefix <= hi
}
