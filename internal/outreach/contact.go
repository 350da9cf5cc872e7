package outreach

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultRegion is the parsing region for phone numbers without a
// country prefix.
const DefaultRegion = "BR"

// CanonicalPhone parses a raw phone number and returns it in E.164.
func CanonicalPhone(raw, region string) (string, error) {
	if region == "" {
		region = DefaultRegion
	}
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return "", eris.Wrapf(err, "outreach: parse phone %q", raw)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", eris.Errorf("outreach: invalid phone %q", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// RegionFromPhone returns the ISO region code of an E.164 number, or
// empty when it cannot be determined.
func RegionFromPhone(e164 string) string {
	num, err := phonenumbers.Parse(e164, "")
	if err != nil {
		return ""
	}
	return phonenumbers.GetRegionCodeForNumber(num)
}

// ContactHash hashes a canonical contact (email or E.164 phone) for
// suppression and send-guard keys. Case and surrounding whitespace are
// ignored so the same mailbox always maps to one hash.
func ContactHash(contact string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(contact))))
	return hex.EncodeToString(sum[:])
}

// BuildUnsubscribeURL appends the contact hash to the opt-out endpoint.
func BuildUnsubscribeURL(base, contactHash string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Sprintf("%s?u=%s", base, contactHash)
	}
	q := u.Query()
	q.Set("u", contactHash)
	u.RawQuery = q.Encode()
	return u.String()
}

// Slugify turns a business name into a URL-safe demo-site slug:
// accents stripped, lowercased, runs of non-alphanumerics collapsed
// into single hyphens.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(stripped) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}
