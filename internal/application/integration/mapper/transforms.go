package mapper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/biter777/countries"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"github.com/ttacon/libphonenumber"
	"golang.org/x/text/currency"

	"github.com/erp/shopsync/internal/domain/integration"
)

// Kind selects how a field is read, normalized and written
type Kind string

const (
	KindString    Kind = "string"    // trimmed text
	KindText      Kind = "text"      // text kept verbatim (HTML, notes)
	KindLower     Kind = "lower"     // trimmed, lower-cased (emails)
	KindDecimal   Kind = "decimal"   // fixed two places
	KindMoney     Kind = "money"     // places from the record's ISO 4217 currency
	KindInt       Kind = "int"       // integer
	KindBool      Kind = "bool"      // "true" / "false"
	KindPhone     Kind = "phone"     // E.164
	KindCountry   Kind = "country"   // ISO 3166 alpha-2
	KindCurrency  Kind = "currency"  // ISO 4217 code
	KindTimestamp Kind = "timestamp" // RFC 3339 UTC
	KindTags      Kind = "tags"      // comma separated, trimmed
	KindLineItems Kind = "lineitems" // compact JSON [{sku,quantity,price}]
)

const (
	defaultPhoneRegion = "US"
	defaultMoneyPlaces = 2
)

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", integration.ErrValidation, field, fmt.Sprintf(format, args...))
}

// importValue reads a remote value into its canonical local string. doc is
// the whole remote resource, used by kinds that depend on sibling fields.
func importValue(rule FieldRule, v gjson.Result, doc gjson.Result) (string, error) {
	if rule.Compute != nil {
		return rule.Compute(doc), nil
	}
	if !v.Exists() || v.Type == gjson.Null {
		if rule.Default != "" {
			return rule.Default, nil
		}
		return "", nil
	}

	switch rule.Kind {
	case KindLineItems:
		return lineItemsFromRemote(rule.Local, v)
	case KindInt:
		if v.Type == gjson.Number {
			return strconv.FormatInt(v.Int(), 10), nil
		}
	case KindBool:
		if v.Type == gjson.True || v.Type == gjson.False {
			return strconv.FormatBool(v.Bool()), nil
		}
	case KindMoney:
		return money(rule.Local, v.String(), doc.Get("currency").String())
	case KindPhone:
		region := doc.Get("default_address.country_code").String()
		return phoneLenient(v.String(), region), nil
	case KindCountry:
		code, err := countryAlpha2(v.String())
		if err != nil {
			// keep what the store sent, the local side has no better value
			return strings.ToUpper(strings.TrimSpace(v.String())), nil
		}
		return code, nil
	}
	return canonical(rule, v.String(), nil)
}

// canonical normalizes a local value. fields supplies sibling values (the
// currency of a money field, the country of a phone).
func canonical(rule FieldRule, s string, fields integration.FieldSet) (string, error) {
	switch rule.Kind {
	case KindText:
		return s, nil
	case KindString:
		return strings.TrimSpace(s), nil
	case KindLower:
		return strings.ToLower(strings.TrimSpace(s)), nil
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}

	switch rule.Kind {
	case KindDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return "", invalid(rule.Local, "%q is not a decimal", s)
		}
		return d.StringFixed(defaultMoneyPlaces), nil
	case KindMoney:
		return money(rule.Local, s, fields["currency"])
	case KindInt:
		// remote stores send whole numbers as floats now and then
		d, err := decimal.NewFromString(s)
		if err != nil || !d.Equal(d.Truncate(0)) {
			return "", invalid(rule.Local, "%q is not an integer", s)
		}
		return d.Truncate(0).String(), nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return "", invalid(rule.Local, "%q is not a boolean", s)
		}
		return strconv.FormatBool(b), nil
	case KindPhone:
		return phoneLenient(s, fields["country_code"]), nil
	case KindCountry:
		return countryAlpha2(s)
	case KindCurrency:
		unit, err := currency.ParseISO(s)
		if err != nil {
			return "", invalid(rule.Local, "%q is not an ISO 4217 currency", s)
		}
		return unit.String(), nil
	case KindTimestamp:
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return "", invalid(rule.Local, "%q is not an RFC 3339 timestamp", s)
		}
		return t.UTC().Format(time.RFC3339), nil
	case KindTags:
		return normalizeTags(s), nil
	case KindLineItems:
		if !gjson.Valid(s) {
			return "", invalid(rule.Local, "line items are not valid JSON")
		}
		return lineItemsFromRemote(rule.Local, gjson.Parse(s))
	}
	return s, nil
}

// exportValue converts a canonical local value to the JSON value written
// at the rule's remote path.
func exportValue(rule FieldRule, s string, fields integration.FieldSet) (any, error) {
	c, err := canonical(rule, s, fields)
	if err != nil {
		return nil, err
	}

	switch rule.Kind {
	case KindInt:
		if c == "" {
			return 0, nil
		}
		return strconv.ParseInt(c, 10, 64)
	case KindBool:
		return c == "true", nil
	case KindPhone:
		if c == "" {
			return nil, nil
		}
		return phoneStrict(rule.Local, c, fields["country_code"])
	case KindLineItems:
		if c == "" {
			c = "[]"
		}
		return lineItemsToRemote(rule.Local, c)
	case KindTimestamp, KindCurrency:
		if c == "" {
			return nil, nil
		}
	}
	return c, nil
}

func money(field, amount, code string) (string, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return "", nil
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", invalid(field, "%q is not an amount", amount)
	}
	return d.StringFixed(currencyPlaces(code)), nil
}

// currencyPlaces returns the minor unit digits of an ISO 4217 code
func currencyPlaces(code string) int32 {
	if code == "" {
		return defaultMoneyPlaces
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return defaultMoneyPlaces
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

func phoneRegion(country string) string {
	if code, err := countryAlpha2(country); err == nil && code != "" {
		return code
	}
	return defaultPhoneRegion
}

// phoneLenient formats number as E.164, returning the trimmed input when it
// cannot be parsed.
func phoneLenient(number, country string) string {
	number = strings.TrimSpace(number)
	if number == "" {
		return ""
	}
	num, err := libphonenumber.Parse(number, phoneRegion(country))
	if err != nil {
		return number
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}

func phoneStrict(field, number, country string) (string, error) {
	num, err := libphonenumber.Parse(number, phoneRegion(country))
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return "", invalid(field, "%q is not a valid phone number", number)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// countryAlpha2 accepts alpha-2, alpha-3 codes and English names
func countryAlpha2(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	c := countries.ByName(s)
	if c == countries.Unknown {
		return "", invalid("country_code", "%q is not a known country", s)
	}
	return c.Alpha2(), nil
}

func normalizeTags(s string) string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// lineItemsFromRemote reduces a line item array to sku, quantity and price
func lineItemsFromRemote(field string, items gjson.Result) (string, error) {
	if !items.IsArray() {
		return "", invalid(field, "line items must be an array")
	}
	out := []byte(`[]`)
	for i, item := range items.Array() {
		price, err := money(field, item.Get("price").String(), "")
		if err != nil {
			return "", err
		}
		prefix := strconv.Itoa(i)
		out, err = sjson.SetBytes(out, prefix+".sku", strings.TrimSpace(item.Get("sku").String()))
		if err == nil {
			out, err = sjson.SetBytes(out, prefix+".quantity", item.Get("quantity").Int())
		}
		if err == nil {
			out, err = sjson.SetBytes(out, prefix+".price", price)
		}
		if err != nil {
			return "", invalid(field, "cannot encode line item %d: %v", i, err)
		}
	}
	return string(out), nil
}

// lineItemsToRemote adds the title custom line items require
func lineItemsToRemote(field, canonicalJSON string) (any, error) {
	out := []byte(canonicalJSON)
	var err error
	for i, item := range gjson.Parse(canonicalJSON).Array() {
		title := item.Get("sku").String()
		if title == "" {
			title = "Item"
		}
		out, err = sjson.SetBytes(out, strconv.Itoa(i)+".title", title)
		if err != nil {
			return nil, invalid(field, "cannot encode line item %d: %v", i, err)
		}
	}
	return rawJSON(out), nil
}

// rawJSON is written with sjson.SetRaw instead of being re-encoded
type rawJSON []byte

// joinName computes a display name from first and last name, falling back
// to the email.
func joinName(doc gjson.Result) string {
	name := strings.TrimSpace(strings.TrimSpace(doc.Get("first_name").String()) + " " + strings.TrimSpace(doc.Get("last_name").String()))
	if name != "" {
		return name
	}
	return strings.ToLower(strings.TrimSpace(doc.Get("email").String()))
}

// shippingTotal sums the shipping line prices of an order
func shippingTotal(doc gjson.Result) string {
	total := decimal.Zero
	for _, p := range doc.Get("shipping_lines.#.price").Array() {
		d, err := decimal.NewFromString(p.String())
		if err != nil {
			continue
		}
		total = total.Add(d)
	}
	return total.StringFixed(currencyPlaces(doc.Get("currency").String()))
}

// publishedFlag reports whether a collection is visible on the storefront
func publishedFlag(doc gjson.Result) string {
	if v := doc.Get("published"); v.Type == gjson.True || v.Type == gjson.False {
		return strconv.FormatBool(v.Bool())
	}
	at := doc.Get("published_at")
	return strconv.FormatBool(at.Exists() && at.Type != gjson.Null && at.String() != "")
}

// discountValue returns the magnitude of a price rule value. The store
// sends discounts as negative amounts.
func discountValue(doc gjson.Result) string {
	raw := strings.TrimSpace(doc.Get("value").String())
	if raw == "" {
		return ""
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return ""
	}
	return d.Abs().StringFixed(defaultMoneyPlaces)
}

// joinIDs returns a compute func listing the ids of an array member
func joinIDs(path string) func(doc gjson.Result) string {
	return func(doc gjson.Result) string {
		var ids []string
		for _, v := range doc.Get(path).Array() {
			if s := strings.TrimSpace(v.String()); s != "" {
				ids = append(ids, s)
			}
		}
		sort.Strings(ids)
		return strings.Join(ids, ",")
	}
}

// handleize derives the handle the store assigns to a new collection
func handleize(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
