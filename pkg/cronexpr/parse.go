package cronexpr

import (
	"sort"
	"strconv"
	"strings"
)

var monthNames = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

var dayNames = map[string]int{
	"SUN": 0, "MON": 1, "TUE": 2, "WED": 3, "THU": 4, "FRI": 5, "SAT": 6,
}

type macroDef struct {
	canon   string
	fields  string // 6-field expansion used for evaluation
	seconds bool
}

var macros = map[string]macroDef{
	"@yearly":       {"@yearly", "0 0 0 1 1 *", false},
	"@annually":     {"@yearly", "0 0 0 1 1 *", false},
	"@monthly":      {"@monthly", "0 0 0 1 * *", false},
	"@weekly":       {"@weekly", "0 0 0 * * 0", false},
	"@daily":        {"@daily", "0 0 0 * * *", false},
	"@midnight":     {"@daily", "0 0 0 * * *", false},
	"@hourly":       {"@hourly", "0 0 * * * *", false},
	"@every_minute": {"@every_minute", "0 * * * * *", false},
	"@every_second": {"@every_second", "* * * * * *", true},
}

func parse(text string) (*Expression, error) {
	orig := text
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, &ParseError{orig, "empty expression"}
	}

	if strings.HasPrefix(s, "@") {
		m, ok := macros[strings.ToLower(s)]
		if !ok {
			return nil, &ParseError{orig, "unknown macro " + s}
		}
		e, err := parseFields(strings.Fields(m.fields), orig)
		if err != nil {
			return nil, err
		}
		e.text = m.canon
		e.hasSeconds = m.seconds
		return e, nil
	}

	fields := strings.Fields(s)
	switch len(fields) {
	case 5:
		e, err := parseFields(append([]string{"0"}, fields...), orig)
		if err != nil {
			return nil, err
		}
		e.hasSeconds = false
		// Canonical text keeps the original field count.
		e.text = strings.Join(strings.Fields(e.text)[1:], " ")
		return e, nil
	case 6:
		e, err := parseFields(fields, orig)
		if err != nil {
			return nil, err
		}
		e.hasSeconds = true
		return e, nil
	default:
		return nil, &ParseError{orig, "expected 5 or 6 fields, got " + strconv.Itoa(len(fields))}
	}
}

// parseFields parses a full 6-field form and assembles the canonical text.
func parseFields(fields []string, orig string) (*Expression, error) {
	e := &Expression{}
	canon := make([]string, 6)

	var err error
	if e.seconds, _, canon[0], err = parsePlainField(fields[0], 0, 59, nil, orig); err != nil {
		return nil, err
	}
	if e.minutes, _, canon[1], err = parsePlainField(fields[1], 0, 59, nil, orig); err != nil {
		return nil, err
	}
	if e.hours, _, canon[2], err = parsePlainField(fields[2], 0, 23, nil, orig); err != nil {
		return nil, err
	}
	if canon[3], err = e.parseDOM(fields[3], orig); err != nil {
		return nil, err
	}
	if e.months, _, canon[4], err = parsePlainField(fields[4], 1, 12, monthNames, orig); err != nil {
		return nil, err
	}
	if canon[5], err = e.parseDOW(fields[5], orig); err != nil {
		return nil, err
	}

	e.text = strings.Join(canon, " ")
	return e, nil
}

// item is a parsed list element alongside its canonical spelling.
type item struct {
	key  int
	text string
}

func canonicalize(items []item) string {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].key != items[j].key {
			return items[i].key < items[j].key
		}
		return items[i].text < items[j].text
	})
	out := make([]string, 0, len(items))
	var prev string
	for i, it := range items {
		if i > 0 && it.text == prev {
			continue
		}
		out = append(out, it.text)
		prev = it.text
	}
	return strings.Join(out, ",")
}

// parsePlainField handles fields without day-specific tokens.
// It returns the value bitset, whether the field is unrestricted, and the
// canonical field text.
func parsePlainField(field string, lo, hi int, names map[string]int, orig string) (uint64, bool, string, error) {
	var bits uint64
	var items []item
	any := false

	for _, tok := range strings.Split(field, ",") {
		b, isAny, it, err := parseRangeToken(tok, lo, hi, names, false, orig)
		if err != nil {
			return 0, false, "", err
		}
		bits |= b
		any = any || isAny
		items = append(items, it)
	}
	if any && len(items) == 1 && items[0].text == "*" {
		return bits, true, "*", nil
	}
	return bits, false, canonicalize(items), nil
}

// parseRangeToken parses one list element of the form
// "*", "?", "a", "a-b", "a/n", "a-b/n" or "*/n".
func parseRangeToken(tok string, lo, hi int, names map[string]int, allowQuestion bool, orig string) (uint64, bool, item, error) {
	if tok == "" {
		return 0, false, item{}, &ParseError{orig, "empty list element"}
	}

	base := tok
	step := 1
	if i := strings.IndexByte(tok, '/'); i >= 0 {
		base = tok[:i]
		n, err := strconv.Atoi(tok[i+1:])
		if err != nil || n <= 0 {
			return 0, false, item{}, &ParseError{orig, "invalid step in " + tok}
		}
		step = n
	}

	if base == "*" || base == "?" {
		if base == "?" && !allowQuestion {
			return 0, false, item{}, &ParseError{orig, "? is only valid in day fields"}
		}
		bits := rangeBits(lo, hi, step, lo, hi)
		text := base
		if step > 1 {
			text = "*/" + strconv.Itoa(step)
		}
		return bits, step == 1, item{key: -1, text: text}, nil
	}

	var a, b int
	var aText, bText string
	var err error
	if i := strings.IndexByte(base, '-'); i > 0 {
		if a, aText, err = parseValue(base[:i], lo, hi, names, orig); err != nil {
			return 0, false, item{}, err
		}
		if b, bText, err = parseValue(base[i+1:], lo, hi, names, orig); err != nil {
			return 0, false, item{}, err
		}
	} else {
		if a, aText, err = parseValue(base, lo, hi, names, orig); err != nil {
			return 0, false, item{}, err
		}
		if step == 1 {
			return 1 << uint(a), false, item{key: a, text: aText}, nil
		}
		// "a/n" means a..max/n.
		b, bText = hi, strconv.Itoa(hi)
	}

	bits := rangeBits(a, b, step, lo, hi)
	text := aText + "-" + bText
	if step > 1 {
		text += "/" + strconv.Itoa(step)
	}
	return bits, false, item{key: a, text: text}, nil
}

// rangeBits sets every step-th value of a..b, wrapping past hi when the
// range is reversed.
func rangeBits(a, b, step, lo, hi int) uint64 {
	var bits uint64
	span := b - a
	if span < 0 {
		span += hi - lo + 1
	}
	for i := 0; i <= span; i += step {
		v := a + i
		if v > hi {
			v = lo + (v - hi - 1)
		}
		bits |= 1 << uint(v)
	}
	return bits
}

// parseValue parses one bound: a number or a (case-insensitive) name.
// Weekday 7 canonicalizes to 0.
func parseValue(s string, lo, hi int, names map[string]int, orig string) (int, string, error) {
	if s == "" {
		return 0, "", &ParseError{orig, "empty value"}
	}
	if v, err := strconv.Atoi(s); err == nil {
		if names != nil && isDayNames(names) && v == 7 {
			v = 0
		}
		if v < lo || v > hi {
			return 0, "", &ParseError{orig, "value " + s + " out of range " + strconv.Itoa(lo) + "-" + strconv.Itoa(hi)}
		}
		return v, strconv.Itoa(v), nil
	}
	if names == nil {
		return 0, "", &ParseError{orig, "invalid value " + s}
	}
	up := strings.ToUpper(s)
	if v, ok := names[up]; ok {
		return v, up, nil
	}
	return 0, "", &ParseError{orig, "unknown name " + s}
}

func isDayNames(names map[string]int) bool {
	_, ok := names["SUN"]
	return ok
}

// parseDOM parses the day-of-month field including L, L-n and nW tokens.
func (e *Expression) parseDOM(field string, orig string) (string, error) {
	var items []item
	plainAny := false

	for _, tok := range strings.Split(field, ",") {
		up := strings.ToUpper(tok)
		switch {
		case up == "L":
			e.domLast = true
			items = append(items, item{key: 64, text: "L"})
		case strings.HasPrefix(up, "L-"):
			n, err := strconv.Atoi(up[2:])
			if err != nil || n < 1 || n > 30 {
				return "", &ParseError{orig, "invalid last-day offset " + tok}
			}
			e.domLastOffset = append(e.domLastOffset, n)
			items = append(items, item{key: 64 + n, text: "L-" + strconv.Itoa(n)})
		case strings.HasSuffix(up, "W"):
			n, err := strconv.Atoi(up[:len(up)-1])
			if err != nil || n < 1 || n > 31 {
				return "", &ParseError{orig, "invalid nearest-weekday day " + tok}
			}
			e.domNearest = append(e.domNearest, n)
			items = append(items, item{key: n, text: strconv.Itoa(n) + "W"})
		default:
			bits, isAny, it, err := parseRangeToken(tok, 1, 31, nil, true, orig)
			if err != nil {
				return "", err
			}
			e.dom |= bits
			plainAny = plainAny || isAny
			items = append(items, it)
		}
	}

	if plainAny && len(items) == 1 {
		e.domAny = true
		return items[0].text, nil
	}
	return canonicalize(items), nil
}

// parseDOW parses the day-of-week field including d#n and dL tokens.
func (e *Expression) parseDOW(field string, orig string) (string, error) {
	var items []item
	plainAny := false

	for _, tok := range strings.Split(field, ",") {
		up := strings.ToUpper(tok)
		switch {
		case strings.Contains(up, "#"):
			i := strings.IndexByte(up, '#')
			d, dText, err := parseValue(up[:i], 0, 6, dayNames, orig)
			if err != nil {
				return "", err
			}
			n, err2 := strconv.Atoi(up[i+1:])
			if err2 != nil || n < 1 || n > 5 {
				return "", &ParseError{orig, "invalid weekday occurrence " + tok}
			}
			e.dowNths = append(e.dowNths, dowNth{weekday: d, nth: n})
			items = append(items, item{key: d*10 + n, text: dText + "#" + strconv.Itoa(n)})
		case up != "L" && strings.HasSuffix(up, "L"):
			d, dText, err := parseValue(up[:len(up)-1], 0, 6, dayNames, orig)
			if err != nil {
				return "", err
			}
			e.dowLast |= 1 << uint(d)
			items = append(items, item{key: d*10 + 8, text: dText + "L"})
		default:
			bits, isAny, it, err := parseRangeToken(tok, 0, 6, dayNames, true, orig)
			if err != nil {
				return "", err
			}
			e.dow |= bits
			plainAny = plainAny || isAny
			items = append(items, it)
		}
	}

	if plainAny && len(items) == 1 {
		e.dowAny = true
		return items[0].text, nil
	}
	return canonicalize(items), nil
}
