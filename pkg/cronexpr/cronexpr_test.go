package cronexpr

import (
	"testing"
	"time"
)

func utc(y int, mo time.Month, d, h, m, s int) time.Time {
	return time.Date(y, mo, d, h, m, s, 0, time.UTC)
}

func mustNext(t *testing.T, expr string, from time.Time) time.Time {
	t.Helper()
	e := MustParse(expr)
	got, ok, err := e.Next(from)
	if err != nil {
		t.Fatalf("Next(%s): %v", expr, err)
	}
	if !ok {
		t.Fatalf("Next(%s): no occurrence", expr)
	}
	return got
}

func TestParseCanonical(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0 9 * * 1", "0 9 * * 1"},
		{"0 9 * * 7", "0 9 * * 0"},
		{"0 9 * * mon", "0 9 * * MON"},
		{"5,1-3 * * * *", "1-3,5 * * * *"},
		{"5,5,1 * * * *", "1,5 * * * *"},
		{"*/15 * * * *", "*/15 * * * *"},
		{"0 0 L * *", "0 0 L * *"},
		{"0 0 15W * *", "0 0 15W * *"},
		{"0 0 L-3 * *", "0 0 L-3 * *"},
		{"0 0 * * 5#3", "0 0 * * 5#3"},
		{"0 0 * * friL", "0 0 * * FRIL"},
		{"0 0 ? * 1", "0 0 ? * 1"},
		{"30 4 1,15 * 5-7", "30 4 1,15 * 5-0"},
		{"@annually", "@yearly"},
		{"@midnight", "@daily"},
		{"@every_second", "@every_second"},
		{"  0   9 * * 1  ", "0 9 * * 1"},
		{"*/2 * * * * *", "*/2 * * * * *"},
	}
	for _, c := range cases {
		e, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.in, err)
		}
		if e.String() != c.want {
			t.Fatalf("Parse(%q) canonical = %q, want %q", c.in, e.String(), c.want)
		}
		// Canonical round-trip is a fixed point.
		again, err := Parse(e.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", e.String(), err)
		}
		if again.String() != e.String() {
			t.Fatalf("canonical %q not stable, got %q", e.String(), again.String())
		}
	}
}

func TestParseRejects(t *testing.T) {
	bad := []string{
		"",
		"* * *",
		"* * * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 32 * *",
		"* * * 13 *",
		"* * * * 8",
		"* * * * XYZ",
		"*/0 * * * *",
		"@fortnightly",
		"? * * * *",
		"* * L-40 * *",
		"* * 40W * *",
		"* * * * 1#6",
	}
	for _, in := range bad {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q): expected error", in)
		}
	}
}

func TestEqualityIsTextual(t *testing.T) {
	byNumber := MustParse("0 9 * * 1")
	byName := MustParse("0 9 * * MON")
	if byNumber.Equal(byName) {
		t.Fatal("textually distinct expressions must not be equal")
	}
	if byNumber.Hash() == byName.Hash() {
		t.Fatal("hashes should follow textual equality")
	}

	seven := MustParse("0 9 * * 7")
	zero := MustParse("0 9 * * 0")
	if !seven.Equal(zero) {
		t.Fatal("weekday 7 must canonicalize to 0")
	}
	if seven.Hash() != zero.Hash() {
		t.Fatal("equal expressions must hash equally")
	}
}

func TestNextBasics(t *testing.T) {
	cases := []struct {
		expr string
		from time.Time
		want time.Time
	}{
		{"*/2 * * * * *", utc(2024, 3, 1, 10, 0, 0), utc(2024, 3, 1, 10, 0, 2)},
		{"* * * * *", utc(2024, 3, 1, 10, 0, 30), utc(2024, 3, 1, 10, 1, 0)},
		{"30 9 * * *", utc(2024, 3, 1, 10, 0, 0), utc(2024, 3, 2, 9, 30, 0)},
		{"0 0 1 1 *", utc(2024, 3, 1, 0, 0, 0), utc(2025, 1, 1, 0, 0, 0)},
		{"@hourly", utc(2024, 3, 1, 10, 0, 0), utc(2024, 3, 1, 11, 0, 0)},
		{"@daily", utc(2024, 3, 1, 10, 0, 0), utc(2024, 3, 2, 0, 0, 0)},
		{"0 9 * * MON", utc(2024, 3, 1, 10, 0, 0), utc(2024, 3, 4, 9, 0, 0)},
		// Reversed range wraps: 22,23,0,1 hours.
		{"0 22-1 * * *", utc(2024, 3, 1, 23, 30, 0), utc(2024, 3, 2, 0, 0, 0)},
		{"0 0 * * FRI-MON", utc(2024, 3, 5, 0, 0, 0), utc(2024, 3, 8, 0, 0, 0)},
	}
	for _, c := range cases {
		if got := mustNext(t, c.expr, c.from); !got.Equal(c.want) {
			t.Fatalf("Next(%s, %v) = %v, want %v", c.expr, c.from, got, c.want)
		}
	}
}

func TestNextInclusive(t *testing.T) {
	e := MustParse("0 9 * * *")
	from := utc(2024, 3, 1, 9, 0, 0)

	got, ok, err := e.NextInclusive(from)
	if err != nil || !ok {
		t.Fatalf("NextInclusive: ok=%v err=%v", ok, err)
	}
	if !got.Equal(from) {
		t.Fatalf("inclusive next = %v, want %v", got, from)
	}

	got, ok, err = e.Next(from)
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if !got.Equal(utc(2024, 3, 2, 9, 0, 0)) {
		t.Fatalf("strict next = %v", got)
	}
}

func TestNextRequiresUTC(t *testing.T) {
	e := MustParse("* * * * *")
	loc := time.FixedZone("X", 3600)
	if _, _, err := e.Next(time.Date(2024, 3, 1, 0, 0, 0, 0, loc)); err != ErrNotUTC {
		t.Fatalf("expected ErrNotUTC, got %v", err)
	}
}

func TestNextDayTokens(t *testing.T) {
	// February 2024 is a leap month; last day the 29th (Thursday).
	if got := mustNext(t, "0 0 L 2 *", utc(2024, 2, 1, 0, 0, 0)); !got.Equal(utc(2024, 2, 29, 0, 0, 0)) {
		t.Fatalf("L = %v", got)
	}
	if got := mustNext(t, "0 0 L-3 2 *", utc(2024, 2, 1, 0, 0, 0)); !got.Equal(utc(2024, 2, 26, 0, 0, 0)) {
		t.Fatalf("L-3 = %v", got)
	}
	// June 15 2024 is a Saturday; nearest weekday is Friday the 14th.
	if got := mustNext(t, "0 0 15W 6 *", utc(2024, 6, 1, 0, 0, 0)); !got.Equal(utc(2024, 6, 14, 0, 0, 0)) {
		t.Fatalf("15W = %v", got)
	}
	// September 1 2024 is a Sunday; 1W must not leave the month: Monday the 2nd.
	if got := mustNext(t, "0 0 1W 9 *", utc(2024, 8, 20, 0, 0, 0)); !got.Equal(utc(2024, 9, 2, 0, 0, 0)) {
		t.Fatalf("1W = %v", got)
	}
	// Third Friday of March 2024 is the 15th.
	if got := mustNext(t, "0 0 * 3 5#3", utc(2024, 3, 1, 0, 0, 0)); !got.Equal(utc(2024, 3, 15, 0, 0, 0)) {
		t.Fatalf("5#3 = %v", got)
	}
	// Last Friday of March 2024 is the 29th.
	if got := mustNext(t, "0 0 * 3 5L", utc(2024, 3, 1, 0, 0, 0)); !got.Equal(utc(2024, 3, 29, 0, 0, 0)) {
		t.Fatalf("5L = %v", got)
	}
}

func TestDayFieldsCombineWithAND(t *testing.T) {
	// Day 15 AND Friday: the next 15th that is a Friday after 2024-03-01
	// is 2024-03-15.
	if got := mustNext(t, "0 0 15 * 5", utc(2024, 3, 1, 0, 0, 0)); !got.Equal(utc(2024, 3, 15, 0, 0, 0)) {
		t.Fatalf("AND semantics = %v", got)
	}
	// After that the next one is 2024-11-15.
	if got := mustNext(t, "0 0 15 * 5", utc(2024, 3, 15, 0, 0, 0)); !got.Equal(utc(2024, 11, 15, 0, 0, 0)) {
		t.Fatalf("AND semantics (second) = %v", got)
	}
	// A ? placeholder leaves the other field as the only constraint.
	if got := mustNext(t, "0 0 ? * 5", utc(2024, 3, 1, 0, 0, 0)); !got.Equal(utc(2024, 3, 8, 0, 0, 0)) {
		t.Fatalf("? placeholder = %v", got)
	}
}

func TestNextUnreachable(t *testing.T) {
	e := MustParse("0 0 30 2 *")
	_, ok, err := e.Next(utc(2024, 1, 1, 0, 0, 0))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Fatal("February 30 must be unreachable")
	}
}

func TestNextInZoneDST(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 2024-03-31: 02:00-03:00 local does not exist. A 02:30 schedule must
	// advance to the next valid local instant (02:30 on April 1).
	e := MustParse("30 2 * * *")
	from := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC) // 01:00 local
	got, ok, err := e.NextInZone(from, berlin)
	if err != nil || !ok {
		t.Fatalf("NextInZone: ok=%v err=%v", ok, err)
	}
	want := time.Date(2024, 4, 1, 2, 30, 0, 0, berlin).UTC()
	if !got.Equal(want) {
		t.Fatalf("DST gap next = %v, want %v", got, want)
	}

	// An ordinary day evaluates against local wall time.
	got, ok, err = e.NextInZone(utc(2024, 6, 1, 0, 0, 0), berlin)
	if err != nil || !ok {
		t.Fatalf("NextInZone: ok=%v err=%v", ok, err)
	}
	want = time.Date(2024, 6, 1, 2, 30, 0, 0, berlin).UTC()
	if !got.Equal(want) {
		t.Fatalf("zone next = %v, want %v", got, want)
	}
}

func TestOccurrences(t *testing.T) {
	e := MustParse("0 */6 * * *")
	from := utc(2024, 3, 1, 0, 0, 0)
	to := utc(2024, 3, 2, 0, 0, 0)

	seq, err := e.Occurrences(from, to, nil)
	if err != nil {
		t.Fatalf("Occurrences: %v", err)
	}

	collect := func() []time.Time {
		var out []time.Time
		for ts := range seq {
			out = append(out, ts)
		}
		return out
	}

	got := collect()
	want := []time.Time{
		utc(2024, 3, 1, 0, 0, 0),
		utc(2024, 3, 1, 6, 0, 0),
		utc(2024, 3, 1, 12, 0, 0),
		utc(2024, 3, 1, 18, 0, 0),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("occurrence[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// Restartable: second pass yields the same sequence.
	if again := collect(); len(again) != len(got) {
		t.Fatalf("second pass yielded %d, want %d", len(again), len(got))
	}

	// Inclusive upper bound picks up the boundary occurrence.
	seq, err = e.Occurrences(from, to, &OccurrenceOptions{ToInclusive: true})
	if err != nil {
		t.Fatalf("Occurrences: %v", err)
	}
	n := 0
	for range seq {
		n++
	}
	if n != len(want)+1 {
		t.Fatalf("inclusive-to pass yielded %d, want %d", n, len(want)+1)
	}

	if _, err := e.Occurrences(to, from, nil); err == nil {
		t.Fatal("expected error for from > to")
	}
	if _, err := e.Occurrences(from.In(time.FixedZone("X", 60)), to, nil); err != ErrNotUTC {
		t.Fatalf("expected ErrNotUTC, got %v", err)
	}
}

func TestBuilder(t *testing.T) {
	cases := []struct {
		build func() (*Expression, error)
		want  string
	}{
		{func() (*Expression, error) { return NewBuilder().EveryMinute().Expression() }, "* * * * *"},
		{func() (*Expression, error) { return NewBuilder().HourlyAt(15).Expression() }, "15 * * * *"},
		{func() (*Expression, error) { return NewBuilder().DailyAt(9, 30).Expression() }, "30 9 * * *"},
		{func() (*Expression, error) { return NewBuilder().WeekdaysAt(8, 0).Expression() }, "0 8 * * 1-5"},
		{func() (*Expression, error) { return NewBuilder().WeeklyOn(time.Monday, 9, 0).Expression() }, "0 9 * * 1"},
		{func() (*Expression, error) { return NewBuilder().MonthlyOn(15, 12, 0).Expression() }, "0 12 15 * *"},
		{func() (*Expression, error) { return NewBuilder().MonthlyOnLastDay(23, 59).Expression() }, "59 23 L * *"},
	}
	for _, c := range cases {
		e, err := c.build()
		if err != nil {
			t.Fatalf("builder: %v", err)
		}
		if e.String() != c.want {
			t.Fatalf("builder canonical = %q, want %q", e.String(), c.want)
		}
	}

	if _, err := NewBuilder().DailyAt(24, 0).Expression(); err == nil {
		t.Fatal("expected hour range error")
	}
	if _, err := NewBuilder().HourlyAt(-1).Expression(); err == nil {
		t.Fatal("expected minute range error")
	}
	if _, err := NewBuilder().MonthlyOn(32, 0, 0).Expression(); err == nil {
		t.Fatal("expected day range error")
	}
	if _, err := NewBuilder().Expression(); err == nil {
		t.Fatal("expected empty-builder error")
	}
}
