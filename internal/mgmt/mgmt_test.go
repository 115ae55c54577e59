package mgmt

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	"reminderd/pkg/logx"
)

var testNow = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	store := storage.NewMemory()
	svc := New(Config{
		MissedTolerance: time.Minute,
		Now:             func() time.Time { return testNow },
	}, store, logx.Nop())
	return svc, store
}

func seed(t *testing.T, store storage.Store, owner, name string, due time.Time, prio reminder.Priority) {
	t.Helper()
	row := &reminder.Row{
		OwnerID:  owner,
		Name:     name,
		StartAt:  due.Add(-24 * time.Hour),
		Period:   time.Hour,
		NextDue:  &due,
		Priority: prio,
	}
	if _, err := store.Upsert(context.Background(), row); err != nil {
		t.Fatalf("seed %s/%s: %v", owner, name, err)
	}
}

func TestListAllPaginationRoundTrip(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	const total = 23
	for i := 0; i < total; i++ {
		seed(t, store, fmt.Sprintf("owner-%02d", i%5), fmt.Sprintf("rem-%02d", i), testNow.Add(time.Hour), "")
	}

	seen := map[string]bool{}
	token := ""
	pages := 0
	for {
		page, err := svc.ListAll(ctx, 7, token)
		if err != nil {
			t.Fatalf("page %d: %v", pages, err)
		}
		pages++
		for _, row := range page.Rows {
			key := row.Key()
			if seen[key] {
				t.Fatalf("row %s returned twice", key)
			}
			seen[key] = true
		}
		if page.NextToken == "" {
			break
		}
		if len(page.Rows) != 7 {
			t.Fatalf("non-final page carries %d rows, want 7", len(page.Rows))
		}
		token = page.NextToken
	}
	if len(seen) != total {
		t.Fatalf("saw %d rows across %d pages, want %d", len(seen), pages, total)
	}
	if pages != 4 {
		t.Fatalf("pages = %d, want 4", pages)
	}
}

func TestListRejectsForgedToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var verr *ValidationError
	for _, token := range []string{"%%%", "bm90IGpzb24", encodeToken("a", "b") + "x"} {
		if _, err := svc.ListAll(ctx, 10, token); !errors.As(err, &verr) {
			t.Fatalf("token %q: err = %v, want ValidationError", token, err)
		}
	}
}

func TestListStatusFilter(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seed(t, store, "o", "missed", testNow.Add(-time.Hour), "")
	seed(t, store, "o", "overdue", testNow.Add(-10*time.Second), "")
	seed(t, store, "o", "upcoming", testNow.Add(time.Hour), "")
	// Unscheduled rows classify by StartAt.
	if _, err := store.Upsert(ctx, &reminder.Row{OwnerID: "o", Name: "unscheduled", StartAt: testNow.Add(-3 * time.Hour), Period: time.Hour}); err != nil {
		t.Fatalf("seed unscheduled: %v", err)
	}

	names := func(f Filter) []string {
		page, err := svc.List(ctx, f, 10, "")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		var out []string
		for _, r := range page.Rows {
			out = append(out, r.Name)
		}
		return out
	}

	if got := names(Filter{Status: StatusMissed}); len(got) != 2 {
		t.Fatalf("missed = %v", got)
	}
	// Missed rows are overdue too.
	if got := names(Filter{Status: StatusOverdue}); len(got) != 3 {
		t.Fatalf("overdue = %v", got)
	}
	if got := names(Filter{Status: StatusUpcoming}); len(got) != 1 || got[0] != "upcoming" {
		t.Fatalf("upcoming = %v", got)
	}
	if got := names(Filter{Status: StatusOverdue | StatusUpcoming}); len(got) != 4 {
		t.Fatalf("combined = %v", got)
	}
	// A stricter threshold drops the barely-late row.
	if got := names(Filter{Status: StatusOverdue, OverdueBy: 30 * time.Minute}); len(got) != 2 {
		t.Fatalf("overdue by 30m = %v", got)
	}
	if got := names(Filter{}); len(got) != 4 {
		t.Fatalf("all = %v", got)
	}

	var verr *ValidationError
	if _, err := svc.List(ctx, Filter{Status: StatusOverdue, OverdueBy: -time.Second}, 10, ""); !errors.As(err, &verr) {
		t.Fatalf("negative threshold err = %v, want ValidationError", err)
	}
}

func TestListOverdueThreshold(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seed(t, store, "o", "old", testNow.Add(-2*time.Hour), "")
	seed(t, store, "o", "recent", testNow.Add(-5*time.Minute), "")

	page, err := svc.ListOverdue(ctx, time.Hour, 10, "")
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(page.Rows) != 1 || page.Rows[0].Name != "old" {
		t.Fatalf("rows = %+v", page.Rows)
	}

	var verr *ValidationError
	if _, err := svc.ListOverdue(ctx, -time.Second, 10, ""); !errors.As(err, &verr) {
		t.Fatalf("negative overdueBy err = %v, want ValidationError", err)
	}
}

func TestListKindAndActionFilter(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seed(t, store, "o", "interval", testNow.Add(time.Hour), "")
	due := testNow.Add(time.Hour)
	cron := &reminder.Row{
		OwnerID:        "o",
		Name:           "nightly",
		StartAt:        testNow,
		CronExpression: "0 3 * * *",
		NextDue:        &due,
		MissedAction:   reminder.MissedNotify,
	}
	if _, err := store.Upsert(ctx, cron); err != nil {
		t.Fatalf("seed cron: %v", err)
	}

	page, err := svc.List(ctx, Filter{Kind: KindCron}, 10, "")
	if err != nil {
		t.Fatalf("list cron: %v", err)
	}
	if len(page.Rows) != 1 || page.Rows[0].Name != "nightly" {
		t.Fatalf("cron rows = %+v", page.Rows)
	}

	page, err = svc.List(ctx, Filter{Kind: KindInterval}, 10, "")
	if err != nil {
		t.Fatalf("list interval: %v", err)
	}
	if len(page.Rows) != 1 || page.Rows[0].Name != "interval" {
		t.Fatalf("interval rows = %+v", page.Rows)
	}

	page, err = svc.List(ctx, Filter{Action: reminder.MissedNotify}, 10, "")
	if err != nil {
		t.Fatalf("list action: %v", err)
	}
	if len(page.Rows) != 1 || page.Rows[0].Name != "nightly" {
		t.Fatalf("action rows = %+v", page.Rows)
	}
}

func TestListOwnerAndPrefixFilter(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seed(t, store, "alpha", "sync-a", testNow.Add(time.Hour), "")
	seed(t, store, "alpha", "purge", testNow.Add(time.Hour), "")
	seed(t, store, "beta", "sync-b", testNow.Add(time.Hour), reminder.PriorityCritical)

	page, err := svc.List(ctx, Filter{Owner: "alpha", NamePrefix: "sync"}, 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Rows) != 1 || page.Rows[0].Name != "sync-a" {
		t.Fatalf("rows = %+v", page.Rows)
	}

	page, err = svc.List(ctx, Filter{Priority: reminder.PriorityCritical}, 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Rows) != 1 || page.Rows[0].OwnerID != "beta" {
		t.Fatalf("rows = %+v", page.Rows)
	}
}

func TestListDueInRange(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seed(t, store, "o", "before", testNow.Add(-time.Hour), "")
	seed(t, store, "o", "inside", testNow.Add(30*time.Minute), "")
	seed(t, store, "o", "at-end", testNow.Add(time.Hour), "")

	// The window is inclusive on both ends.
	page, err := svc.ListDueInRange(ctx, testNow, testNow.Add(time.Hour), 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Rows) != 2 || page.Rows[0].Name != "at-end" || page.Rows[1].Name != "inside" {
		t.Fatalf("rows = %+v", page.Rows)
	}

	var verr *ValidationError
	if _, err := svc.ListDueInRange(ctx, testNow.Add(time.Hour), testNow, 10, ""); !errors.As(err, &verr) {
		t.Fatalf("inverted range err = %v, want ValidationError", err)
	}
	if _, err := svc.ListDueInRange(ctx, testNow.In(time.FixedZone("X", 3600)), testNow.Add(2*time.Hour), 10, ""); !errors.As(err, &verr) {
		t.Fatalf("non-UTC bound err = %v, want ValidationError", err)
	}
}

func TestUpcoming(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seed(t, store, "o", "second", testNow.Add(20*time.Minute), "")
	seed(t, store, "o", "first", testNow.Add(10*time.Minute), "")
	seed(t, store, "o", "past", testNow.Add(-time.Minute), "")
	seed(t, store, "o", "far", testNow.Add(48*time.Hour), "")
	// Higher priority sorts ahead of an earlier due time.
	seed(t, store, "o", "urgent", testNow.Add(30*time.Minute), reminder.PriorityCritical)

	rows, err := svc.Upcoming(ctx, time.Hour, 10)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(rows) != 3 || rows[0].Name != "urgent" || rows[1].Name != "first" || rows[2].Name != "second" {
		t.Fatalf("rows = %+v", rows)
	}

	rows, err = svc.Upcoming(ctx, time.Hour, 1)
	if err != nil {
		t.Fatalf("upcoming limit: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "urgent" {
		t.Fatalf("limited rows = %+v", rows)
	}

	var verr *ValidationError
	if _, err := svc.Upcoming(ctx, -time.Second, 10); !errors.As(err, &verr) {
		t.Fatalf("negative horizon err = %v, want ValidationError", err)
	}
}

func TestIterateFollowsTokens(t *testing.T) {
	svc, store := newTestService(t)

	const total = 12
	for i := 0; i < total; i++ {
		seed(t, store, "o", fmt.Sprintf("r-%02d", i), testNow.Add(time.Hour), "")
	}

	count := 0
	for row, err := range svc.Iterate(context.Background(), Filter{}, 5) {
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		if row.OwnerID != "o" {
			t.Fatalf("unexpected row %+v", row)
		}
		count++
	}
	if count != total {
		t.Fatalf("iterated %d rows, want %d", count, total)
	}
}

func TestSetPriorityAndAction(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seed(t, store, "o", "r", testNow.Add(time.Hour), "")

	if err := svc.SetPriority(ctx, "o", "r", reminder.PriorityCritical); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if err := svc.SetAction(ctx, "o", "r", reminder.MissedNotify); err != nil {
		t.Fatalf("set action: %v", err)
	}
	row, _ := store.Read(ctx, "o", "r")
	if row.Priority != reminder.PriorityCritical || row.MissedAction != reminder.MissedNotify {
		t.Fatalf("row = %+v", row)
	}

	var verr *ValidationError
	if err := svc.SetPriority(ctx, "o", "r", "urgent"); !errors.As(err, &verr) {
		t.Fatalf("bad priority err = %v", err)
	}
	if err := svc.SetAction(ctx, "o", "missing", reminder.MissedSkip); !errors.Is(err, ErrReminderNotFound) {
		t.Fatalf("missing row err = %v", err)
	}
}

func TestRepairAdvancesOnlyOverdue(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seed(t, store, "o", "stale", testNow.Add(-2*time.Hour), "")
	seed(t, store, "o", "fresh", testNow.Add(time.Hour), "")
	freshBefore, _ := store.Read(ctx, "o", "fresh")

	if err := svc.Repair(ctx, "o", "stale"); err != nil {
		t.Fatalf("repair: %v", err)
	}
	stale, _ := store.Read(ctx, "o", "stale")
	if stale.NextDue == nil || !stale.NextDue.After(testNow) {
		t.Fatalf("stale next due = %v, want after %v", stale.NextDue, testNow)
	}

	// A healthy row is left alone, not rewritten.
	if err := svc.Repair(ctx, "o", "fresh"); err != nil {
		t.Fatalf("repair fresh: %v", err)
	}
	fresh, _ := store.Read(ctx, "o", "fresh")
	if !fresh.NextDue.Equal(*freshBefore.NextDue) {
		t.Fatalf("fresh due moved: %v -> %v", freshBefore.NextDue, fresh.NextDue)
	}
	if fresh.Version != freshBefore.Version {
		t.Fatalf("fresh version churned: %s -> %s", freshBefore.Version, fresh.Version)
	}

	if err := svc.Repair(ctx, "o", "missing"); !errors.Is(err, ErrReminderNotFound) {
		t.Fatalf("missing row err = %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seed(t, store, "o", "r", testNow.Add(time.Hour), "")

	if err := svc.Delete(ctx, "o", "r"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if row, _ := store.Read(ctx, "o", "r"); row != nil {
		t.Fatalf("row survived delete: %+v", row)
	}
	if err := svc.Delete(ctx, "o", "r"); !errors.Is(err, ErrReminderNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestCountAll(t *testing.T) {
	svc, store := newTestService(t)
	for i := 0; i < 3; i++ {
		seed(t, store, "o", fmt.Sprintf("r-%d", i), testNow, "")
	}
	n, err := svc.CountAll(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("count = %d, %v; want 3, nil", n, err)
	}
}
