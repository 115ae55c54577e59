// Package cronexpr parses and evaluates cron expressions.
//
// Expressions use 5 fields (minute hour day-of-month month day-of-week) or
// 6 fields with a leading seconds field:
//
//	Field        | Allowed values  | Special characters
//	------------ | --------------- | ------------------
//	Seconds      | 0-59            | * / , -
//	Minutes      | 0-59            | * / , -
//	Hours        | 0-23            | * / , -
//	Day of month | 1-31            | * / , - ? L W
//	Month        | 1-12 or JAN-DEC | * / , -
//	Day of week  | 0-7 or SUN-SAT  | * / , - ? L #
//
// Month and day-of-week names are case insensitive. Weekday 7 is an alias
// for 0 (Sunday) and canonicalizes to 0. Ranges may be reversed (e.g.
// "FRI-MON"), wrapping around the end of the field's domain.
//
// Day-of-month supports "L" (last day of the month), "L-n" (n days before
// the last day) and "nW" (nearest weekday to day n, never leaving the
// month). Day-of-week supports "d#n" (the n-th occurrence of weekday d)
// and "dL" (the last occurrence of weekday d). When both the day-of-month
// and the day-of-week field are restrictive, a day must satisfy both
// (AND), not either.
//
// Macros: @yearly (@annually), @monthly, @weekly, @daily (@midnight),
// @hourly, @every_minute, @every_second.
//
// Two expressions are equal when their canonical texts are equal.
// Canonicalization trims whitespace, uppercases names, sorts and
// deduplicates list items and rewrites weekday 7 to 0; it does not
// normalize across spellings, so "0 9 * * MON" and "0 9 * * 1" describe
// the same schedule but remain distinct expressions.
package cronexpr
