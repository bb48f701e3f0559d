// Package schedule decides whether the engine may process files at a given
// instant and how long it should wait for the next permitted window.
//
// Windows are time-of-day ranges that may wrap past midnight, combined with a
// per-weekday enable set. The functions are pure; callers supply "now".
package schedule
