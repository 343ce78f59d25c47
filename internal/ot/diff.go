package ot

// Diff builds the minimal edit that turns old into next, per spec §4.1:
// match a common prefix, then (unlike the textbook prefix-only construction)
// also match a common suffix of what remains, before emitting a single
// delete/insert pair for the differing middle. This is still "minimal,
// non-optimal" — it does not diff the middle itself — but it produces
// smaller edits than prefix-only matching whenever the end of the strings
// also agrees, which is common for single-cursor incremental typing.
//
// All lengths are in runes, matching Edit/Op throughout this package.
func Diff(old, next string) (*Edit, error) {
	o := []rune(old)
	n := []rune(next)

	prefix := 0
	for prefix < len(o) && prefix < len(n) && o[prefix] == n[prefix] {
		prefix++
	}

	// Match a common suffix over what's left after the prefix, without
	// letting the suffix match re-consume prefix-matched runes.
	suffix := 0
	for suffix < len(o)-prefix && suffix < len(n)-prefix &&
		o[len(o)-1-suffix] == n[len(n)-1-suffix] {
		suffix++
	}

	var raw []Op
	if prefix > 0 {
		raw = append(raw, Retain(prefix))
	}

	delLen := len(o) - prefix - suffix
	if delLen > 0 {
		raw = append(raw, Delete(delLen))
	}

	insStr := string(n[prefix : len(n)-suffix])
	if insStr != "" {
		raw = append(raw, Insert(insStr))
	}

	if suffix > 0 {
		raw = append(raw, Retain(suffix))
	}

	return NewEdit(raw)
}
