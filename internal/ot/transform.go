package ot

import "fmt"

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Apply walks edit left-to-right over text, copying retained runs,
// splicing in inserts, and skipping deletes. Any text past the last
// consumed position is appended implicitly (spec §4.2, §9 "implicit
// trailing retain").
func Apply(text string, edit *Edit) (string, error) {
	t := []rune(text)
	out := make([]rune, 0, len(t)+edit.TargetLen()-edit.BaseLen())
	pos := 0

	for _, op := range edit.Ops {
		switch op.Kind {
		case KindRetain:
			if pos+op.Len > len(t) {
				return "", fmt.Errorf("%w: retain(%d) at position %d exceeds text length %d", ErrEditOutOfRange, op.Len, pos, len(t))
			}
			out = append(out, t[pos:pos+op.Len]...)
			pos += op.Len
		case KindInsert:
			out = append(out, []rune(op.Str)...)
		case KindDelete:
			if pos+op.Len > len(t) {
				return "", fmt.Errorf("%w: delete(%d) at position %d exceeds text length %d", ErrEditOutOfRange, op.Len, pos, len(t))
			}
			pos += op.Len
		}
	}
	out = append(out, t[pos:]...)
	return string(out), nil
}

// Transform reconciles a against a previously-committed concurrent edit b
// sharing a's base, returning a' such that a' can be applied after b without
// re-doing b's work. The convergence contract (spec §4.2, TP1 in §8) pairs
// it with b transformed against a under the same tie-break:
//
//	Apply(Apply(T, b), Transform(a, b)) == Apply(Apply(T, a), transformCore(b, a, true))
//
// Transform(b, a) is not that dual: it would let b win ties instead.
//
// Tie-break: when a and b both insert at the same position, a's insert goes
// first and b's is ordered after it. This matches spec §4.2's table (the
// a[i]=insert(s) row takes precedence over the b[j]=insert(s) row) and the
// executable reference implementation (original_source's
// _transform_against_operation): rebasing Y=[retain 1, insert "Y", retain 1]
// against an already-committed X=[retain 1, insert "X", retain 1] over
// T="ab" yields [retain 1, insert "Y"] (the trailing retain 2 is dropped by
// normalization), which applied to "aXb" produces "aYXb" — Y's insert lands
// before X's already-committed character.
func Transform(a, b *Edit) (*Edit, error) {
	return transformCore(a, b, false)
}

// transformCore is the shared engine behind Transform. bWins controls the
// insert/insert tie-break: when true, b's insert is emitted before a's;
// when false (Transform's behavior), a's insert goes first. The two calls
// are only consistent duals of each other when bWins is flipped between
// them — see TestPropertyConvergenceTP1 for the paired usage that actually
// exercises TP1.
func transformCore(a, b *Edit, bWins bool) (*Edit, error) {
	if a.BaseLen() != b.BaseLen() {
		return nil, fmt.Errorf("%w: a.BaseLen=%d b.BaseLen=%d", ErrEditDivergence, a.BaseLen(), b.BaseLen())
	}

	var result []Op
	ai, bi := 0, 0
	var aOp, bOp *Op

	for {
		if aOp == nil && ai < len(a.Ops) {
			cp := a.Ops[ai]
			aOp = &cp
			ai++
		}
		if bOp == nil && bi < len(b.Ops) {
			cp := b.Ops[bi]
			bOp = &cp
			bi++
		}
		if aOp == nil && bOp == nil {
			break
		}

		aIns := aOp != nil && aOp.Kind == KindInsert
		bIns := bOp != nil && bOp.Kind == KindInsert

		switch {
		case aIns && bIns && bWins:
			// Simultaneous insert, b wins: b keeps its place, a steps over it.
			result = append(result, Retain(bOp.length()))
			bOp = nil

		case aIns:
			// Simultaneous insert, a wins (Transform's default): a's insert
			// goes first; b's insert (handled by the bIns case below once
			// this loop iterates again) is stepped over afterward.
			result = append(result, Insert(aOp.Str))
			aOp = nil

		case bIns:
			// Step a over what b inserted.
			result = append(result, Retain(bOp.length()))
			bOp = nil

		case bOp == nil:
			// b exhausted; whatever is left of a passes through verbatim.
			result = append(result, *aOp)
			aOp = nil

		case aOp == nil:
			// Matching base lengths guarantee this can't happen once both
			// sides' inserts are drained, but guard against a malformed
			// input rather than panic.
			bOp = nil

		case aOp.Kind == KindRetain && bOp.Kind == KindRetain:
			m := min(aOp.Len, bOp.Len)
			result = append(result, Retain(m))
			aOp.Len -= m
			bOp.Len -= m

		case aOp.Kind == KindRetain && bOp.Kind == KindDelete:
			m := min(aOp.Len, bOp.Len)
			// b already removed what a would have retained; emit nothing.
			aOp.Len -= m
			bOp.Len -= m

		case aOp.Kind == KindDelete && bOp.Kind == KindRetain:
			m := min(aOp.Len, bOp.Len)
			result = append(result, Delete(m))
			aOp.Len -= m
			bOp.Len -= m

		case aOp.Kind == KindDelete && bOp.Kind == KindDelete:
			m := min(aOp.Len, bOp.Len)
			// double delete collapses; emit nothing.
			aOp.Len -= m
			bOp.Len -= m
		}

		if aOp != nil && aOp.Kind != KindInsert && aOp.Len == 0 {
			aOp = nil
		}
		if bOp != nil && bOp.Kind != KindInsert && bOp.Len == 0 {
			bOp = nil
		}
	}

	return NewEdit(result)
}

// Rebase transforms edit against each historical edit in order, so the
// result's base length equals the document state after the last entry of
// tail has been applied. tail is typically store.Tail(docID, clientVersion).
func Rebase(edit *Edit, tail []*Edit) (*Edit, error) {
	cur := edit
	for _, h := range tail {
		t, err := Transform(cur, h)
		if err != nil {
			return nil, err
		}
		cur = t
	}
	return cur, nil
}

// Compose merges a followed by b into a single edit c such that
// Apply(Apply(T, a), b) == Apply(T, c). Not on the commit hot path; used for
// optional history compaction.
func Compose(a, b *Edit) (*Edit, error) {
	if a.TargetLen() != b.BaseLen() {
		return nil, fmt.Errorf("%w: a.TargetLen=%d b.BaseLen=%d", ErrEditDivergence, a.TargetLen(), b.BaseLen())
	}

	var result []Op
	ai, bi := 0, 0
	var aOp, bOp *Op

	for {
		if aOp == nil && ai < len(a.Ops) {
			cp := a.Ops[ai]
			aOp = &cp
			ai++
		}
		if bOp == nil && bi < len(b.Ops) {
			cp := b.Ops[bi]
			bOp = &cp
			bi++
		}
		if aOp == nil && bOp == nil {
			break
		}

		switch {
		case aOp != nil && aOp.Kind == KindDelete:
			// a's delete carries straight through regardless of b.
			result = append(result, *aOp)
			aOp = nil

		case bOp != nil && bOp.Kind == KindInsert:
			// b's insert carries straight through regardless of a.
			result = append(result, *bOp)
			bOp = nil

		case bOp == nil:
			result = append(result, *aOp)
			aOp = nil

		case aOp == nil:
			result = append(result, *bOp)
			bOp = nil

		case aOp.Kind == KindRetain && bOp.Kind == KindRetain:
			m := min(aOp.Len, bOp.Len)
			result = append(result, Retain(m))
			aOp.Len -= m
			bOp.Len -= m

		case aOp.Kind == KindRetain && bOp.Kind == KindDelete:
			m := min(aOp.Len, bOp.Len)
			result = append(result, Delete(m))
			aOp.Len -= m
			bOp.Len -= m

		case aOp.Kind == KindInsert && bOp.Kind == KindRetain:
			s := []rune(aOp.Str)
			m := min(len(s), bOp.Len)
			result = append(result, Insert(string(s[:m])))
			bOp.Len -= m
			if m < len(s) {
				aOp.Str = string(s[m:])
			} else {
				aOp = nil
			}

		case aOp.Kind == KindInsert && bOp.Kind == KindDelete:
			// b deletes (part of) what a just inserted; they cancel.
			s := []rune(aOp.Str)
			m := min(len(s), bOp.Len)
			bOp.Len -= m
			if m < len(s) {
				aOp.Str = string(s[m:])
			} else {
				aOp = nil
			}
		}

		if aOp != nil && aOp.Kind != KindInsert && aOp.Len == 0 {
			aOp = nil
		}
		if bOp != nil && bOp.Kind != KindInsert && bOp.Len == 0 {
			bOp = nil
		}
	}

	return NewEdit(result)
}

// Invert produces the edit that undoes edit when applied to the text it
// produced, given preText — the text edit was authored against. Maps
// retain→retain, insert(s)→delete(len(s)), delete(n)→insert(preText's
// deleted run). Used for undo and audit, not the commit hot path.
func Invert(edit *Edit, preText string) (*Edit, error) {
	t := []rune(preText)
	pos := 0
	var raw []Op

	for _, op := range edit.Ops {
		switch op.Kind {
		case KindRetain:
			raw = append(raw, Retain(op.Len))
			pos += op.Len
		case KindInsert:
			raw = append(raw, Delete(len([]rune(op.Str))))
		case KindDelete:
			if pos+op.Len > len(t) {
				return nil, fmt.Errorf("%w: invert delete(%d) at position %d exceeds source text length %d", ErrEditOutOfRange, op.Len, pos, len(t))
			}
			raw = append(raw, Insert(string(t[pos:pos+op.Len])))
			pos += op.Len
		}
	}

	return NewEdit(raw)
}
