package ot

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomText returns a random string of the given rune length drawn from a
// small alphabet, so that concurrent random edits frequently collide.
func randomText(r *rand.Rand, n int) string {
	const alphabet = "abcde "
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[r.Intn(len(alphabet))])
	}
	return b.String()
}

// randomEdit builds a random, valid Edit whose base length is exactly
// baseLen, mixing retains, inserts and deletes.
func randomEdit(r *rand.Rand, baseLen int) *Edit {
	var raw []Op
	remaining := baseLen
	for remaining > 0 {
		switch r.Intn(3) {
		case 0:
			n := 1 + r.Intn(remaining)
			raw = append(raw, Retain(n))
			remaining -= n
		case 1:
			n := 1 + r.Intn(remaining)
			raw = append(raw, Delete(n))
			remaining -= n
		case 2:
			raw = append(raw, Insert(randomText(r, 1+r.Intn(3))))
		}
	}
	if r.Intn(2) == 0 {
		raw = append(raw, Insert(randomText(r, 1+r.Intn(3))))
	}

	e, err := NewEdit(raw)
	if err != nil {
		panic(err) // construction above only ever emits valid ops
	}
	return e
}

func TestPropertyApplySoundness(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		baseLen := r.Intn(30)
		text := randomText(r, baseLen)
		edit := randomEdit(r, baseLen)

		out, err := Apply(text, edit)
		require.NoError(t, err)
		// NewEdit drops a trailing retain; Apply copies that unconsumed tail
		// through implicitly, so it adds to the op tally's target length.
		implicitTail := baseLen - edit.BaseLen()
		assert.Equal(t, edit.TargetLen()+implicitTail, len([]rune(out)), "case %d", i)
	}
}

// TestPropertyConvergenceTP1 checks TP1 (Ellis & Gibbs convergence) using the
// paired dual of transformCore: aPrime is a transformed with a winning ties,
// bPrime is b transformed with that same side (a) winning. Calling the
// public Transform(a,b) and Transform(b,a) independently does NOT test TP1
// correctly — both calls would have their own first argument win ties, which
// are not consistent duals of each other.
func TestPropertyConvergenceTP1(t *testing.T) {
	r := rand.New(rand.NewSource(2))

	for i := 0; i < 300; i++ {
		baseLen := r.Intn(20)
		text := randomText(r, baseLen)
		a := randomEdit(r, baseLen)
		b := randomEdit(r, baseLen)

		aPrime, err := transformCore(a, b, false) // a wins ties
		require.NoError(t, err)
		bPrime, err := transformCore(b, a, true) // a (second arg here) still wins
		require.NoError(t, err)

		left, err := Apply(text, b)
		require.NoError(t, err)
		left, err = Apply(left, aPrime)
		require.NoError(t, err)

		right, err := Apply(text, a)
		require.NoError(t, err)
		right, err = Apply(right, bPrime)
		require.NoError(t, err)

		assert.Equal(t, left, right, "convergence failed on case %d (text=%q a=%+v b=%+v)", i, text, a.Ops, b.Ops)
	}
}

func TestIdentityTransform(t *testing.T) {
	empty, err := NewEdit(nil)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		baseLen := r.Intn(15)
		a := randomEdit(r, baseLen)

		emptyBase, err := NewEdit([]Op{Retain(baseLen)})
		require.NoError(t, err)
		_ = emptyBase // retains normalize away; kept for documentation of intent

		aPrime, err := Transform(a, empty)
		require.NoError(t, err)
		assert.Equal(t, a.Ops, aPrime.Ops)

		emptyPrime, err := Transform(empty, a)
		require.NoError(t, err)
		assert.Empty(t, emptyPrime.Ops)
	}
}

func TestPropertyComposeSoundness(t *testing.T) {
	r := rand.New(rand.NewSource(4))

	for i := 0; i < 200; i++ {
		baseLen := r.Intn(20)
		text := randomText(r, baseLen)
		a := randomEdit(r, baseLen)

		mid, err := Apply(text, a)
		require.NoError(t, err)
		b := randomEdit(r, len([]rune(mid)))

		c, err := Compose(a, b)
		require.NoError(t, err)

		viaCompose, err := Apply(text, c)
		require.NoError(t, err)

		viaSequential, err := Apply(mid, b)
		require.NoError(t, err)

		assert.Equal(t, viaSequential, viaCompose, "case %d", i)
	}
}

func TestPropertyInvertRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(5))

	for i := 0; i < 200; i++ {
		baseLen := r.Intn(20)
		text := randomText(r, baseLen)
		edit := randomEdit(r, baseLen)

		applied, err := Apply(text, edit)
		require.NoError(t, err)

		inv, err := Invert(edit, text)
		require.NoError(t, err)

		back, err := Apply(applied, inv)
		require.NoError(t, err)

		assert.Equal(t, text, back, "case %d", i)
	}
}

func TestTransformRejectsDivergentBaseLengths(t *testing.T) {
	// A lone retain normalizes away, so each edit ends in an insert to keep
	// its retain (and its base length) explicit.
	a, err := NewEdit([]Op{Retain(3), Insert("x")})
	require.NoError(t, err)
	b, err := NewEdit([]Op{Retain(5), Insert("y")})
	require.NoError(t, err)

	_, err = Transform(a, b)
	assert.ErrorIs(t, err, ErrEditDivergence)
}

func TestApplyOutOfRange(t *testing.T) {
	// The trailing insert keeps retain(10) from being normalized away.
	e, err := NewEdit([]Op{Retain(10), Insert("!")})
	require.NoError(t, err)

	_, err = Apply("short", e)
	assert.ErrorIs(t, err, ErrEditOutOfRange)
}

// --- Concrete end-to-end scenarios from the design spec (§8) ---

func TestScenarioSingleInsert(t *testing.T) {
	e, err := NewEdit([]Op{Retain(5), Insert(" world")})
	require.NoError(t, err)

	out, err := Apply("hello", e)
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestScenarioConcurrentDisjointInserts(t *testing.T) {
	// T="ab", v=0. X sends [insert "X", retain 2] -> v=1 "Xab".
	x, err := NewEdit([]Op{Insert("X"), Retain(2)})
	require.NoError(t, err)
	xResult, err := Apply("ab", x)
	require.NoError(t, err)
	require.Equal(t, "Xab", xResult)

	// Y at v=0 sends [retain 2, insert "Y"], rebased against X.
	y, err := NewEdit([]Op{Retain(2), Insert("Y")})
	require.NoError(t, err)

	yPrime, err := Rebase(y, []*Edit{x})
	require.NoError(t, err)

	yResult, err := Apply(xResult, yPrime)
	require.NoError(t, err)
	assert.Equal(t, "XabY", yResult)
}

func TestScenarioConcurrentOverlappingInsertsTieBreak(t *testing.T) {
	// T="ab", v=0. X: [retain 1, insert "X", retain 1] -> v=1 "aXb".
	x, err := NewEdit([]Op{Retain(1), Insert("X"), Retain(1)})
	require.NoError(t, err)
	xResult, err := Apply("ab", x)
	require.NoError(t, err)
	require.Equal(t, "aXb", xResult)

	// Y at v=0: [retain 1, insert "Y", retain 1], rebased against X. Y wins
	// the insert/insert tie (spec §4.2's table and original_source's
	// _transform_against_operation both place the rebased side's insert
	// before the already-committed one), landing Y ahead of X.
	y, err := NewEdit([]Op{Retain(1), Insert("Y"), Retain(1)})
	require.NoError(t, err)

	yPrime, err := Rebase(y, []*Edit{x})
	require.NoError(t, err)

	yResult, err := Apply(xResult, yPrime)
	require.NoError(t, err)
	assert.Equal(t, "aYXb", yResult)
}

func TestScenarioInsertVsDeleteOverlap(t *testing.T) {
	// T="abcd", v=0. X: [retain 1, delete 2, retain 1] -> v=1 "ad".
	x, err := NewEdit([]Op{Retain(1), Delete(2), Retain(1)})
	require.NoError(t, err)
	xResult, err := Apply("abcd", x)
	require.NoError(t, err)
	require.Equal(t, "ad", xResult)

	// Y at v=0: [retain 2, insert "Z", retain 2], rebased against X.
	y, err := NewEdit([]Op{Retain(2), Insert("Z"), Retain(2)})
	require.NoError(t, err)

	yPrime, err := Rebase(y, []*Edit{x})
	require.NoError(t, err)

	yResult, err := Apply(xResult, yPrime)
	require.NoError(t, err)
	assert.Equal(t, "aZd", yResult)
}
