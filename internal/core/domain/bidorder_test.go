package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func sameSeniority() Seniority {
	return Seniority{
		CumulativeBUDate: date(2010, 3, 1),
		BUDate:           date(2011, 3, 1),
		EODDate:          date(2009, 6, 15),
		SCDDate:          date(2009, 6, 15),
	}
}

func bidder(id int64, ini string, sen Seniority) User {
	return User{ID: id, Initials: NewInitials(ini), Senior: sen}
}

func TestCompareSeniorityTiers(t *testing.T) {
	base := sameSeniority()

	tests := []struct {
		name string
		a, b Seniority
		want int // sign only
	}{
		{
			name: "earlier cumulative BU date wins",
			a:    Seniority{CumulativeBUDate: date(2005, 1, 1), BUDate: date(2012, 1, 1), EODDate: date(2012, 1, 1), SCDDate: date(2012, 1, 1)},
			b:    base,
			want: -1,
		},
		{
			name: "BU date breaks cumulative tie",
			a:    Seniority{CumulativeBUDate: base.CumulativeBUDate, BUDate: date(2012, 1, 1), EODDate: base.EODDate, SCDDate: base.SCDDate},
			b:    base,
			want: 1,
		},
		{
			name: "EOD date breaks BU tie",
			a:    Seniority{CumulativeBUDate: base.CumulativeBUDate, BUDate: base.BUDate, EODDate: date(2008, 1, 1), SCDDate: base.SCDDate},
			b:    base,
			want: -1,
		},
		{
			name: "SCD date breaks EOD tie",
			a:    Seniority{CumulativeBUDate: base.CumulativeBUDate, BUDate: base.BUDate, EODDate: base.EODDate, SCDDate: date(2010, 1, 1)},
			b:    base,
			want: 1,
		},
		{
			name: "lowest lottery wins when all dates tie",
			a:    Seniority{CumulativeBUDate: base.CumulativeBUDate, BUDate: base.BUDate, EODDate: base.EODDate, SCDDate: base.SCDDate, Lottery: 3},
			b:    Seniority{CumulativeBUDate: base.CumulativeBUDate, BUDate: base.BUDate, EODDate: base.EODDate, SCDDate: base.SCDDate, Lottery: 7},
			want: -1,
		},
		{
			name: "assigned lottery beats unassigned",
			a:    Seniority{CumulativeBUDate: base.CumulativeBUDate, BUDate: base.BUDate, EODDate: base.EODDate, SCDDate: base.SCDDate, Lottery: 99},
			b:    base,
			want: -1,
		},
		{
			name: "full tie is zero",
			a:    base,
			b:    base,
			want: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CompareSeniority(tc.a, tc.b)
			switch tc.want {
			case 0:
				require.Zero(t, got)
			case -1:
				require.Negative(t, got)
			default:
				require.Positive(t, got)
			}
			// Ordering must be antisymmetric.
			require.Equal(t, sign(got), -sign(CompareSeniority(tc.b, tc.a)))
		})
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func TestComputeBidOrder(t *testing.T) {
	senior := Seniority{CumulativeBUDate: date(2001, 5, 1), BUDate: date(2001, 5, 1), EODDate: date(2001, 5, 1), SCDDate: date(2001, 5, 1)}
	junior := Seniority{CumulativeBUDate: date(2015, 5, 1), BUDate: date(2015, 5, 1), EODDate: date(2015, 5, 1), SCDDate: date(2015, 5, 1)}

	positions, err := ComputeBidOrder([]User{
		bidder(2, "bb", junior),
		bidder(1, "aa", senior),
	})
	require.NoError(t, err)
	require.Len(t, positions, 2)
	require.Equal(t, int64(1), positions[0].UserID)
	require.Equal(t, 1, positions[0].Position)
	require.Equal(t, Initials("AA"), positions[0].Initials)
	require.Equal(t, int64(2), positions[1].UserID)
	require.Equal(t, 2, positions[1].Position)
}

func TestComputeBidOrderFiltersExcluded(t *testing.T) {
	senior := Seniority{CumulativeBUDate: date(2001, 5, 1), BUDate: date(2001, 5, 1), EODDate: date(2001, 5, 1), SCDDate: date(2001, 5, 1)}
	junior := Seniority{CumulativeBUDate: date(2015, 5, 1), BUDate: date(2015, 5, 1), EODDate: date(2015, 5, 1), SCDDate: date(2015, 5, 1)}

	excluded := bidder(1, "aa", senior)
	excluded.ExcludedFromBidding = true

	positions, err := ComputeBidOrder([]User{excluded, bidder(2, "bb", junior)})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, int64(2), positions[0].UserID)
	require.Equal(t, 1, positions[0].Position)
}

func TestComputeBidOrderUnresolvedTieBlocks(t *testing.T) {
	_, err := ComputeBidOrder([]User{
		bidder(1, "aa", sameSeniority()),
		bidder(2, "bb", sameSeniority()),
	})
	require.True(t, IsRule(err, RuleSeniorityConflict), "got %v", err)

	de, ok := AsError(err)
	require.True(t, ok)
	require.Contains(t, []string{"AA", "BB"}, de.Context["user1_initials"])
	require.Contains(t, []string{"AA", "BB"}, de.Context["user2_initials"])
}

func TestComputeBidOrderEmpty(t *testing.T) {
	positions, err := ComputeBidOrder(nil)
	require.NoError(t, err)
	require.Empty(t, positions)
}
