package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorityOrder(t *testing.T) {
	all := All()
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i].Outranks(all[i-1]), "%s should outrank %s", all[i], all[i-1])
		assert.False(t, all[i-1].Outranks(all[i]))
	}
	assert.Equal(t, 0, Role("intern").Rank())
}

func TestReviewerAndOverride(t *testing.T) {
	cases := []struct {
		role      Role
		reviewer  bool
		override  bool
		canDecide bool
	}{
		{Employee, false, false, false},
		{Specialist, true, false, true},
		{Manager, false, false, false},
		{DeputyMD, true, false, true},
		{MD, true, false, true},
		{Admin, false, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.role.String(), func(t *testing.T) {
			assert.Equal(t, tc.reviewer, IsReviewer(tc.role))
			assert.Equal(t, tc.override, IsAdminOverride(tc.role))
			assert.Equal(t, tc.canDecide, CanDecide(tc.role))
		})
	}
}

func TestParse(t *testing.T) {
	r, err := Parse("  Deputy_MD ")
	require.NoError(t, err)
	assert.Equal(t, DeputyMD, r)

	_, err = Parse("ceo")
	assert.Error(t, err)
}
