package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConjunctionComponents(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"and", "Tax Relief Act of 1990 and Budget Act of 1990", []string{"tax relief act of 1990", "budget act of 1990"}},
		{"ampersand", "Highway Revenue Act & Airport Development Act", []string{"highway revenue act", "airport development act"}},
		{"semicolon", "Excise Tax Reduction Act of 1965; Social Security Amendments of 1965",
			[]string{"excise tax reduction act of 1965", "social security amendments of 1965"}},
		{"short components dropped", "Revenue and Expenditure Control Act of 1968", []string{"expenditure control act of 1968"}},
		{"no conjunction", "Economic Recovery Tax Act of 1981", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConjunctionComponents(tt.in, 3))
		})
	}
}

func TestParentheticalVariants(t *testing.T) {
	got := ParentheticalVariants("Omnibus Budget Reconciliation Act of 1993 (OBRA 93)", 2)
	assert.Equal(t, []string{"omnibus budget reconciliation act of 1993", "obra 93"}, got)

	assert.Nil(t, ParentheticalVariants("Revenue Act of 1978", 2))
}

func TestIdentifiers(t *testing.T) {
	text := "enacted as public law 101-508 (h.r. 5835); see also p.l. 99-514 and s. 1200. the u.s. 1990 figures"
	assert.Equal(t, []string{"h.r. 5835", "public law 101-508", "public law 99-514", "s. 1200"}, Identifiers(text))
}

func TestCanonicalIdentifier(t *testing.T) {
	id, parsed := CanonicalIdentifier("Pub. L. No. 97–248")
	assert.Equal(t, "public law 97-248", id)
	assert.True(t, parsed)

	id, parsed = CanonicalIdentifier("H.R. 4242")
	assert.Equal(t, "h.r. 4242", id)
	assert.True(t, parsed)

	id, parsed = CanonicalIdentifier("ERTA")
	assert.Equal(t, "erta", id)
	assert.False(t, parsed)
}
