package consensus

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestMajorityValueProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Values drawn from a small domain so duplicates actually occur.
	genValues := gen.SliceOfN(7, gen.IntRange(0, 3).Map(func(n int) string {
		return strconv.Itoa(n * 100)
	})).SuchThat(func(values []string) bool {
		return len(values) > 0
	})

	properties.Property("winner is one of the responses", prop.ForAll(
		func(values []string) bool {
			winner := majorityValue(values)
			for _, v := range values {
				if v == winner {
					return true
				}
			}
			return false
		},
		genValues,
	))

	properties.Property("a strict majority always wins", prop.ForAll(
		func(values []string) bool {
			counts := make(map[string]int)
			for _, v := range values {
				counts[v]++
			}
			for v, n := range counts {
				if n > len(values)/2 {
					return majorityValue(values) == v
				}
			}
			return true
		},
		genValues,
	))

	properties.Property("winner count is maximal", prop.ForAll(
		func(values []string) bool {
			counts := make(map[string]int)
			for _, v := range values {
				counts[v]++
			}
			winner := majorityValue(values)
			for _, n := range counts {
				if n > counts[winner] {
					return false
				}
			}
			return true
		},
		genValues,
	))

	properties.TestingRun(t)
}
