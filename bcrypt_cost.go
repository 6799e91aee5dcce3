//go:build !race

package guard

func passwordHashCost() int {
	return 14
}
