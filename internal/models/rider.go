package models

import "fmt"

// StablePhone derives a deterministic placeholder phone for riders known only by name.
func StablePhone(name string) string {
	sum := 0
	for _, r := range name {
		sum += int(r)
	}
	return fmt.Sprintf("139%08d", sum%100000000)
}
