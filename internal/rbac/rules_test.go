package rbac

import "testing"

func TestHas(t *testing.T) {
	cases := []struct {
		role, perm string
		want       bool
	}{
		{"student", "exam:take", true},
		{"student", "catalog:manage", false},
		{"student", "users:list", false},
		{"admin", "exam:manage", true},
		{"admin", "anything:at-all", true},
		{"", "exam:take", false},
		{"unknown", "exam:take", false},
	}
	for _, c := range cases {
		if got := Has(c.role, c.perm); got != c.want {
			t.Errorf("Has(%q, %q) = %v, want %v", c.role, c.perm, got, c.want)
		}
	}
}
