package repository

import "testing"

func TestStaleEmailKeys(t *testing.T) {
	cases := []struct {
		name string
		prev string
		next string
		want []string
	}{
		{"changed", "old@acme.test", "new@acme.test", []string{"old@acme.test", "new@acme.test"}},
		{"unchanged", "agent@acme.test", "agent@acme.test", nil},
		{"case only", "Agent@Acme.Test", "agent@acme.test", nil},
		{"whitespace only", " agent@acme.test ", "agent@acme.test", nil},
		{"set from empty", "", "first@acme.test", []string{"", "first@acme.test"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := staleEmailKeys(tc.prev, tc.next)
			if len(got) != len(tc.want) {
				t.Fatalf("keys = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("keys = %v, want %v", got, tc.want)
				}
			}
		})
	}
}
