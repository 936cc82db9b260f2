package domain

import "testing"

func TestTrackedOrder_IsDead(t *testing.T) {
	cases := []struct {
		status string
		dead   bool
	}{
		{OrderStatusOpen, false},
		{OrderStatusClosed, false},
		{OrderStatusCancelled, true},
		{"CANCELED", true}, // single-L spelling some venues use
		{OrderStatusRejected, true},
		{OrderStatusExpired, true},
		{"", false},
	}

	for _, tc := range cases {
		o := TrackedOrder{Status: tc.status}
		if o.IsDead() != tc.dead {
			t.Errorf("IsDead(%q) = %v, want %v", tc.status, o.IsDead(), tc.dead)
		}
	}
}
