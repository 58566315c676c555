package journal

import (
	"testing"

	"dutyline/internal/domain"
)

func TestMessage(t *testing.T) {
	cases := []struct {
		status string
		want   string
	}{
		{domain.StatusCompleted, "Rotate tokens marked completed"},
		{domain.StatusPending, "Rotate tokens reverted to pending"},
		{domain.StatusInProgress, "Rotate tokens reverted to pending"},
	}
	for _, tc := range cases {
		if got := Message("Rotate tokens", tc.status); got != tc.want {
			t.Fatalf("%s: %q, want %q", tc.status, got, tc.want)
		}
	}
}
