package coverage

import "testing"

func TestDetermineApprovalStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score int
		want  ApprovalStatus
	}{
		{100, StatusAutoApproved},
		{80, StatusAutoApproved},
		{79, StatusPendingReview},
		{50, StatusPendingReview},
		{49, StatusRejected},
		{0, StatusRejected},
	}

	for _, tt := range tests {
		if got := DetermineApprovalStatus(tt.score); got != tt.want {
			t.Errorf("DetermineApprovalStatus(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestManualTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to ApprovalStatus
		allowed  bool
	}{
		{StatusPendingReview, StatusManuallyApproved, true},
		{StatusRejected, StatusManuallyApproved, true},
		{StatusPendingReview, StatusRejected, true},
		{StatusAutoApproved, StatusRejected, true},

		// manually_approved is terminal.
		{StatusManuallyApproved, StatusRejected, false},
		{StatusManuallyApproved, StatusPendingReview, false},
		// auto_approved cannot be re-approved manually.
		{StatusAutoApproved, StatusManuallyApproved, false},
		{StatusRejected, StatusRejected, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s, %s) = %t, want %t", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestManualTarget(t *testing.T) {
	t.Parallel()

	if !ManualTarget(StatusManuallyApproved) || !ManualTarget(StatusRejected) {
		t.Fatal("manually_approved and rejected must be operator-settable")
	}
	if ManualTarget(StatusPendingReview) || ManualTarget(StatusAutoApproved) {
		t.Fatal("pending_review and auto_approved must not be operator-settable")
	}
	if ManualTarget("bogus") {
		t.Fatal("unknown status must not be operator-settable")
	}
}

func TestAllowedFrom(t *testing.T) {
	t.Parallel()

	from := AllowedFrom(StatusManuallyApproved)
	if len(from) != 2 {
		t.Fatalf("expected 2 allowed origins, got %v", from)
	}
	if AllowedFrom(StatusPendingReview) != nil {
		t.Fatal("pending_review should have no operator origins")
	}
}

func TestApprovalStatusValid(t *testing.T) {
	t.Parallel()

	for _, s := range []ApprovalStatus{StatusPendingReview, StatusAutoApproved, StatusManuallyApproved, StatusRejected} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if ApprovalStatus("approved").Valid() {
		t.Error("unknown status should be invalid")
	}
}
