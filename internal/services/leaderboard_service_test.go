package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prepline/attempt-service/internal/models"
)

// seedLeaderboard builds a group with three students and submitted attempts
// scoring 50, 80 and 80. The two 80s tie; the earlier submit wins.
func seedLeaderboard(t *testing.T) (*mockRepository, LeaderboardService, string, string) {
	t.Helper()

	repo := newMockRepository()
	test := seedMCQTest(repo, uuid.NewString(), models.VisibilityGroupOnly, []int{1}, nil)

	groupID := uuid.NewString()
	repo.groups[groupID] = &models.Group{ID: groupID, Name: "Toppers", OwnerID: "owner-1"}
	repo.members[groupID] = []*models.GroupMember{
		{GroupID: groupID, UserID: "owner-1", Role: models.GroupRoleOwner},
		{GroupID: groupID, UserID: "student-a", Role: models.GroupRoleMember},
		{GroupID: groupID, UserID: "student-b", Role: models.GroupRoleMember},
		{GroupID: groupID, UserID: "student-c", Role: models.GroupRoleMember},
	}
	repo.assignments[groupID] = []*models.GroupTestAssignment{
		{ID: uuid.NewString(), GroupID: groupID, TestID: test.ID, AssignedBy: "owner-1"},
	}

	base := time.Now().Add(-time.Hour)
	seedSubmitted(repo, test.ID, "student-a", 50, base.Add(10*time.Minute))
	seedSubmitted(repo, test.ID, "student-b", 80, base.Add(5*time.Minute))
	seedSubmitted(repo, test.ID, "student-c", 80, base.Add(20*time.Minute))

	repo.users["student-a"] = &models.User{ID: "student-a", FullName: "Asha Verma"}
	repo.users["student-b"] = &models.User{ID: "student-b", FullName: "Bilal Khan"}
	repo.users["student-c"] = &models.User{ID: "student-c", FullName: "Chitra Rao"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewLeaderboardService(repo, nil, logger, nil)

	return repo, svc, groupID, test.ID
}

// seedSubmitted plants a submitted attempt and its result row directly.
func seedSubmitted(repo *mockRepository, testID, studentID string, score float64, submittedAt time.Time) string {
	attemptID := uuid.NewString()
	at := submittedAt
	repo.attempts[attemptID] = &models.Attempt{
		ID:          attemptID,
		TestID:      testID,
		StudentID:   studentID,
		Status:      models.AttemptSubmitted,
		StartedAt:   submittedAt.Add(-30 * time.Minute),
		EndsAt:      submittedAt.Add(30 * time.Minute),
		SubmittedAt: &at,
	}
	repo.results[attemptID] = &models.AttemptResult{
		ID:        uuid.NewString(),
		AttemptID: attemptID,
		Score:     score,
		MaxScore:  100,
		Accuracy:  score / 100,
	}
	return attemptID
}

func TestLeaderboardService_GetLeaderboard(t *testing.T) {
	ctx := context.Background()

	t.Run("ranks by score then earlier submit", func(t *testing.T) {
		_, svc, groupID, testID := seedLeaderboard(t)

		resp, err := svc.GetLeaderboard(ctx, groupID, testID, "student-a")
		if err != nil {
			t.Fatalf("GetLeaderboard failed: %v", err)
		}

		if len(resp.Entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(resp.Entries))
		}

		wantOrder := []string{"student-b", "student-c", "student-a"}
		for i, want := range wantOrder {
			entry := resp.Entries[i]
			if entry.StudentID != want {
				t.Errorf("entries[%d] = %s, want %s", i, entry.StudentID, want)
			}
			if entry.Rank != i+1 {
				t.Errorf("entries[%d].Rank = %d, want %d", i, entry.Rank, i+1)
			}
		}

		if resp.Entries[0].StudentName != "Bilal Khan" {
			t.Errorf("expected resolved name, got %q", resp.Entries[0].StudentName)
		}
		if resp.MyRank == nil || *resp.MyRank != 3 {
			t.Errorf("expected MyRank 3, got %v", resp.MyRank)
		}
	})

	t.Run("identical score and submit time order deterministically", func(t *testing.T) {
		repo := newMockRepository()
		test := seedMCQTest(repo, uuid.NewString(), models.VisibilityGroupOnly, []int{1}, nil)

		groupID := uuid.NewString()
		repo.groups[groupID] = &models.Group{ID: groupID, Name: "Twins", OwnerID: "owner-1"}
		repo.members[groupID] = []*models.GroupMember{
			{GroupID: groupID, UserID: "student-a", Role: models.GroupRoleMember},
			{GroupID: groupID, UserID: "student-b", Role: models.GroupRoleMember},
		}
		repo.assignments[groupID] = []*models.GroupTestAssignment{
			{ID: uuid.NewString(), GroupID: groupID, TestID: test.ID, AssignedBy: "owner-1"},
		}

		at := time.Now().Add(-time.Hour)
		first := seedSubmitted(repo, test.ID, "student-a", 80, at)
		second := seedSubmitted(repo, test.ID, "student-b", 80, at)
		if second < first {
			first, second = second, first
		}

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc := NewLeaderboardService(repo, nil, logger, nil)

		resp, err := svc.GetLeaderboard(ctx, groupID, test.ID, "student-a")
		if err != nil {
			t.Fatalf("GetLeaderboard failed: %v", err)
		}
		if len(resp.Entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(resp.Entries))
		}
		// Full ties fall back to the attempt id so repeated reads agree.
		if resp.Entries[0].AttemptID != first || resp.Entries[1].AttemptID != second {
			t.Errorf("tie order not deterministic: got %s then %s, want %s then %s",
				resp.Entries[0].AttemptID, resp.Entries[1].AttemptID, first, second)
		}
		if resp.Entries[0].Rank != 1 || resp.Entries[1].Rank != 2 {
			t.Errorf("ranks must stay strict under ties: %+v", resp.Entries)
		}
	})

	t.Run("viewer without a submit has no rank", func(t *testing.T) {
		_, svc, groupID, testID := seedLeaderboard(t)

		resp, err := svc.GetLeaderboard(ctx, groupID, testID, "owner-1")
		if err != nil {
			t.Fatalf("GetLeaderboard failed: %v", err)
		}
		if resp.MyRank != nil {
			t.Errorf("expected nil MyRank, got %d", *resp.MyRank)
		}
	})

	t.Run("attempt without a result row is excluded", func(t *testing.T) {
		repo, svc, groupID, testID := seedLeaderboard(t)
		orphanID := seedSubmitted(repo, testID, "owner-1", 95, time.Now())
		delete(repo.results, orphanID)

		resp, err := svc.GetLeaderboard(ctx, groupID, testID, "student-a")
		if err != nil {
			t.Fatalf("GetLeaderboard failed: %v", err)
		}
		for _, entry := range resp.Entries {
			if entry.AttemptID == orphanID {
				t.Error("attempt without a result must not be ranked")
			}
		}
	})

	t.Run("non-members of the group are excluded", func(t *testing.T) {
		repo, svc, groupID, testID := seedLeaderboard(t)
		seedSubmitted(repo, testID, "outsider", 100, time.Now())

		resp, err := svc.GetLeaderboard(ctx, groupID, testID, "student-a")
		if err != nil {
			t.Fatalf("GetLeaderboard failed: %v", err)
		}
		for _, entry := range resp.Entries {
			if entry.StudentID == "outsider" {
				t.Error("outsider scores must not appear")
			}
		}
	})

	t.Run("viewer must be a member", func(t *testing.T) {
		_, svc, groupID, testID := seedLeaderboard(t)
		if _, err := svc.GetLeaderboard(ctx, groupID, testID, "outsider"); !errors.Is(err, ErrNotGroupMember) {
			t.Errorf("expected ErrNotGroupMember, got %v", err)
		}
	})

	t.Run("test must be assigned to the group", func(t *testing.T) {
		repo, svc, groupID, _ := seedLeaderboard(t)
		other := seedMCQTest(repo, uuid.NewString(), models.VisibilityPublic, []int{1}, nil)

		if _, err := svc.GetLeaderboard(ctx, groupID, other.ID, "student-a"); !errors.Is(err, ErrTestNotAssigned) {
			t.Errorf("expected ErrTestNotAssigned, got %v", err)
		}
	})
}

func TestLeaderboardService_ExportLeaderboard(t *testing.T) {
	ctx := context.Background()

	t.Run("owner gets an xlsx workbook", func(t *testing.T) {
		_, svc, groupID, testID := seedLeaderboard(t)

		data, filename, err := svc.ExportLeaderboard(ctx, groupID, testID, "owner-1")
		if err != nil {
			t.Fatalf("ExportLeaderboard failed: %v", err)
		}

		// XLSX is a zip container.
		if !bytes.HasPrefix(data, []byte("PK")) {
			t.Error("export is not a zip container")
		}
		if !strings.HasSuffix(filename, ".xlsx") {
			t.Errorf("expected .xlsx filename, got %q", filename)
		}
	})

	t.Run("plain members cannot export", func(t *testing.T) {
		_, svc, groupID, testID := seedLeaderboard(t)

		if _, _, err := svc.ExportLeaderboard(ctx, groupID, testID, "student-a"); !IsPermissionError(err) {
			t.Errorf("expected permission error, got %v", err)
		}
	})

	t.Run("non-members cannot export", func(t *testing.T) {
		_, svc, groupID, testID := seedLeaderboard(t)

		if _, _, err := svc.ExportLeaderboard(ctx, groupID, testID, "outsider"); !errors.Is(err, ErrNotGroupMember) {
			t.Errorf("expected ErrNotGroupMember, got %v", err)
		}
	})
}
