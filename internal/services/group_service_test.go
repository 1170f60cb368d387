package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/events"
	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
	"github.com/prepline/attempt-service/internal/validator"
)

// staleUsesRepo serves invite reads with a zeroed uses count, standing in for
// a transaction that read the invite before a concurrent join committed.
type staleUsesRepo struct{ *mockRepository }

func (m staleUsesRepo) Group() repositories.GroupRepository {
	return staleUsesGroupRepo{m.mockRepository.Group()}
}

func (m staleUsesRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}

type staleUsesGroupRepo struct{ repositories.GroupRepository }

func (r staleUsesGroupRepo) GetInviteByCode(ctx context.Context, tx *gorm.DB, code string) (*models.GroupInvite, error) {
	invite, err := r.GroupRepository.GetInviteByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	invite.UsesCount = 0
	return invite, nil
}

func newTestGroupService(repo *mockRepository) (GroupService, *events.MockEventPublisher) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := events.NewMockEventPublisher(logger)
	svc := NewGroupService(repo, nil, logger, validator.New(), publisher)
	return svc, publisher
}

func TestGroupService_Create(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	svc, _ := newTestGroupService(repo)

	group, err := svc.Create(ctx, &CreateGroupRequest{Name: "Physics Batch 2026"}, "owner-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if group.OwnerID != "owner-1" || group.MyRole != "OWNER" {
		t.Errorf("unexpected ownership: %+v", group)
	}
	if group.MemberCount != 1 {
		t.Errorf("owner should be counted as a member, got %d", group.MemberCount)
	}

	role, err := repo.Group().GetMemberRole(ctx, nil, group.ID, "owner-1")
	if err != nil || role != models.GroupRoleOwner {
		t.Errorf("owner membership row missing: role=%s err=%v", role, err)
	}
}

func TestGroupService_Create_RejectsShortName(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestGroupService(repo)

	_, err := svc.Create(context.Background(), &CreateGroupRequest{Name: "ab"}, "owner-1")
	if !IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestGroupService_Get(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	svc, _ := newTestGroupService(repo)

	group, _ := svc.Create(ctx, &CreateGroupRequest{Name: "Morning Batch"}, "owner-1")

	t.Run("member sees the group", func(t *testing.T) {
		got, err := svc.Get(ctx, group.ID, "owner-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Name != "Morning Batch" || got.MyRole != "OWNER" {
			t.Errorf("unexpected group: %+v", got)
		}
	})

	t.Run("non-member is rejected", func(t *testing.T) {
		if _, err := svc.Get(ctx, group.ID, "stranger"); !errors.Is(err, ErrNotGroupMember) {
			t.Errorf("expected ErrNotGroupMember, got %v", err)
		}
	})

	t.Run("unknown group", func(t *testing.T) {
		if _, err := svc.Get(ctx, uuid.NewString(), "owner-1"); !errors.Is(err, ErrGroupNotFound) {
			t.Errorf("expected ErrGroupNotFound, got %v", err)
		}
	})
}

func TestGroupService_Invites(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*mockRepository, GroupService, *events.MockEventPublisher, *GroupResponse) {
		t.Helper()
		repo := newMockRepository()
		svc, publisher := newTestGroupService(repo)
		group, err := svc.Create(ctx, &CreateGroupRequest{Name: "Evening Batch"}, "owner-1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		return repo, svc, publisher, group
	}

	t.Run("owner mints a code and a student joins", func(t *testing.T) {
		repo, svc, publisher, group := setup(t)

		invite, err := svc.CreateInvite(ctx, group.ID, &CreateInviteRequest{}, "owner-1")
		if err != nil {
			t.Fatalf("CreateInvite failed: %v", err)
		}
		if len(invite.Code) != 10 {
			t.Errorf("expected 10-char code, got %q", invite.Code)
		}

		joined, err := svc.JoinByCode(ctx, &JoinGroupRequest{Code: invite.Code}, "student-1")
		if err != nil {
			t.Fatalf("JoinByCode failed: %v", err)
		}
		if joined.ID != group.ID || joined.MyRole != "MEMBER" {
			t.Errorf("unexpected join result: %+v", joined)
		}
		if joined.MemberCount != 2 {
			t.Errorf("expected 2 members, got %d", joined.MemberCount)
		}

		stored := repo.invites[invite.Code]
		if stored.UsesCount != 1 {
			t.Errorf("join should burn one use, got %d", stored.UsesCount)
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventGroupMemberAdded {
			t.Errorf("expected one group.member_added event, got %+v", published)
		}
	})

	t.Run("re-joining is a no-op", func(t *testing.T) {
		repo, svc, publisher, group := setup(t)
		invite, _ := svc.CreateInvite(ctx, group.ID, &CreateInviteRequest{}, "owner-1")

		if _, err := svc.JoinByCode(ctx, &JoinGroupRequest{Code: invite.Code}, "student-1"); err != nil {
			t.Fatalf("first join failed: %v", err)
		}
		publisher.ClearEvents()

		again, err := svc.JoinByCode(ctx, &JoinGroupRequest{Code: invite.Code}, "student-1")
		if err != nil {
			t.Fatalf("second join failed: %v", err)
		}
		if again.MemberCount != 2 {
			t.Errorf("re-join should not add a member, got %d", again.MemberCount)
		}
		if repo.invites[invite.Code].UsesCount != 1 {
			t.Errorf("re-join should not burn an invite use, got %d", repo.invites[invite.Code].UsesCount)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		_, svc, _, _ := setup(t)
		_, err := svc.JoinByCode(ctx, &JoinGroupRequest{Code: "ZZZZZZZZZZ"}, "student-1")
		if !errors.Is(err, ErrInviteInvalid) {
			t.Errorf("expected ErrInviteInvalid, got %v", err)
		}
	})

	t.Run("expired code", func(t *testing.T) {
		repo, svc, _, group := setup(t)
		invite, _ := svc.CreateInvite(ctx, group.ID, &CreateInviteRequest{ExpiresInHours: ptr(1)}, "owner-1")
		repo.invites[invite.Code].ExpiresAt = ptr(time.Now().Add(-time.Minute))

		if _, err := svc.JoinByCode(ctx, &JoinGroupRequest{Code: invite.Code}, "student-1"); !errors.Is(err, ErrInviteInvalid) {
			t.Errorf("expected ErrInviteInvalid, got %v", err)
		}
	})

	t.Run("exhausted code", func(t *testing.T) {
		repo, svc, _, group := setup(t)
		invite, _ := svc.CreateInvite(ctx, group.ID, &CreateInviteRequest{MaxUses: ptr(1)}, "owner-1")
		repo.invites[invite.Code].UsesCount = 1

		if _, err := svc.JoinByCode(ctx, &JoinGroupRequest{Code: invite.Code}, "student-1"); !errors.Is(err, ErrInviteInvalid) {
			t.Errorf("expected ErrInviteInvalid, got %v", err)
		}
	})

	t.Run("stale usability check cannot take the last use", func(t *testing.T) {
		repo, svc, _, group := setup(t)
		invite, _ := svc.CreateInvite(ctx, group.ID, &CreateInviteRequest{MaxUses: ptr(1)}, "owner-1")
		repo.invites[invite.Code].UsesCount = 1

		// A join that read the invite before another join took the final use
		// passes IsUsable but must lose at the guarded increment.
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		racing := NewGroupService(staleUsesRepo{repo}, nil, logger, validator.New(), nil)

		if _, err := racing.JoinByCode(ctx, &JoinGroupRequest{Code: invite.Code}, "student-2"); !errors.Is(err, ErrInviteInvalid) {
			t.Errorf("expected ErrInviteInvalid, got %v", err)
		}
		if repo.invites[invite.Code].UsesCount != 1 {
			t.Errorf("exhausted invite gained a use, got %d", repo.invites[invite.Code].UsesCount)
		}
	})

	t.Run("plain members cannot mint codes", func(t *testing.T) {
		_, svc, _, group := setup(t)
		invite, _ := svc.CreateInvite(ctx, group.ID, &CreateInviteRequest{}, "owner-1")
		if _, err := svc.JoinByCode(ctx, &JoinGroupRequest{Code: invite.Code}, "student-1"); err != nil {
			t.Fatalf("join failed: %v", err)
		}

		if _, err := svc.CreateInvite(ctx, group.ID, &CreateInviteRequest{}, "student-1"); !IsPermissionError(err) {
			t.Errorf("expected permission error, got %v", err)
		}
	})
}

func TestGroupService_AssignTest(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*mockRepository, GroupService, *GroupResponse, *models.Test) {
		t.Helper()
		repo := newMockRepository()
		svc, _ := newTestGroupService(repo)
		group, err := svc.Create(ctx, &CreateGroupRequest{Name: "Weekend Batch"}, "owner-1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		test := seedMCQTest(repo, uuid.NewString(), models.VisibilityGroupOnly, []int{1}, nil)
		return repo, svc, group, test
	}

	t.Run("owner assigns a published test", func(t *testing.T) {
		repo, svc, group, test := setup(t)

		assignment, err := svc.AssignTest(ctx, group.ID, &AssignTestRequest{TestID: test.ID}, "owner-1")
		if err != nil {
			t.Fatalf("AssignTest failed: %v", err)
		}
		if assignment.TestTitle != test.Title {
			t.Errorf("expected title %q, got %q", test.Title, assignment.TestTitle)
		}

		assigned, _ := repo.Group().IsTestAssigned(ctx, nil, group.ID, test.ID)
		if !assigned {
			t.Error("assignment row missing")
		}

		listed, err := svc.ListAssignments(ctx, group.ID, "owner-1")
		if err != nil {
			t.Fatalf("ListAssignments failed: %v", err)
		}
		if len(listed) != 1 || listed[0].TestID != test.ID {
			t.Errorf("unexpected assignments: %+v", listed)
		}
	})

	t.Run("assigning twice keeps one row", func(t *testing.T) {
		_, svc, group, test := setup(t)

		if _, err := svc.AssignTest(ctx, group.ID, &AssignTestRequest{TestID: test.ID}, "owner-1"); err != nil {
			t.Fatalf("first assign failed: %v", err)
		}
		if _, err := svc.AssignTest(ctx, group.ID, &AssignTestRequest{TestID: test.ID}, "owner-1"); err != nil {
			t.Fatalf("second assign failed: %v", err)
		}

		listed, _ := svc.ListAssignments(ctx, group.ID, "owner-1")
		if len(listed) != 1 {
			t.Errorf("expected a single assignment, got %d", len(listed))
		}
	})

	t.Run("draft test cannot be assigned", func(t *testing.T) {
		repo, svc, group, _ := setup(t)
		draft := seedMCQTest(repo, uuid.NewString(), models.VisibilityGroupOnly, []int{1}, nil)
		draft.Status = models.TestDraft

		if _, err := svc.AssignTest(ctx, group.ID, &AssignTestRequest{TestID: draft.ID}, "owner-1"); !errors.Is(err, ErrTestNotAvailable) {
			t.Errorf("expected ErrTestNotAvailable, got %v", err)
		}
	})

	t.Run("members cannot assign", func(t *testing.T) {
		repo, svc, group, test := setup(t)
		repo.members[group.ID] = append(repo.members[group.ID], &models.GroupMember{
			GroupID: group.ID,
			UserID:  "student-1",
			Role:    models.GroupRoleMember,
		})

		if _, err := svc.AssignTest(ctx, group.ID, &AssignTestRequest{TestID: test.ID}, "student-1"); !IsPermissionError(err) {
			t.Errorf("expected permission error, got %v", err)
		}
	})
}

func TestGroupService_ListMembers(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	svc, _ := newTestGroupService(repo)

	group, _ := svc.Create(ctx, &CreateGroupRequest{Name: "Crash Course"}, "owner-1")
	invite, _ := svc.CreateInvite(ctx, group.ID, &CreateInviteRequest{}, "owner-1")
	if _, err := svc.JoinByCode(ctx, &JoinGroupRequest{Code: invite.Code}, "student-1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	repo.users["student-1"] = &models.User{ID: "student-1", FullName: "Asha Verma"}

	members, err := svc.ListMembers(ctx, group.ID, "student-1")
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	var student *GroupMemberResponse
	for i := range members {
		if members[i].UserID == "student-1" {
			student = &members[i]
		}
	}
	if student == nil || student.Name != "Asha Verma" || student.Role != models.GroupRoleMember {
		t.Errorf("unexpected member row: %+v", student)
	}

	if _, err := svc.ListMembers(ctx, group.ID, "stranger"); !errors.Is(err, ErrNotGroupMember) {
		t.Errorf("expected ErrNotGroupMember, got %v", err)
	}
}
