package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GroupRole string

const (
	GroupRoleOwner  GroupRole = "OWNER"
	GroupRoleMod    GroupRole = "MOD"
	GroupRoleMember GroupRole = "MEMBER"
)

type Group struct {
	ID          string  `json:"id" gorm:"primaryKey;size:36"`
	Name        string  `json:"name" gorm:"not null;size:120" validate:"required,min=1,max=120"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`
	OwnerID     string  `json:"owner_id" gorm:"not null;index;size:255"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Owner       User                  `json:"owner" gorm:"foreignKey:OwnerID"`
	Members     []GroupMember         `json:"members" gorm:"foreignKey:GroupID"`
	Assignments []GroupTestAssignment `json:"assignments" gorm:"foreignKey:GroupID"`

	// Computed fields (not stored)
	MemberCount int `json:"member_count" gorm:"-"`
}

type GroupMember struct {
	ID      string    `json:"id" gorm:"primaryKey;size:36"`
	GroupID string    `json:"group_id" gorm:"not null;index;uniqueIndex:idx_group_user;size:36"`
	UserID  string    `json:"user_id" gorm:"not null;index;uniqueIndex:idx_group_user;size:255"`
	Role    GroupRole `json:"role" gorm:"default:MEMBER"`

	JoinedAt  time.Time `json:"joined_at"`
	CreatedAt time.Time `json:"created_at"`

	Group Group `json:"-" gorm:"foreignKey:GroupID"`
	User  User  `json:"user" gorm:"foreignKey:UserID"`
}

// GroupInvite is a shareable join code. UsesCount is bumped inside the join
// transaction so MaxUses holds under concurrent joins.
type GroupInvite struct {
	ID        string     `json:"id" gorm:"primaryKey;size:36"`
	GroupID   string     `json:"group_id" gorm:"not null;index;size:36"`
	Code      string     `json:"code" gorm:"not null;uniqueIndex;size:64"`
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   *int       `json:"max_uses"`
	UsesCount int        `json:"uses_count" gorm:"not null;default:0"`
	CreatedBy string     `json:"created_by" gorm:"not null;size:255"`

	CreatedAt time.Time `json:"created_at"`

	Group Group `json:"-" gorm:"foreignKey:GroupID"`
}

// IsUsable reports whether the invite can still be redeemed.
func (gi *GroupInvite) IsUsable(now time.Time) bool {
	if gi.ExpiresAt != nil && now.After(*gi.ExpiresAt) {
		return false
	}
	if gi.MaxUses != nil && gi.UsesCount >= *gi.MaxUses {
		return false
	}
	return true
}

// GroupTestAssignment makes a test visible to a group; GROUP_ONLY tests are
// startable only through one of these.
type GroupTestAssignment struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	GroupID    string `json:"group_id" gorm:"not null;index;uniqueIndex:idx_group_test;size:36"`
	TestID     string `json:"test_id" gorm:"not null;index;uniqueIndex:idx_group_test;size:36"`
	AssignedBy string `json:"assigned_by" gorm:"not null;size:255"`

	CreatedAt time.Time `json:"created_at"`

	Group Group `json:"-" gorm:"foreignKey:GroupID"`
	Test  Test  `json:"test" gorm:"foreignKey:TestID"`
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

func (gm *GroupMember) BeforeCreate(tx *gorm.DB) error {
	if gm.ID == "" {
		gm.ID = uuid.NewString()
	}
	if gm.JoinedAt.IsZero() {
		gm.JoinedAt = time.Now()
	}
	return nil
}

func (gi *GroupInvite) BeforeCreate(tx *gorm.DB) error {
	if gi.ID == "" {
		gi.ID = uuid.NewString()
	}
	return nil
}

func (gta *GroupTestAssignment) BeforeCreate(tx *gorm.DB) error {
	if gta.ID == "" {
		gta.ID = uuid.NewString()
	}
	return nil
}

func (Group) TableName() string {
	return "groups"
}

func (GroupMember) TableName() string {
	return "group_members"
}

func (GroupInvite) TableName() string {
	return "group_invites"
}

func (GroupTestAssignment) TableName() string {
	return "group_test_assignments"
}
