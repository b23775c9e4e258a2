package service

import (
	"context"
	"testing"
	"time"

	"timetracker/internal/model"
	"timetracker/internal/security"
	"timetracker/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func newUserService(f *fixture) *userService {
	return NewUserService(f.users, TokenConfig{Secret: testSecret, TTL: time.Hour}, f.security, f.roles, nil).(*userService)
}

func TestCreateUserAndLogin(t *testing.T) {
	f := newFixture()
	svc := newUserService(f)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, f.admin.String(), CreateUserRequest{
		Email:    "Carol@Example.com",
		FullName: "Carol",
		Password: "correct horse",
		Role:     model.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", created.Email)
	assert.Equal(t, model.RoleAdmin, created.Role)

	token, err := svc.Login(ctx, LoginUserRequest{Email: "carol@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, token.User.ID)

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token.Token, claims, func(*jwt.Token) (interface{}, error) { return testSecret, nil })
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, created.ID.String(), claims["sub"])
	assert.Equal(t, model.RoleAdmin, claims["role"])
}

func TestLoginFailuresAreLogged(t *testing.T) {
	f := newFixture()
	svc := newUserService(f)

	_, err := svc.Login(context.Background(), LoginUserRequest{Email: "nobody@example.com", Password: "x"})

	assert.True(t, apperror.Is(err, apperror.KindValidation))
	assert.Equal(t, []security.EventType{security.EventAuthFailure}, f.security.types())
}

func TestCreateUserRules(t *testing.T) {
	f := newFixture()
	svc := newUserService(f)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, f.alice.String(), CreateUserRequest{Email: "d@example.com", FullName: "D", Password: "password1"})
	assert.True(t, apperror.Is(err, apperror.KindPermissionDenied))

	_, err = svc.CreateUser(ctx, f.admin.String(), CreateUserRequest{Email: "d@example.com", FullName: "D", Password: "password1", Role: "manager"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = svc.CreateUser(ctx, f.admin.String(), CreateUserRequest{Email: "alice@example.com", FullName: "A", Password: "password1"})
	assert.True(t, apperror.Is(err, apperror.KindReferentialConflict))
}

func TestSetRole(t *testing.T) {
	f := newFixture()
	svc := newUserService(f)
	ctx := context.Background()

	res, err := svc.SetRole(ctx, f.admin.String(), f.alice.String(), SetRoleRequest{Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, res.Role)

	me, err := svc.Me(ctx, f.alice.String())
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, me.Role)

	_, err = svc.SetRole(ctx, f.admin.String(), f.admin.String(), SetRoleRequest{Role: model.RoleUser})
	assert.True(t, apperror.Is(err, apperror.KindInvalidState))

	_, err = svc.SetRole(ctx, f.admin.String(), f.alice.String(), SetRoleRequest{Role: model.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, []string{
		f.alice.String() + ":" + model.RoleAdmin,
		f.alice.String() + ":" + model.RoleUser,
	}, f.roles.changes, "only applied changes reach open sessions")
}

func TestAuditLogIsAdminOnly(t *testing.T) {
	f := newFixture()
	svc := NewAuditService(f.audit, f.entries, f.users, nil)
	ctx := context.Background()
	id := f.entries.seed(f.alice, f.project, "2024-06-03", "4", model.StatusPending)
	_, err := f.approvals.ApproveEntry(ctx, f.admin.String(), id.String(), nil)
	require.NoError(t, err)

	logs, total, err := svc.GetAuditLogs(ctx, f.admin.String(), AuditQuery{}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, model.ActionApproveEntry, logs[0].Action)
	assert.Equal(t, id.String(), logs[0].EntityID)

	_, _, err = svc.GetAuditLogs(ctx, f.alice.String(), AuditQuery{}, 1, 20)
	assert.True(t, apperror.Is(err, apperror.KindPermissionDenied))
}

func TestAuditLogFiltersAndPages(t *testing.T) {
	f := newFixture()
	svc := NewAuditService(f.audit, f.entries, f.users, nil)
	ctx := context.Background()
	first := f.entries.seed(f.alice, f.project, "2024-06-03", "4", model.StatusPending)
	second := f.entries.seed(f.alice, f.project, "2024-06-04", "4", model.StatusPending)
	_, err := f.approvals.ApproveEntry(ctx, f.admin.String(), first.String(), nil)
	require.NoError(t, err)
	_, err = f.approvals.ReturnEntry(ctx, f.admin.String(), second.String(), ReturnEntryRequest{Comment: "split it"})
	require.NoError(t, err)

	returned, total, err := svc.GetAuditLogs(ctx, f.admin.String(), AuditQuery{Action: model.ActionReturnEntry}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, second.String(), returned[0].EntityID)

	page, total, err := svc.GetAuditLogs(ctx, f.admin.String(), AuditQuery{}, 1, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, model.ActionReturnEntry, page[0].Action, "newest first")
}

func TestEntryHistoryIsChronologicalAndScoped(t *testing.T) {
	f := newFixture()
	svc := NewAuditService(f.audit, f.entries, f.users, nil)
	ctx := context.Background()
	id := f.entries.seed(f.alice, f.project, "2024-06-03", "4", model.StatusPending)
	other := f.entries.seed(f.bob, f.project, "2024-06-03", "2", model.StatusPending)

	_, err := f.approvals.ReturnEntry(ctx, f.admin.String(), id.String(), ReturnEntryRequest{Comment: "add detail"})
	require.NoError(t, err)
	_, err = f.timesheet.Submit(ctx, f.alice.String(), id.String(), nil)
	require.NoError(t, err)
	_, err = f.approvals.ApproveEntry(ctx, f.admin.String(), id.String(), nil)
	require.NoError(t, err)
	_, err = f.approvals.ApproveEntry(ctx, f.admin.String(), other.String(), nil)
	require.NoError(t, err)

	history, err := svc.EntryHistory(ctx, f.alice.String(), id.String())
	require.NoError(t, err)
	actions := make([]string, 0, len(history))
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []string{model.ActionReturnEntry, model.ActionSubmitEntry, model.ActionApproveEntry}, actions)

	adminView, err := svc.EntryHistory(ctx, f.admin.String(), other.String())
	require.NoError(t, err)
	assert.Len(t, adminView, 1)

	_, err = svc.EntryHistory(ctx, f.alice.String(), other.String())
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	_, err = svc.EntryHistory(ctx, f.alice.String(), "not-a-uuid")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestBootstrapAdminOnlyOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	users := newFakeUsers()
	svc := NewUserService(users, TokenConfig{Secret: testSecret}, &spySecurity{}, nil, nil)

	first, err := svc.BootstrapAdmin(ctx, CreateUserRequest{Email: "root@example.com", FullName: "Root", Password: "long enough", Role: model.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, first.Role)

	_, err = svc.BootstrapAdmin(ctx, CreateUserRequest{Email: "two@example.com", FullName: "Two", Password: "long enough"})
	assert.True(t, apperror.Is(err, apperror.KindInvalidState))

	_, err = svc.CreateUser(ctx, first.ID.String(), CreateUserRequest{Email: "short@example.com", FullName: "Short", Password: "short"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}
