package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/domain"
)

func TestFindOrCreateDirect_SameConversationEitherOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, created, err := env.conversations.FindOrCreateDirect(ctx, teacher, minji)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.ConversationDirect, first.Kind)
	require.Len(t, first.Participants, 2)

	second, created, err := env.conversations.FindOrCreateDirect(ctx, minji, teacher)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Participants, 2)
}

func TestFindOrCreateDirect_DenormalizesProfiles(t *testing.T) {
	env := newTestEnv(t)

	conv := env.direct(t, teacher, minji)

	names := map[uint64]string{}
	for _, p := range conv.Participants {
		names[p.UserID] = p.Name
	}
	assert.Equal(t, "Emma Teacher", names[teacher])
	assert.Equal(t, "Minji Student", names[minji])
}

func TestFindOrCreateDirect_ConcurrentCallersShareOneConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const callers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ids      = map[uint64]struct{}{}
		creators int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := teacher, minji
			if i%2 == 1 {
				a, b = b, a
			}
			conv, created, err := env.conversations.FindOrCreateDirect(ctx, a, b)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[conv.ID] = struct{}{}
			if created {
				creators++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, creators)
	assert.Equal(t, int64(1), env.countRows(t, &domain.Conversation{}))
	assert.Equal(t, int64(2), env.countRows(t, &domain.Participant{}))
}

func TestFindOrCreateDirect_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.conversations.FindOrCreateDirect(ctx, minji, minji)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, _, err = env.conversations.FindOrCreateDirect(ctx, 0, minji)
	assert.ErrorIs(t, err, common.ErrValidation)

	assert.Equal(t, int64(0), env.countRows(t, &domain.Conversation{}))
}

func TestCreate_DirectNeedsExactlyOneOther(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.conversations.Create(ctx, teacher, &domain.CreateConversationRequest{
		Type:           domain.ConversationDirect,
		ParticipantIDs: []uint64{minji, hiroshi},
	})
	assert.ErrorIs(t, err, common.ErrValidation)

	// the caller listed alongside the peer is ignored
	conv, created, err := env.conversations.Create(ctx, teacher, &domain.CreateConversationRequest{
		Type:           domain.ConversationDirect,
		ParticipantIDs: []uint64{teacher, minji},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.DirectKey(teacher, minji), *conv.DirectKey)
}

func TestCreateGroup_IncludesCreatorAndDedupes(t *testing.T) {
	env := newTestEnv(t)

	title := "  Grammar B1  "
	conv, err := env.conversations.CreateGroup(context.Background(), teacher, []uint64{minji, hiroshi, minji, teacher}, &title)
	require.NoError(t, err)

	assert.Equal(t, domain.ConversationGroup, conv.Kind)
	assert.Nil(t, conv.DirectKey)
	require.NotNil(t, conv.Title)
	assert.Equal(t, "Grammar B1", *conv.Title)

	var members []uint64
	for _, p := range conv.Participants {
		members = append(members, p.UserID)
	}
	assert.ElementsMatch(t, []uint64{teacher, minji, hiroshi}, members)
}

func TestCreateGroup_Validation(t *testing.T) {
	env := newTestEnv(t, withMaxGroupSize(3))
	ctx := context.Background()

	_, err := env.conversations.CreateGroup(ctx, teacher, nil, nil)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = env.conversations.CreateGroup(ctx, teacher, []uint64{teacher}, nil)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = env.conversations.CreateGroup(ctx, teacher, []uint64{minji, hiroshi, sofia}, nil)
	assert.ErrorIs(t, err, common.ErrValidation, "creator counts toward the limit")

	_, err = env.conversations.CreateGroup(ctx, teacher, []uint64{minji, hiroshi}, nil)
	assert.NoError(t, err)
}

func TestCreateGroup_TwoGroupsWithSameMembersAreDistinct(t *testing.T) {
	env := newTestEnv(t)

	a := env.group(t, teacher, minji, hiroshi)
	b := env.group(t, teacher, minji, hiroshi)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestGet_NonMemberAndMissingLookTheSame(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.direct(t, teacher, minji)

	got, err := env.conversations.Get(ctx, conv.ID, minji)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = env.conversations.Get(ctx, conv.ID, hiroshi)
	assert.ErrorIs(t, err, common.ErrAccessDenied)

	_, err = env.conversations.Get(ctx, conv.ID+999, minji)
	assert.ErrorIs(t, err, common.ErrAccessDenied)
}

func TestListForUser_MostRecentActivityFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	busy := env.direct(t, teacher, minji)
	quiet := env.direct(t, teacher, hiroshi)
	empty := env.group(t, teacher, sofia)
	notMine := env.direct(t, minji, sofia)

	env.send(t, quiet.ID, hiroshi, "first")
	time.Sleep(2 * time.Millisecond)
	env.send(t, busy.ID, minji, "second")
	env.send(t, busy.ID, minji, "third")
	env.send(t, notMine.ID, sofia, "hi")

	list, err := env.conversations.ListForUser(ctx, teacher)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, busy.ID, list[0].ID)
	assert.Equal(t, quiet.ID, list[1].ID)
	assert.Equal(t, empty.ID, list[2].ID)

	assert.Equal(t, int64(2), list[0].UnreadCount)
	assert.Equal(t, int64(1), list[1].UnreadCount)
	assert.Equal(t, int64(0), list[2].UnreadCount)
}

func TestAddParticipant_GroupOnly(t *testing.T) {
	env := newTestEnv(t, withMaxGroupSize(3))
	ctx := context.Background()

	group := env.group(t, teacher, minji)
	conv, err := env.conversations.AddParticipant(ctx, group.ID, teacher, hiroshi)
	require.NoError(t, err)
	assert.Len(t, conv.Participants, 3)

	// already a member: no-op
	conv, err = env.conversations.AddParticipant(ctx, group.ID, minji, hiroshi)
	require.NoError(t, err)
	assert.Len(t, conv.Participants, 3)

	_, err = env.conversations.AddParticipant(ctx, group.ID, teacher, sofia)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = env.conversations.AddParticipant(ctx, group.ID, sofia, liam)
	assert.ErrorIs(t, err, common.ErrAccessDenied)

	direct := env.direct(t, teacher, minji)
	_, err = env.conversations.AddParticipant(ctx, direct.ID, teacher, hiroshi)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestLeave_RemovesAccessButKeepsHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	group := env.group(t, teacher, minji, hiroshi)
	env.send(t, group.ID, minji, "bye everyone")

	require.NoError(t, env.conversations.Leave(ctx, group.ID, minji))
	assert.Equal(t, []revokedSubscription{{ConversationID: group.ID, UserID: minji}}, env.publisher.revocations())

	_, err := env.messages.Send(ctx, group.ID, minji, &domain.SendMessageRequest{Content: "still here?"})
	assert.ErrorIs(t, err, common.ErrAccessDenied)

	page, err := env.messages.ListPage(ctx, group.ID, teacher, domain.PageCursor{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, minji, page.Messages[0].SenderID)

	list, err := env.conversations.ListForUser(ctx, minji)
	require.NoError(t, err)
	assert.Empty(t, list)

	// re-adding reactivates the same membership row
	_, err = env.conversations.AddParticipant(ctx, group.ID, teacher, minji)
	require.NoError(t, err)
	assert.Equal(t, int64(3), env.countRows(t, &domain.Participant{}))
}

func TestLeave_DirectRejected(t *testing.T) {
	env := newTestEnv(t)
	conv := env.direct(t, teacher, minji)

	err := env.conversations.Leave(context.Background(), conv.ID, minji)
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, env.publisher.revocations())
}

func TestDedupeExcluding(t *testing.T) {
	assert.Equal(t, []uint64{3, 5}, dedupeExcluding([]uint64{0, 3, 2, 5, 3, 2}, 2))
	assert.Empty(t, dedupeExcluding(nil, 1))
}
