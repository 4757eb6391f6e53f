package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peerline/peerline/internal/core/domain"
)

func TestJoinSnapshotAndBroadcast(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newFakeGateway()
	gw.connect("A", "B")
	reg := NewRoomRegistry(gw, newFakeLog(), 0)

	snapA, err := reg.Join(ctx, "A", "r1")
	req.NoError(err)
	req.Empty(snapA.Members)
	req.Empty(snapA.RecentMessages)

	snapB, err := reg.Join(ctx, "B", "r1")
	req.NoError(err)
	req.Equal([]domain.ParticipantID{"A"}, snapB.Members)

	joined := gw.sentOfType("A", domain.EnvelopeUserJoined)
	req.Len(joined, 1)
	req.Equal(domain.ParticipantID("B"), joined[0].From)
	req.Equal(domain.RoomID("r1"), joined[0].Room)

	// The joiner itself gets no membership event; the snapshot covers it.
	req.Empty(gw.sentOfType("B", domain.EnvelopeUserJoined))
}

func TestJoinRoomFull(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newFakeGateway()
	gw.connect("A", "B", "C")
	reg := NewRoomRegistry(gw, newFakeLog(), 2)

	_, err := reg.Join(ctx, "A", "r1")
	req.NoError(err)
	_, err = reg.Join(ctx, "B", "r1")
	req.NoError(err)

	_, err = reg.Join(ctx, "C", "r1")
	req.ErrorIs(err, domain.ErrRoomFull)

	members, err := reg.Members("r1")
	req.NoError(err)
	req.ElementsMatch([]domain.ParticipantID{"A", "B"}, members)
	_, ok := reg.RoomOf("C")
	req.False(ok)
}

func TestRejoinSameRoomIsSnapshotRefresh(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newFakeGateway()
	gw.connect("A", "B")
	reg := NewRoomRegistry(gw, newFakeLog(), 0)

	_, err := reg.Join(ctx, "A", "r1")
	req.NoError(err)
	_, err = reg.Join(ctx, "B", "r1")
	req.NoError(err)

	snap, err := reg.Join(ctx, "B", "r1")
	req.NoError(err)
	req.Equal([]domain.ParticipantID{"A"}, snap.Members)

	members, err := reg.Members("r1")
	req.NoError(err)
	req.Len(members, 2, "no duplicate membership")
	req.Len(gw.sentOfType("A", domain.EnvelopeUserJoined), 1, "no repeated user-joined")
}

func TestLeaveBroadcastsAndReclaims(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newFakeGateway()
	gw.connect("A", "B")
	log := newFakeLog()
	reg := NewRoomRegistry(gw, log, 0)

	_, err := reg.Join(ctx, "A", "r1")
	req.NoError(err)
	_, err = reg.Join(ctx, "B", "r1")
	req.NoError(err)

	roomID, ok := reg.Leave(ctx, "A")
	req.True(ok)
	req.Equal(domain.RoomID("r1"), roomID)

	left := gw.sentOfType("B", domain.EnvelopeUserLeft)
	req.Len(left, 1)
	req.Equal(domain.ParticipantID("A"), left[0].From)

	// Last member out reclaims the room and its log.
	_, ok = reg.Leave(ctx, "B")
	req.True(ok)
	_, err = reg.Members("r1")
	req.ErrorIs(err, domain.ErrRoomNotFound)
	req.Contains(log.dropped, domain.RoomID("r1"))

	_, ok = reg.Leave(ctx, "B")
	req.False(ok, "leave is idempotent")
}

func TestJoinMovesBetweenRooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newFakeGateway()
	gw.connect("A", "B")
	reg := NewRoomRegistry(gw, newFakeLog(), 0)

	_, err := reg.Join(ctx, "A", "r1")
	req.NoError(err)
	_, err = reg.Join(ctx, "B", "r1")
	req.NoError(err)

	_, err = reg.Join(ctx, "A", "r2")
	req.NoError(err)

	req.Len(gw.sentOfType("B", domain.EnvelopeUserLeft), 1)

	room, ok := reg.RoomOf("A")
	req.True(ok)
	req.Equal(domain.RoomID("r2"), room)

	members, err := reg.Members("r1")
	req.NoError(err)
	req.Equal([]domain.ParticipantID{"B"}, members)
}

func TestRejectedMoveKeepsPriorRoom(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newFakeGateway()
	gw.connect("A", "B", "C", "D")
	reg := NewRoomRegistry(gw, newFakeLog(), 2)

	_, err := reg.Join(ctx, "A", "r1")
	req.NoError(err)
	_, err = reg.Join(ctx, "B", "r1")
	req.NoError(err)
	_, err = reg.Join(ctx, "C", "r2")
	req.NoError(err)
	_, err = reg.Join(ctx, "D", "r2")
	req.NoError(err)

	// r2 is full; A's switch is rejected and r1 must not notice.
	_, err = reg.Join(ctx, "A", "r2")
	req.ErrorIs(err, domain.ErrRoomFull)

	room, ok := reg.RoomOf("A")
	req.True(ok)
	req.Equal(domain.RoomID("r1"), room)
	members, err := reg.Members("r1")
	req.NoError(err)
	req.Equal([]domain.ParticipantID{"A", "B"}, members)
	req.Empty(gw.sentOfType("B", domain.EnvelopeUserLeft))
}

// Concurrent joiners across several rooms: every snapshot must be internally
// consistent (no self, no duplicates) and the final membership must account
// for every joiner exactly once.
func TestConcurrentJoinConsistency(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	gw := newFakeGateway()
	reg := NewRoomRegistry(gw, newFakeLog(), 0)

	const perRoom = 16
	rooms := []domain.RoomID{"r1", "r2", "r3"}

	var wg sync.WaitGroup
	snaps := make([]domain.RoomSnapshot, len(rooms)*perRoom)
	ids := make([]domain.ParticipantID, len(rooms)*perRoom)
	for ri, roomID := range rooms {
		for i := 0; i < perRoom; i++ {
			idx := ri*perRoom + i
			ids[idx] = domain.ParticipantID(fmt.Sprintf("%s-p%02d", roomID, i))
			gw.connect(ids[idx])
			wg.Add(1)
			go func(idx int, roomID domain.RoomID) {
				defer wg.Done()
				snap, err := reg.Join(ctx, ids[idx], roomID)
				req.NoError(err)
				snaps[idx] = snap
			}(idx, roomID)
		}
	}
	wg.Wait()

	for ri, roomID := range rooms {
		members, err := reg.Members(roomID)
		req.NoError(err)
		req.Len(members, perRoom)
		seen := make(map[domain.ParticipantID]bool)
		for _, m := range members {
			req.False(seen[m], "no phantom or duplicate members")
			seen[m] = true
		}
		for i := 0; i < perRoom; i++ {
			idx := ri*perRoom + i
			snapSeen := make(map[domain.ParticipantID]bool)
			for _, m := range snaps[idx].Members {
				req.NotEqual(ids[idx], m, "snapshot never lists the joiner")
				req.False(snapSeen[m])
				snapSeen[m] = true
				req.True(seen[m], "snapshot members all belong to the room")
			}
		}
	}
}
